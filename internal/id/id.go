// Package id generates random identifiers used for session tokens,
// upload filenames, WebSocket connection ids and wrapper session ids.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Generate returns a random 32-character alphanumeric identifier.
func Generate() string {
	return generate(32)
}

// Token returns a random 48-character alphanumeric session token.
func Token() string {
	return generate(48)
}

func generate(n int) string {
	s, err := gonanoid.Generate(alphabet, n)
	if err != nil {
		panic(fmt.Sprintf("id: generate: %v", err))
	}
	return s
}
