package apperr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentchattr/agentchattr/internal/apperr"
)

func TestKindOf(t *testing.T) {
	err := apperr.New(apperr.Validation, "bad channel name")
	k, ok := apperr.KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, apperr.Validation, k)
}

func TestKindOf_PlainError(t *testing.T) {
	_, ok := apperr.KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestIs(t *testing.T) {
	err := apperr.Wrap(apperr.Persistence, "append failed", errors.New("disk full"))
	assert.True(t, apperr.Is(err, apperr.Persistence))
	assert.False(t, apperr.Is(err, apperr.Auth))
}

func TestUnwrap(t *testing.T) {
	inner := errors.New("disk full")
	err := apperr.Wrap(apperr.Persistence, "append failed", inner)
	assert.ErrorIs(t, err, inner)
}
