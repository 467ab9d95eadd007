// Command agentchattr runs the local chat hub that lets CLI coding agents
// and a human operator coordinate in a shared room, the per-agent wrapper
// that supervises one agent's terminal session, or both together in a
// single process (spec.md §1).
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/agentchattr/agentchattr/internal/logging"
)

var version = "dev"

func main() {
	logging.Setup()

	if len(os.Args) < 2 {
		if err := runStandalone(os.Args[1:]); err != nil {
			slog.Error("fatal", "error", err)
			os.Exit(1)
		}
		return
	}

	switch os.Args[1] {
	case "hub":
		if err := runHub(os.Args[2:]); err != nil {
			slog.Error("fatal", "error", err)
			os.Exit(1)
		}
	case "wrapper":
		if err := runWrapper(os.Args[2:]); err != nil {
			slog.Error("fatal", "error", err)
			os.Exit(1)
		}
	case "version":
		fmt.Println(version)
	default:
		if len(os.Args[1]) > 0 && os.Args[1][0] == '-' {
			if err := runStandalone(os.Args[1:]); err != nil {
				slog.Error("fatal", "error", err)
				os.Exit(1)
			}
			return
		}
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "usage: agentchattr [hub|wrapper|version] [flags]\n")
		os.Exit(1)
	}
}
