package ptyterm

import (
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

// resolveDefaultShell returns the user's default shell, used as a fallback
// when an agent has no configured command. It checks the
// AGENTCHATTR_DEFAULT_SHELL environment variable first (accepting either a
// bare command name like "zsh" or an absolute path like "/bin/zsh"), then
// the SHELL environment variable, and finally falls back to
// platform-specific detection (e.g. dscl on macOS, /etc/passwd on Linux).
func resolveDefaultShell() string {
	if shell := resolveShellEnv("AGENTCHATTR_DEFAULT_SHELL"); shell != "" {
		slog.Info("default shell from AGENTCHATTR_DEFAULT_SHELL", "shell", shell)
		return shell
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		slog.Info("default shell from $SHELL", "shell", shell)
		return shell
	}
	shell := detectDefaultShell()
	slog.Info("default shell from platform detection", "shell", shell)
	return shell
}

// resolveShellEnv reads the named environment variable and, if it contains a
// bare command name (no path separator), resolves it to an absolute path via
// exec.LookPath. Returns "" when the variable is unset/empty or lookup fails.
func resolveShellEnv(name string) string {
	val := os.Getenv(name)
	if val == "" {
		return ""
	}
	if filepath.IsAbs(val) {
		return val
	}
	abs, err := exec.LookPath(val)
	if err != nil {
		slog.Info("failed to resolve shell env via LookPath", "env", name, "value", val, "error", err)
		return ""
	}
	return abs
}
