package hubserver

import (
	"encoding/json"
	"net/http"
	"os"
	"os/exec"
	"runtime"

	"github.com/agentchattr/agentchattr/internal/apperr"
	"github.com/agentchattr/agentchattr/internal/validate"
)

// openPathRequest is the body POST /api/open-path accepts.
type openPathRequest struct {
	Path string `json:"path"`
}

// handleOpenPath asks the host desktop to reveal a path in its file
// manager. It only accepts paths SanitizePath can statically classify as
// local and absolute; the reveal itself is best-effort and its result is
// never surfaced to chat participants (spec.md §4.5, §11 "file-manager
// open path integrations" is an external collaborator).
func (s *Server) handleOpenPath(w http.ResponseWriter, r *http.Request) {
	var req openPathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErr(w, apperr.Wrap(apperr.Validation, "decode request", err))
		return
	}

	home, _ := os.UserHomeDir()
	clean := validate.SanitizePath(req.Path, home)
	if clean == "" {
		writeAPIErr(w, apperr.New(apperr.Validation, "path is not a recognizable local absolute path"))
		return
	}

	if err := revealPath(clean); err != nil {
		writeAPIErr(w, apperr.Wrap(apperr.Transport, "reveal path", err))
		return
	}
	writeAPIJSON(w, map[string]bool{"ok": true})
}

// revealPath shells out to the platform's file-manager reveal command. It
// never blocks on the opened application closing.
func revealPath(path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", "-R", path)
	case "windows":
		cmd = exec.Command("explorer", "/select,", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	return cmd.Start()
}

// handleOpenSession brings an agent's terminal session to focus. There is
// no portable way to do this from a headless hub process, so this is a
// documented no-op that returns success: the operator is expected to
// already have the terminal multiplexer window open (spec.md §4.5
// "best-effort, platform-dependent").
func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	agent := r.PathValue("agent")
	if _, ok := s.cfg.Agents[agent]; !ok {
		writeAPIErr(w, apperr.New(apperr.Validation, "unknown agent"))
		return
	}
	writeAPIJSON(w, map[string]bool{"ok": true})
}
