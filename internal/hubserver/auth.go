package hubserver

import (
	"net/http"
	"os"
	"strings"

	"github.com/agentchattr/agentchattr/internal/apperr"
	"github.com/agentchattr/agentchattr/internal/id"
)

// loadOrCreateToken returns cfg.AccessToken when set (the $ACCESS_TOKEN
// override, spec.md §6), otherwise loads the persisted session_token file,
// generating and persisting a fresh one on first run.
func loadOrCreateToken(path, override string) (string, error) {
	if override != "" {
		return override, nil
	}

	data, err := os.ReadFile(path)
	if err == nil {
		tok := strings.TrimSpace(string(data))
		if tok != "" {
			return tok, nil
		}
	} else if !os.IsNotExist(err) {
		return "", apperr.Wrap(apperr.Persistence, "read session token", err)
	}

	tok := id.Token()
	if err := os.WriteFile(path, []byte(tok), 0o600); err != nil {
		return "", apperr.Wrap(apperr.Persistence, "write session token", err)
	}
	return tok, nil
}

// tokenFromRequest extracts the session token from a query parameter,
// header, or (for WebSocket upgrades) query-only, per spec.md §4.5 "Auth
// middleware".
func tokenFromRequest(r *http.Request) string {
	if tok := r.Header.Get("X-Session-Token"); tok != "" {
		return tok
	}
	return r.URL.Query().Get("token")
}

// checkOrigin enforces spec.md §4.5 "Origin check": browser requests must
// carry an Origin of http://localhost:* or http://127.0.0.1:*; a missing
// Origin (non-browser clients presenting a valid token) is allowed through.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return strings.HasPrefix(origin, "http://localhost:") ||
		origin == "http://localhost" ||
		strings.HasPrefix(origin, "http://127.0.0.1:") ||
		origin == "http://127.0.0.1"
}

// requireAuth wraps an HTTP handler, rejecting requests whose token does
// not match s.token or whose Origin fails checkOrigin, with HTTP 403
// (spec.md §7 "Auth").
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !checkOrigin(r) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		if tokenFromRequest(r) != s.token {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}
