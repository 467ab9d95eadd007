package mcp

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/agentchattr/agentchattr/internal/apperr"
	"github.com/agentchattr/agentchattr/internal/presence"
	"github.com/agentchattr/agentchattr/internal/store"
	"github.com/agentchattr/agentchattr/internal/validate"
)

// Server serves the eight MCP tools over HTTP, plus a minimal SSE
// keepalive stream the wrapper's health watcher probes independently of
// the HTTP tool surface (spec.md §4.6 "Health watcher").
type Server struct {
	store     *store.Store
	presence  *presence.Tracker
	token     string
	logger    *slog.Logger

	mu      sync.Mutex
	cursors map[string]int64 // agent -> last delivered message id
}

// NewServer builds an MCP bridge backed by st and pres, requiring token on
// every call.
func NewServer(st *store.Store, pres *presence.Tracker, token string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:    st,
		presence: pres,
		token:    token,
		logger:   logger,
		cursors:  map[string]int64{},
	}
}

// Routes returns an http.Handler mounting all MCP tool endpoints and the
// SSE keepalive stream.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /mcp/chat_send", s.withRequestID(s.authed(s.handleSend)))
	mux.HandleFunc("POST /mcp/chat_read", s.withRequestID(s.authed(s.handleRead)))
	mux.HandleFunc("POST /mcp/chat_resync", s.withRequestID(s.authed(s.handleResync)))
	mux.HandleFunc("POST /mcp/chat_join", s.withRequestID(s.authed(s.handleJoin)))
	mux.HandleFunc("POST /mcp/chat_who", s.withRequestID(s.authed(s.handleWho)))
	mux.HandleFunc("POST /mcp/chat_decision", s.withRequestID(s.authed(s.handleDecision)))
	mux.HandleFunc("POST /mcp/chat_channels", s.withRequestID(s.authed(s.handleChannels)))
	mux.HandleFunc("POST /mcp/chat_set_hat", s.withRequestID(s.authed(s.handleSetHat)))
	mux.HandleFunc("GET /mcp/events", s.authed(s.handleEvents))
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	return mux
}

// withRequestID tags every call with a correlation id: the caller's
// X-Request-Id header if present, otherwise a freshly generated one. The id
// is echoed back and attached to the request's logging so a tool call can
// be traced end to end across the wrapper and hub logs.
func (s *Server) withRequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		s.logger.Debug("mcp call", "request_id", reqID, "path", r.URL.Path)
		next(w, r)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// authed wraps a tool handler, rejecting calls whose token doesn't match
// (spec.md §4.5 "Auth middleware", reused here for the MCP port).
func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Session-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if s.token != "" && token != s.token {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func (s *Server) touch(agent string) {
	if s.presence != nil && agent != "" {
		s.presence.Touch(agent, "")
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return fmt.Errorf("empty request body")
	}
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if kind, ok := apperr.KindOf(err); ok {
		switch kind {
		case apperr.Validation:
			status = http.StatusBadRequest
		case apperr.Auth:
			status = http.StatusForbidden
		case apperr.ResourceExhausted:
			status = http.StatusTooManyRequests
		}
	}
	w.WriteHeader(status)
	writeJSON(w, map[string]string{"error": err.Error()})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, apperr.Wrap(apperr.Validation, "decode request", err))
		return
	}
	s.touch(req.Agent)

	msg, err := s.store.Append(store.Message{
		Sender:  req.Agent,
		Channel: req.Channel,
		Text:    req.Text,
		ReplyTo: req.ReplyTo,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, msg)
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	var req ReadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, apperr.Wrap(apperr.Validation, "decode request", err))
		return
	}
	s.touch(req.Agent)

	s.mu.Lock()
	cursor := s.cursors[req.Agent]
	s.mu.Unlock()

	msgs := s.store.Since(cursor, req.Channel)
	var next int64 = cursor
	for _, m := range msgs {
		if m.ID > next {
			next = m.ID
		}
	}

	s.mu.Lock()
	s.cursors[req.Agent] = next
	s.mu.Unlock()

	writeJSON(w, ReadResponse{Messages: msgs, Cursor: next})
}

func (s *Server) handleResync(w http.ResponseWriter, r *http.Request) {
	var req ResyncRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, apperr.Wrap(apperr.Validation, "decode request", err))
		return
	}
	s.touch(req.Agent)

	msgs := s.store.Recent(req.Channel, req.Limit)
	var cursor int64
	for _, m := range msgs {
		if m.ID > cursor {
			cursor = m.ID
		}
	}

	s.mu.Lock()
	s.cursors[req.Agent] = cursor
	s.mu.Unlock()

	writeJSON(w, ReadResponse{Messages: msgs, Cursor: cursor})
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req JoinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, apperr.Wrap(apperr.Validation, "decode request", err))
		return
	}
	if s.presence != nil {
		s.presence.Touch(req.Agent, req.SessionID)
	}
	writeJSON(w, map[string]bool{"ok": true})
}

func (s *Server) handleWho(w http.ResponseWriter, r *http.Request) {
	var req WhoRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, apperr.Wrap(apperr.Validation, "decode request", err))
		return
	}
	s.touch(req.Agent)
	if req.Busy != nil && s.presence != nil {
		s.presence.SetBusy(req.Agent, *req.Busy)
	}

	var agents []AgentStatus
	if s.presence != nil {
		for _, st := range s.presence.List() {
			agents = append(agents, AgentStatus{Agent: st.Agent, Online: st.Online, Busy: st.Busy, SessionID: st.SessionID})
		}
	}
	writeJSON(w, WhoResponse{Agents: agents})
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, apperr.Wrap(apperr.Validation, "decode request", err))
		return
	}
	s.touch(req.Agent)

	switch req.Action {
	case DecisionActionAdd:
		d, err := s.store.AddDecision(req.Agent, req.Text, req.Reason)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, DecisionResponse{Decision: &d})
	case DecisionActionApprove:
		d, err := s.store.ApproveDecision(req.ID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, DecisionResponse{Decision: &d})
	case DecisionActionUnapprove:
		d, err := s.store.UnapproveDecision(req.ID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, DecisionResponse{Decision: &d})
	case DecisionActionEdit:
		d, err := s.store.EditDecision(req.ID, req.Text, req.Reason)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, DecisionResponse{Decision: &d})
	case DecisionActionDelete:
		if err := s.store.DeleteDecision(req.ID); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, DecisionResponse{})
	case DecisionActionList:
		writeJSON(w, DecisionResponse{Decisions: s.store.ListDecisions()})
	default:
		writeErr(w, apperr.New(apperr.Validation, fmt.Sprintf("unknown decision action %q", req.Action)))
	}
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	var req ChannelsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, apperr.Wrap(apperr.Validation, "decode request", err))
		return
	}
	s.touch(req.Agent)

	switch req.Action {
	case ChannelActionList:
		writeJSON(w, ChannelsResponse{Channels: s.store.ListChannels()})
	case ChannelActionCreate:
		ch, err := s.store.CreateChannel(req.Name)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, ChannelsResponse{Channel: &ch})
	case ChannelActionRename:
		ch, err := s.store.RenameChannel(req.Name, req.NewName)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, ChannelsResponse{Channel: &ch})
	case ChannelActionDelete:
		if err := s.store.DeleteChannel(req.Name); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, ChannelsResponse{})
	default:
		writeErr(w, apperr.New(apperr.Validation, fmt.Sprintf("unknown channel action %q", req.Action)))
	}
}

func (s *Server) handleSetHat(w http.ResponseWriter, r *http.Request) {
	var req SetHatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, apperr.Wrap(apperr.Validation, "decode request", err))
		return
	}
	s.touch(req.Agent)

	hat, err := validate.SanitizeName(req.Hat)
	if err != nil {
		writeErr(w, apperr.Wrap(apperr.Validation, "sanitize hat", err))
		return
	}

	if err := s.store.SetSetting("hat:"+req.Agent, hat); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, map[string]bool{"ok": true})
}

// handleEvents is a minimal SSE keepalive the wrapper's SSE health probe
// connects to; it never pushes domain events, only a periodic comment
// line, so the only thing being tested is reachability of the SSE port.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	<-r.Context().Done()
}
