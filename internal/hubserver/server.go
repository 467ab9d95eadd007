// Package hubserver is the chat hub's HTTP/WebSocket surface: the browser
// UI, the bidirectional event channel, image upload, and the two
// best-effort desktop-integration endpoints (spec.md §4.5).
package hubserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentchattr/agentchattr/internal/apperr"
	"github.com/agentchattr/agentchattr/internal/config"
	"github.com/agentchattr/agentchattr/internal/logging"
	"github.com/agentchattr/agentchattr/internal/mcp"
	"github.com/agentchattr/agentchattr/internal/metrics"
	"github.com/agentchattr/agentchattr/internal/presence"
	"github.com/agentchattr/agentchattr/internal/router"
	"github.com/agentchattr/agentchattr/internal/store"
	"github.com/agentchattr/agentchattr/internal/trigger"
)

// ServerConfig configures a hub Server instance.
type ServerConfig struct {
	Config       *config.Config
	AllowNetwork bool // permits binding a non-loopback host (spec.md §4.5 "Network binding")
}

// Server is the chat hub: it owns the store, presence tracker, router,
// MCP bridge, and the browser-facing HTTP/WebSocket surface.
type Server struct {
	cfg          *config.Config
	allowNetwork bool

	token  string
	store  *store.Store
	pres   *presence.Tracker
	router *router.Router
	mcp    *mcp.Server
	bcast  *broadcaster

	triggerWriters map[string]*trigger.Writer

	logger *slog.Logger

	mainSrv *http.Server
	mcpSrv  *http.Server
	sseSrv  *http.Server
}

// NewServer builds a Server backed by sc.Config. The caller is expected to
// have already run sc.Config.Validate().
func NewServer(sc ServerConfig, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := sc.Config

	token, err := loadOrCreateToken(cfg.SessionTokenPath(), cfg.AccessToken)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.ChatLogPath(), logger)
	if err != nil {
		return nil, err
	}

	pres := presence.New(st, logger)

	agentNames := make([]string, 0, len(cfg.Agents))
	for name := range cfg.Agents {
		agentNames = append(agentNames, name)
	}
	sortStrings(agentNames)

	writers := map[string]*trigger.Writer{}
	enqueuers := map[string]router.Enqueuer{}
	for _, name := range agentNames {
		w, err := trigger.NewWriter(cfg.AgentQueuePath(name))
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("open trigger queue for %s: %w", name, err)
		}
		writers[name] = w
		enqueuers[name] = w
	}

	rt := router.New(agentNames, enqueuers, router.RoutingMode(cfg.Routing.Default), cfg.Routing.MaxAgentHops, st, logger)
	rt.Attach(st)

	mcpSrv := mcp.NewServer(st, pres, token, logger)

	s := &Server{
		cfg:            cfg,
		allowNetwork:   sc.AllowNetwork,
		token:          token,
		store:          st,
		pres:           pres,
		router:         rt,
		mcp:            mcpSrv,
		bcast:          newBroadcaster(logger),
		triggerWriters: writers,
		logger:         logger,
	}

	s.wireBroadcasts()

	s.mainSrv = &http.Server{Handler: s.mainMux(), ReadHeaderTimeout: 10 * time.Second}
	s.mcpSrv = &http.Server{Handler: s.instrumentedMCPHandler(), ReadHeaderTimeout: 10 * time.Second}
	s.sseSrv = &http.Server{Handler: s.instrumentedMCPHandler(), ReadHeaderTimeout: 10 * time.Second}

	return s, nil
}

// sortStrings avoids importing sort at the call site twice; kept local
// since it is the only sort this package needs.
func sortStrings(ss []string) {
	for i := 1; i < len(ss); i++ {
		for j := i; j > 0 && ss[j-1] > ss[j]; j-- {
			ss[j-1], ss[j] = ss[j], ss[j-1]
		}
	}
}

func (s *Server) instrumentedMCPHandler() http.Handler {
	return logging.HTTPMiddleware(metrics.HTTPMiddleware(s.mcp.Routes()))
}

func (s *Server) mainMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleIndex)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("POST /api/upload", s.requireAuth(s.handleUpload))
	mux.HandleFunc("POST /api/open-path", s.requireAuth(s.handleOpenPath))
	mux.HandleFunc("POST /api/open-session/{agent}", s.requireAuth(s.handleOpenSession))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.cfg.UploadsDir()))))
	return logging.HTTPMiddleware(metrics.HTTPMiddleware(mux))
}

// Serve binds the hub's three listeners (browser, MCP HTTP, MCP SSE) and
// blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	if !s.allowNetwork && !s.cfg.IsLoopback() {
		return apperr.New(apperr.Fatal, fmt.Sprintf("refusing to bind non-loopback host %q without --allow-network", s.cfg.Server.Host))
	}

	if err := s.writeServerStartedAt(); err != nil {
		return err
	}

	mainLn, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return apperr.Wrap(apperr.Fatal, "listen main", err)
	}
	mcpLn, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.MCP.HTTPPort))
	if err != nil {
		_ = mainLn.Close()
		return apperr.Wrap(apperr.Fatal, "listen mcp http", err)
	}
	sseLn, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.MCP.SSEPort))
	if err != nil {
		_ = mainLn.Close()
		_ = mcpLn.Close()
		return apperr.Wrap(apperr.Fatal, "listen mcp sse", err)
	}

	presCtx, cancelPres := context.WithCancel(ctx)
	go s.pres.Run(presCtx)

	errCh := make(chan error, 3)
	go func() { errCh <- s.mainSrv.Serve(mainLn) }()
	go func() { errCh <- s.mcpSrv.Serve(mcpLn) }()
	go func() { errCh <- s.sseSrv.Serve(sseLn) }()

	s.logger.Info("hub listening", "addr", s.cfg.Addr(), "mcp_http", s.cfg.MCP.HTTPPort, "mcp_sse", s.cfg.MCP.SSEPort)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		cancelPres()
		s.shutdown()
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}

	cancelPres()
	s.shutdown()

	for i := 0; i < 3; i++ {
		if err := <-errCh; err != nil && err != http.ErrServerClosed {
			s.logger.Warn("listener shutdown error", "error", err)
		}
	}
	return nil
}

func (s *Server) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.mainSrv.Shutdown(ctx)
	_ = s.mcpSrv.Shutdown(ctx)
	_ = s.sseSrv.Shutdown(ctx)
	for _, w := range s.triggerWriters {
		_ = w.Close()
	}
	_ = s.store.Close()
}

// writeServerStartedAt atomically (write-to-temp + rename) records a fresh
// boot timestamp, the signal the wrapper's server-restart watcher tails
// (spec.md §9).
func (s *Server) writeServerStartedAt() error {
	path := s.cfg.ServerStartedAtPath()
	tmp := path + ".tmp"
	stamp := time.Now().UTC().Format(time.RFC3339Nano)
	if err := os.WriteFile(tmp, []byte(stamp), 0o644); err != nil {
		return apperr.Wrap(apperr.Persistence, "stage server_started_at", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return apperr.Wrap(apperr.Persistence, "commit server_started_at", err)
	}
	return nil
}
