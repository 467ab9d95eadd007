// Package wrapper implements the per-agent supervisor process: it owns
// one PTY session for a configured agent's CLI, injects wake-up prompts
// from that agent's trigger queue, heartbeats presence, watches for
// inactivity and MCP reachability, and restarts the session when either
// health watcher trips (spec.md §4.6).
package wrapper

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"

	"github.com/agentchattr/agentchattr/internal/config"
	"github.com/agentchattr/agentchattr/internal/id"
	"github.com/agentchattr/agentchattr/internal/logging"
	"github.com/agentchattr/agentchattr/internal/mcp"
	"github.com/agentchattr/agentchattr/internal/metrics"
	"github.com/agentchattr/agentchattr/internal/trigger"
	"github.com/agentchattr/agentchattr/internal/wrapper/ptyterm"
)

// State is one point in the wrapper's lifecycle.
type State string

const (
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateRestarting State = "restarting"
	StateStopped    State = "stopped"
)

// quietWindow is how long the screen must be unchanged before the
// activity watcher clears the busy flag.
const quietWindow = 5 * time.Second

const activityPollInterval = time.Second
const heartbeatInterval = 60 * time.Second
const triggerPollInterval = time.Second
const httpHealthInterval = 30 * time.Second
const sseHealthInterval = 30 * time.Second
const restartWatchWindow = 3 * time.Second

// Supervisor owns one agent's terminal session and its cooperating
// watcher goroutines.
type Supervisor struct {
	agent    string
	acfg     config.Agent
	cfg      *config.Config
	client   *mcp.Client
	sseURL   string
	logger   *slog.Logger

	// stability is a dedicated logger for the tagged [health]/[inject]/
	// [session]/[kill] events spec.md §6 requires under
	// <agent>_stability.log, kept separate from the free-form wrapper
	// log so an operator can tail just the restart-relevant signal.
	stability     *slog.Logger
	wrapperLogF   *os.File
	stabilityLogF *os.File

	state atomic.Value // State

	mu      sync.Mutex
	session ptyterm.Session
	lock    *flock.Flock

	sessionID string

	busy         atomic.Bool
	lastActivity atomic.Int64 // unix nano
	reinjected   atomic.Bool

	httpFailures int
	sseFailures  int
}

// New builds a Supervisor for agent, not yet started.
func New(agent string, acfg config.Agent, cfg *config.Config, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	httpBase := fmt.Sprintf("http://127.0.0.1:%d", cfg.MCP.HTTPPort)
	sseBase := fmt.Sprintf("http://127.0.0.1:%d", cfg.MCP.SSEPort)
	w := &Supervisor{
		agent:  agent,
		acfg:   acfg,
		cfg:    cfg,
		client: mcp.NewClient(httpBase, cfg.AccessToken),
		sseURL: sseBase,
		logger: logger.With("agent", agent),
	}
	w.stability = w.logger
	w.state.Store(StateStarting)
	return w
}

// State returns the supervisor's current lifecycle state.
func (w *Supervisor) State() State {
	return w.state.Load().(State)
}

func (w *Supervisor) setState(s State) {
	w.logger.Info("wrapper state transition", "from", w.State(), "to", s)
	w.state.Store(s)
}

func (w *Supervisor) lockPath() string {
	return filepath.Join(w.cfg.DataDir, w.agent+".lock")
}

// openLogFiles switches the supervisor onto the two persisted log files
// named in spec.md §6: free-form wrapper output goes to
// <agent>_wrapper.log, and tagged stability events go to
// <agent>_stability.log. Failure to open either is logged and tolerated —
// a wrapper that can't log to disk still supervises its agent.
func (w *Supervisor) openLogFiles() {
	w.stability = w.logger

	if f, err := os.OpenFile(w.cfg.WrapperLogPath(w.agent), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err != nil {
		w.logger.Warn("failed to open wrapper log file", "path", w.cfg.WrapperLogPath(w.agent), "error", err)
	} else {
		w.wrapperLogF = f
		w.logger = slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: logging.Level})).With("agent", w.agent)
		w.stability = w.logger
	}

	if l, f, err := logging.OpenFileLogger(w.cfg.StabilityLogPath(w.agent)); err != nil {
		w.logger.Warn("failed to open stability log file", "path", w.cfg.StabilityLogPath(w.agent), "error", err)
	} else {
		w.stabilityLogF = f
		w.stability = l.With("agent", w.agent)
	}
}

func (w *Supervisor) closeLogFiles() {
	if w.wrapperLogF != nil {
		_ = w.wrapperLogF.Close()
	}
	if w.stabilityLogF != nil {
		_ = w.stabilityLogF.Close()
	}
}

// Run executes the full startup sequence and then blocks, running every
// watcher concurrently, until ctx is cancelled.
func (w *Supervisor) Run(ctx context.Context) error {
	w.setState(StateStarting)
	w.openLogFiles()
	defer w.closeLogFiles()

	w.lock = flock.New(w.lockPath())
	locked, err := w.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire wrapper lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another wrapper is already running for agent %q", w.agent)
	}
	defer w.lock.Unlock()

	if err := trigger.Truncate(w.cfg.AgentQueuePath(w.agent)); err != nil {
		return fmt.Errorf("truncate trigger queue: %w", err)
	}

	if err := w.spawn(ctx); err != nil {
		return fmt.Errorf("spawn session: %w", err)
	}

	w.sessionID = id.Generate()
	if err := w.client.Join(ctx, w.agent, w.sessionID); err != nil {
		w.logger.Warn("failed to post join message", "error", err)
	}

	w.setState(StateRunning)

	var wg sync.WaitGroup
	tasks := []func(context.Context){
		w.runHeartbeat,
		w.runTriggerWatcher,
		w.runActivityWatcher,
		w.runHTTPHealthWatcher,
		w.runSSEHealthWatcher,
		w.runRestartWatcher,
	}
	for _, task := range tasks {
		wg.Add(1)
		go func(t func(context.Context)) {
			defer wg.Done()
			t(ctx)
		}(task)
	}

	<-ctx.Done()
	w.shutdown(context.Background())
	wg.Wait()
	return nil
}

// spawn starts a fresh PTY session for the configured agent command. The
// initial spawn never passes the resume flag; restart passes it (when one
// is configured) on every respawn.
func (w *Supervisor) spawn(ctx context.Context) error {
	return w.spawnWithResume(ctx, false)
}

func (w *Supervisor) spawnWithResume(ctx context.Context, resume bool) error {
	var args []string
	if resume && w.acfg.ResumeFlag != "" {
		args = append(args, w.acfg.ResumeFlag)
	}

	operation := func() (ptyterm.Session, error) {
		return ptyterm.Start(ptyterm.Options{
			ID:         w.agent,
			Command:    w.acfg.Command,
			Args:       args,
			WorkingDir: w.acfg.Cwd,
			Cols:       80,
			Rows:       24,
		}, nil)
	}

	session, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3),
	)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.session = session
	w.mu.Unlock()
	w.lastActivity.Store(time.Now().UnixNano())
	return nil
}

func (w *Supervisor) getSession() ptyterm.Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.session
}

// restart kills the current session (if any) and spawns a new one with
// resume requested, recording the reason via metrics and an optional chat
// system message.
func (w *Supervisor) restart(ctx context.Context, reason string) {
	w.setState(StateRestarting)
	metrics.WrapperRestartsTotal.WithLabelValues(w.agent, reason).Inc()
	w.stability.Warn("[kill] "+reason, "session", w.sessionKey())

	if err := w.client.Send(ctx, "system", "general", fmt.Sprintf("[stability] Killing %s — %s", w.sessionKey(), reason)); err != nil {
		w.logger.Warn("failed to post restart notice", "error", err)
	}

	if s := w.getSession(); s != nil {
		s.Kill()
	}

	if err := w.spawnWithResume(ctx, true); err != nil {
		w.logger.Error("failed to respawn session after restart", "error", err)
		w.stability.Error("[session] respawn after kill failed", "error", err)
		w.setState(StateStopped)
		return
	}
	w.stability.Info("[session] respawned with resume", "session", w.sessionKey())
	w.httpFailures, w.sseFailures = 0, 0
	w.reinjected.Store(false)
	w.setState(StateRunning)
}

func (w *Supervisor) sessionKey() string {
	return "agentchattr-" + w.agent
}

// runHeartbeat refreshes presence every heartbeatInterval, reporting the
// wrapper's locally observed busy flag as a side effect (spec.md §4.6
// "Heartbeat").
func (w *Supervisor) runHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			busy := w.busy.Load()
			if _, err := w.client.Who(ctx, w.agent, &busy); err != nil {
				w.logger.Warn("heartbeat failed", "error", err)
			}
		}
	}
}

// runTriggerWatcher tails the agent's trigger queue, injecting a short
// prompt for each new entry (spec.md §4.6 "Trigger watcher").
func (w *Supervisor) runTriggerWatcher(ctx context.Context) {
	reader, err := trigger.NewReader(w.cfg.AgentQueuePath(w.agent))
	if err != nil {
		w.logger.Error("failed to open trigger queue for reading", "error", err)
		return
	}

	var lastPrompt string
	ticker := time.NewTicker(triggerPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			entries, err := reader.Poll()
			if err != nil {
				w.logger.Warn("failed to poll trigger queue", "error", err)
				continue
			}
			for _, e := range entries {
				w.inject(e.Prompt)
				lastPrompt = e.Prompt
				metrics.PendingTriggers.WithLabelValues(w.agent).Dec()
			}

			if len(entries) == 0 {
				w.maybeReinject(lastPrompt)
			} else {
				w.reinjected.Store(false)
			}
		}
	}
}

func (w *Supervisor) inject(prompt string) {
	session := w.getSession()
	if session == nil {
		return
	}
	if err := session.Inject(prompt); err != nil {
		w.stability.Warn("[inject] failed, leaving session for health watcher to restart", "error", err)
		w.logger.Warn("injection failed, leaving session for health watcher to restart", "error", err)
		return
	}
}

// maybeReinject re-injects the last prompt the trigger watcher injected,
// once, if the screen has been unchanged for longer than the configured
// task-idle threshold (spec.md §4.6 "Task-idle re-nudge"). Whether the
// agent already acted on that prompt is not tracked: the last injected
// prompt counts as pending until new queue entries arrive.
func (w *Supervisor) maybeReinject(lastPrompt string) {
	if lastPrompt == "" || w.reinjected.Load() {
		return
	}
	threshold := time.Duration(w.cfg.Monitor.AgentTaskTimeoutMinutes) * time.Minute
	if threshold <= 0 {
		return
	}
	idleSince := time.Unix(0, w.lastActivity.Load())
	if time.Since(idleSince) < threshold {
		return
	}
	w.stability.Info("[inject] task-idle threshold exceeded, re-injecting last prompt", "prompt", lastPrompt)
	w.inject(lastPrompt)
	w.reinjected.Store(true)
}

// runActivityWatcher hashes the terminal screen once a second, toggling
// the busy flag on change and clearing it after a quiet window (spec.md
// §4.6 "Activity watcher").
func (w *Supervisor) runActivityWatcher(ctx context.Context) {
	var lastHash [32]byte
	ticker := time.NewTicker(activityPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			session := w.getSession()
			if session == nil {
				continue
			}
			hash := session.ScreenHash()
			if hash != lastHash {
				lastHash = hash
				w.busy.Store(true)
				w.lastActivity.Store(time.Now().UnixNano())
				continue
			}
			if time.Since(time.Unix(0, w.lastActivity.Load())) > quietWindow {
				w.busy.Store(false)
			}
		}
	}
}

// runHTTPHealthWatcher probes the MCP HTTP port, restarting the session
// after HTTPKillThreshold consecutive failures.
func (w *Supervisor) runHTTPHealthWatcher(ctx context.Context) {
	ticker := time.NewTicker(httpHealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.client.PingHTTP(ctx); err != nil {
				w.httpFailures++
				metrics.HealthProbeFailures.WithLabelValues(w.agent, "http").Inc()
				if w.httpFailures == 1 {
					w.stability.Warn("[health] transient http probe failure", "error", err)
				}
				if w.httpFailures >= w.cfg.MCP.HTTPKillThreshold {
					w.restart(ctx, "http health checks failed")
					w.httpFailures = 0
				}
				continue
			}
			w.httpFailures = 0
		}
	}
}

// runSSEHealthWatcher probes the MCP SSE port, restarting the session
// after SSEKillThreshold consecutive failures.
func (w *Supervisor) runSSEHealthWatcher(ctx context.Context) {
	ticker := time.NewTicker(sseHealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.client.PingSSE(ctx, w.sseURL); err != nil {
				w.sseFailures++
				metrics.HealthProbeFailures.WithLabelValues(w.agent, "sse").Inc()
				if w.sseFailures == 1 {
					w.stability.Warn("[health] transient sse probe failure", "error", err)
				}
				if w.sseFailures >= w.cfg.MCP.SSEKillThreshold {
					w.restart(ctx, "sse health checks failed")
					w.sseFailures = 0
				}
				continue
			}
			w.sseFailures = 0
		}
	}
}

// runRestartWatcher watches server_started_at for two successive changes
// in a short window, which signals that cached MCP session state is
// stale, and sends a controlled interrupt to the agent so it reconnects
// (spec.md §4.6 "Server-restart watcher").
func (w *Supervisor) runRestartWatcher(ctx context.Context) {
	path := w.cfg.ServerStartedAtPath()
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Error("failed to create restart watcher", "error", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		w.logger.Error("failed to watch server_started_at directory", "error", err)
		return
	}

	var lastChange time.Time
	var pending bool
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != filepath.Base(path) {
				continue
			}
			if !(ev.Op&(fsnotify.Write|fsnotify.Create) != 0) {
				continue
			}
			now := time.Now()
			if pending && now.Sub(lastChange) <= restartWatchWindow {
				w.stability.Info("[session] server restart detected twice, sending interrupt")
				w.sendInterrupt()
				pending = false
			} else {
				pending = true
				lastChange = now
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("restart watcher error", "error", err)
		}
	}
}

func (w *Supervisor) sendInterrupt() {
	session := w.getSession()
	if session == nil {
		return
	}
	if err := session.Inject("\x03"); err != nil {
		w.logger.Warn("failed to send controlled interrupt", "error", err)
	}
}

// shutdown posts a leave message and kills the session; Run releases the
// exclusive lock when it returns.
func (w *Supervisor) shutdown(ctx context.Context) {
	w.setState(StateStopped)
	w.stability.Info("[session] shutting down")
	if err := w.client.Send(ctx, w.agent, "general", w.agent+" left"); err != nil {
		w.logger.Warn("failed to post leave message", "error", err)
	}
	if s := w.getSession(); s != nil {
		s.Kill()
	}
}
