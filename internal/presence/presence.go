// Package presence tracks which agents are currently attached to the hub,
// whether they are busy, and emits synthetic join/leave chat messages on
// transition (spec.md §4.3).
package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/agentchattr/agentchattr/internal/metrics"
	"github.com/agentchattr/agentchattr/internal/store"
	"github.com/agentchattr/agentchattr/internal/validate"
)

// DefaultStaleAfter is how long an agent can go without a heartbeat before
// the tracker considers it offline.
const DefaultStaleAfter = 120 * time.Second

// defaultTickInterval is how often the background sweep checks for stale
// agents. A quarter of the stale window keeps the worst-case detection
// latency bounded without polling excessively.
const defaultTickInterval = 30 * time.Second

// Status is a point-in-time snapshot of one agent's presence.
type Status struct {
	Agent     string
	Online    bool
	Busy      bool
	SessionID string
	LastSeen  time.Time
}

type agentState struct {
	online    bool
	busy      bool
	sessionID string
	lastSeen  time.Time
}

// Tracker is the presence registry for all configured agents.
type Tracker struct {
	mu         sync.Mutex
	agents     map[string]*agentState
	staleAfter time.Duration
	tick       time.Duration

	store  *store.Store
	logger *slog.Logger

	onChange []func(Status)
}

// New returns a Tracker that posts join/leave messages to st and notifies
// onChange callbacks of every online/busy transition.
func New(st *store.Store, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		agents:     map[string]*agentState{},
		staleAfter: DefaultStaleAfter,
		tick:       defaultTickInterval,
		store:      st,
		logger:     logger,
	}
}

// OnChange registers fn to be called (synchronously, from the sweep or
// Touch goroutine) whenever an agent's online or busy state changes.
func (t *Tracker) OnChange(fn func(Status)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = append(t.onChange, fn)
}

// Touch records agent activity, marking it online and refreshing its
// last-seen timestamp. sessionID identifies the current wrapper session,
// used to detect a reattached agent after a restart.
func (t *Tracker) Touch(agent, sessionID string) {
	t.mu.Lock()
	st, transitioned := t.markOnline(agent, sessionID)
	t.mu.Unlock()

	if transitioned {
		t.emitJoin(agent)
		t.fire(st)
	}
}

func (t *Tracker) markOnline(agent, sessionID string) (Status, bool) {
	s, ok := t.agents[agent]
	if !ok {
		s = &agentState{}
		t.agents[agent] = s
	}
	wasOffline := !s.online
	s.online = true
	s.sessionID = sessionID
	s.lastSeen = time.Now()
	if wasOffline {
		metrics.ActiveAgents.Inc()
	}
	return snapshot(agent, s), wasOffline
}

// SetBusy updates the busy flag for agent, notifying observers on change.
func (t *Tracker) SetBusy(agent string, busy bool) {
	t.mu.Lock()
	s, ok := t.agents[agent]
	if !ok {
		s = &agentState{online: true, lastSeen: time.Now()}
		t.agents[agent] = s
	}
	changed := s.busy != busy
	s.busy = busy
	st := snapshot(agent, s)
	t.mu.Unlock()

	if changed {
		t.fire(st)
	}
}

// Get returns the current status of agent.
func (t *Tracker) Get(agent string) (Status, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.agents[agent]
	if !ok {
		return Status{}, false
	}
	return snapshot(agent, s), true
}

// List returns the status of every known agent.
func (t *Tracker) List() []Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Status, 0, len(t.agents))
	for agent, s := range t.agents {
		out = append(out, snapshot(agent, s))
	}
	return out
}

// Run blocks, sweeping for stale agents every tick interval until ctx is
// cancelled.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

func (t *Tracker) sweep() {
	now := time.Now()
	var offline []string

	t.mu.Lock()
	for agent, s := range t.agents {
		if s.online && now.Sub(s.lastSeen) > t.staleAfter {
			s.online = false
			s.busy = false
			offline = append(offline, agent)
			metrics.ActiveAgents.Dec()
		}
	}
	t.mu.Unlock()

	for _, agent := range offline {
		t.emitLeave(agent)
		st, _ := t.Get(agent)
		t.fire(st)
	}
}

func (t *Tracker) fire(st Status) {
	t.mu.Lock()
	cbs := append([]func(Status){}, t.onChange...)
	t.mu.Unlock()
	for _, cb := range cbs {
		cb(st)
	}
}

func (t *Tracker) emitJoin(agent string) {
	if t.store == nil {
		return
	}
	if _, err := t.store.Append(store.Message{
		Sender:  agent,
		Channel: validate.DefaultChannel,
		Text:    agent + " joined",
		Type:    store.TypeJoin,
	}); err != nil {
		t.logger.Warn("failed to record join message", "agent", agent, "error", err)
	}
}

// emitLeave posts a synthetic leave to every live channel, not just
// general: an agent that goes offline mid-conversation in #dev should not
// look like it silently vanished from that channel (spec.md §4.2).
func (t *Tracker) emitLeave(agent string) {
	if t.store == nil {
		return
	}
	channels := t.store.ListChannels()
	if len(channels) == 0 {
		channels = []store.Channel{{Name: validate.DefaultChannel}}
	}
	for _, ch := range channels {
		if _, err := t.store.Append(store.Message{
			Sender:  agent,
			Channel: ch.Name,
			Text:    agent + " left",
			Type:    store.TypeLeave,
		}); err != nil {
			t.logger.Warn("failed to record leave message", "agent", agent, "channel", ch.Name, "error", err)
		}
	}
}

func snapshot(agent string, s *agentState) Status {
	return Status{
		Agent:     agent,
		Online:    s.online,
		Busy:      s.busy,
		SessionID: s.sessionID,
		LastSeen:  s.lastSeen,
	}
}
