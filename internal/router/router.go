// Package router inspects newly stored chat messages, resolves @mentions
// to configured agents, enqueues wake-up triggers, and enforces the
// per-channel autonomous-hop cap (spec.md §4.3).
package router

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/agentchattr/agentchattr/internal/metrics"
	"github.com/agentchattr/agentchattr/internal/store"
)

// HumanSender is the fixed sender name used for the single operator.
const HumanSender = "user"

// ContinueCommand resets a channel's hop counter, same as a human message.
const ContinueCommand = "/continue"

// RoutingMode selects which human messages are forwarded to every agent
// versus only those carrying an explicit mention.
type RoutingMode string

const (
	RoutingNone RoutingMode = "none"
	RoutingAll  RoutingMode = "all"
)

// dedupWindow bounds how long a single mention of an agent within one
// message is deduplicated (spec.md §4.3 "Enqueue").
const dedupWindow = 500 * time.Millisecond

var mentionPattern = regexp.MustCompile(`@([A-Za-z0-9][A-Za-z0-9_-]*)`)

// Enqueuer is the subset of trigger.Writer the router needs, one per
// configured agent.
type Enqueuer interface {
	Enqueue(channel string) error
}

// Router wires store message notifications to per-agent trigger queues.
type Router struct {
	mu sync.Mutex

	agents  []string // configured agent names, in the order passed to New
	writers map[string]Enqueuer

	mode    RoutingMode
	maxHops int

	hops   map[string]int
	paused map[string]bool      // channel -> pause message already announced for this trip
	dedup  map[string]time.Time // key: message id + "\x00" + agent

	store  *store.Store
	logger *slog.Logger
}

// New builds a Router. agents lists every configured agent name; writers
// maps each agent name to its trigger queue writer.
func New(agents []string, writers map[string]Enqueuer, mode RoutingMode, maxHops int, st *store.Store, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		agents:  agents,
		writers: writers,
		mode:    mode,
		maxHops: maxHops,
		hops:    map[string]int{},
		paused:  map[string]bool{},
		dedup:   map[string]time.Time{},
		store:   st,
		logger:  logger,
	}
}

// Attach registers the router as an observer of st's message events.
func (r *Router) Attach(st *store.Store) {
	st.Observe(store.EventMessage, func(kind store.EventKind, payload interface{}) {
		r.Handle(payload.(store.Message))
	})
}

// Handle inspects one newly stored message and enqueues triggers for its
// resolved targets, applying the loop guard first.
func (r *Router) Handle(msg store.Message) {
	if msg.Type != store.TypeMessage {
		return
	}

	isHuman := msg.Sender == HumanSender
	trimmed := strings.TrimSpace(msg.Text)

	if isHuman && trimmed == ContinueCommand {
		r.resetHops(msg.Channel)
		return
	}

	if isHuman {
		r.resetHops(msg.Channel)
	} else if r.tripLoopGuard(msg.Channel) {
		return
	}

	targets := r.resolveTargets(msg.Sender, msg.Text, isHuman)
	if len(targets) == 0 {
		return
	}

	now := time.Now()
	r.mu.Lock()
	for k, at := range r.dedup {
		if now.Sub(at) >= dedupWindow {
			delete(r.dedup, k)
		}
	}
	r.mu.Unlock()
	for _, agent := range targets {
		key := strconv.FormatInt(msg.ID, 10) + "\x00" + agent
		r.mu.Lock()
		last, seen := r.dedup[key]
		if seen && now.Sub(last) < dedupWindow {
			r.mu.Unlock()
			continue
		}
		r.dedup[key] = now
		w := r.writers[agent]
		r.mu.Unlock()

		if w == nil {
			continue
		}
		if err := w.Enqueue(msg.Channel); err != nil {
			r.logger.Warn("failed to enqueue trigger", "agent", agent, "channel", msg.Channel, "error", err)
			continue
		}
		metrics.TriggersEnqueuedTotal.WithLabelValues(agent).Inc()
		metrics.PendingTriggers.WithLabelValues(agent).Inc()
	}

	if !isHuman {
		r.mu.Lock()
		r.hops[msg.Channel]++
		hops := r.hops[msg.Channel]
		r.mu.Unlock()
		metrics.ChannelHops.WithLabelValues(msg.Channel).Set(float64(hops))
	}
}

// tripLoopGuard reports whether msg.Channel has already hit the hop cap,
// emitting the pause system message exactly once per trip.
func (r *Router) tripLoopGuard(channel string) bool {
	r.mu.Lock()
	hops := r.hops[channel]
	tripped := r.maxHops >= 0 && hops >= r.maxHops
	firstTrip := tripped && !r.paused[channel]
	if firstTrip {
		r.paused[channel] = true
	}
	r.mu.Unlock()

	if !tripped {
		return false
	}
	if !firstTrip {
		return true
	}

	metrics.LoopGuardTrips.WithLabelValues(channel).Inc()
	if r.store != nil {
		if _, err := r.store.Append(store.Message{
			Sender:  "system",
			Channel: channel,
			Text:    "Loop guard paused #" + channel + " — type /continue to resume",
			Type:    store.TypeSystem,
		}); err != nil {
			r.logger.Warn("failed to record loop guard message", "channel", channel, "error", err)
		}
	}
	return true
}

func (r *Router) resetHops(channel string) {
	r.mu.Lock()
	r.hops[channel] = 0
	delete(r.paused, channel)
	r.mu.Unlock()
	metrics.ChannelHops.WithLabelValues(channel).Set(0)
}

// resolveTargets returns the distinct agent names that should be woken by
// msg, honoring explicit mentions, @all/@both expansion, and the default
// routing mode for human messages with no mention.
func (r *Router) resolveTargets(sender, text string, isHuman bool) []string {
	mentioned := r.resolveMentions(text)

	seen := map[string]bool{sender: true}
	var targets []string
	for _, a := range mentioned {
		if !seen[a] {
			seen[a] = true
			targets = append(targets, a)
		}
	}

	if len(targets) == 0 && isHuman && r.mode == RoutingAll {
		for _, a := range r.agents {
			if !seen[a] {
				seen[a] = true
				targets = append(targets, a)
			}
		}
	}
	return targets
}

// resolveMentions extracts @name tokens, resolves each against configured
// agents (exact match then prefix match), and expands @all/@both.
func (r *Router) resolveMentions(text string) []string {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	var out []string
	seen := map[string]bool{}
	for _, m := range matches {
		token := strings.ToLower(m[1])
		if token == "all" || token == "both" {
			for _, a := range r.agents {
				if !seen[a] {
					seen[a] = true
					out = append(out, a)
				}
			}
			continue
		}
		if agent, ok := r.resolveAgent(token); ok && !seen[agent] {
			seen[agent] = true
			out = append(out, agent)
		}
	}
	return out
}

func (r *Router) resolveAgent(token string) (string, bool) {
	for _, a := range r.agents {
		if strings.EqualFold(a, token) {
			return a, true
		}
	}
	for _, a := range r.agents {
		if strings.HasPrefix(token, strings.ToLower(a)) {
			return a, true
		}
	}
	return "", false
}
