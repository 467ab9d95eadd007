package router_test

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentchattr/agentchattr/internal/router"
	"github.com/agentchattr/agentchattr/internal/store"
)

type fakeEnqueuer struct {
	mu      sync.Mutex
	channels []string
}

func (f *fakeEnqueuer) Enqueue(channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, channel)
	return nil
}

func (f *fakeEnqueuer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.channels)
}

func newHarness(t *testing.T, mode router.RoutingMode, maxHops int) (*store.Store, *router.Router, map[string]*fakeEnqueuer) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat.log")
	st, err := store.Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	agents := []string{"claude", "codex", "gemini"}
	writers := map[string]*fakeEnqueuer{"claude": {}, "codex": {}, "gemini": {}}
	enqueuers := map[string]router.Enqueuer{"claude": writers["claude"], "codex": writers["codex"], "gemini": writers["gemini"]}

	r := router.New(agents, enqueuers, mode, maxHops, st, nil)
	r.Attach(st)
	return st, r, writers
}

func TestHandle_SingleMentionWakesOneAgent(t *testing.T) {
	st, _, writers := newHarness(t, router.RoutingNone, 4)

	_, err := st.Append(store.Message{Sender: router.HumanSender, Channel: "general", Text: "@claude ping"})
	require.NoError(t, err)

	assert.Equal(t, 1, writers["claude"].count())
	assert.Equal(t, 0, writers["codex"].count())
	assert.Equal(t, 0, writers["gemini"].count())
}

func TestHandle_TwoHopChainCapped(t *testing.T) {
	st, _, writers := newHarness(t, router.RoutingNone, 2)

	require.NoError(t, appendMsg(st, router.HumanSender, "dev", "@claude hi"))
	require.NoError(t, appendMsg(st, "claude", "dev", "@codex over to you"))
	require.NoError(t, appendMsg(st, "codex", "dev", "@claude done"))

	// Third agent-originated hop should be dropped; a system message is
	// emitted instead of a new trigger.
	require.NoError(t, appendMsg(st, "claude", "dev", "@codex are you there"))

	assert.Equal(t, 1, writers["codex"].count())

	sawPause := false
	for _, m := range st.Recent("dev", 0) {
		if m.Type == store.TypeSystem {
			sawPause = true
		}
	}
	assert.True(t, sawPause)

	require.NoError(t, appendMsg(st, router.HumanSender, "dev", "/continue"))
	require.NoError(t, appendMsg(st, "claude", "dev", "@codex resumed"))
	assert.Equal(t, 2, writers["codex"].count())
}

func TestHandle_LoopGuardAnnouncesPauseOnce(t *testing.T) {
	st, _, _ := newHarness(t, router.RoutingNone, 2)

	require.NoError(t, appendMsg(st, router.HumanSender, "dev", "@claude hi"))
	require.NoError(t, appendMsg(st, "claude", "dev", "@codex over to you"))
	require.NoError(t, appendMsg(st, "codex", "dev", "@claude done"))

	// First hop past the cap trips the guard and announces once.
	require.NoError(t, appendMsg(st, "claude", "dev", "@codex are you there"))
	// Further agent-originated messages must not re-announce the pause.
	require.NoError(t, appendMsg(st, "claude", "dev", "@codex still there?"))
	require.NoError(t, appendMsg(st, "claude", "dev", "@codex hello?"))

	pauses := 0
	for _, m := range st.Recent("dev", 0) {
		if m.Type == store.TypeSystem {
			pauses++
		}
	}
	assert.Equal(t, 1, pauses)
}

func TestHandle_PrefixNameResolution(t *testing.T) {
	st, _, writers := newHarness(t, router.RoutingNone, 4)
	require.NoError(t, appendMsg(st, router.HumanSender, "general", "@gemini-cli see this"))
	assert.Equal(t, 1, writers["gemini"].count())
}

func TestHandle_DefaultRoutingAllForwardsHumanMessages(t *testing.T) {
	st, _, writers := newHarness(t, router.RoutingAll, 4)
	require.NoError(t, appendMsg(st, router.HumanSender, "general", "no mention here"))
	assert.Equal(t, 1, writers["claude"].count())
	assert.Equal(t, 1, writers["codex"].count())
	assert.Equal(t, 1, writers["gemini"].count())
}

func TestHandle_DedupWithinWindow(t *testing.T) {
	st, _, writers := newHarness(t, router.RoutingNone, 4)
	require.NoError(t, appendMsg(st, router.HumanSender, "general", "@claude @claude hey"))
	assert.Equal(t, 1, writers["claude"].count())
}

func TestHandle_MaxHopsZeroPausesImmediately(t *testing.T) {
	st, _, writers := newHarness(t, router.RoutingNone, 0)
	require.NoError(t, appendMsg(st, router.HumanSender, "general", "@claude hi"))
	require.NoError(t, appendMsg(st, "claude", "general", "@codex go"))

	assert.Equal(t, 0, writers["codex"].count())
	sawPause := false
	for _, m := range st.Recent("general", 0) {
		if m.Type == store.TypeSystem {
			sawPause = true
		}
	}
	assert.True(t, sawPause)
}

func appendMsg(st *store.Store, sender, channel, text string) error {
	_, err := st.Append(store.Message{Sender: sender, Channel: channel, Text: text})
	return err
}
