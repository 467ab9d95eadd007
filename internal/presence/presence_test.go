package presence_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentchattr/agentchattr/internal/presence"
	"github.com/agentchattr/agentchattr/internal/store"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat.log")
	s, err := store.Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTouch_MarksOnlineAndEmitsJoinOnce(t *testing.T) {
	st := newStore(t)
	tr := presence.New(st, nil)

	tr.Touch("codex", "sess-1")
	tr.Touch("codex", "sess-1")

	status, ok := tr.Get("codex")
	require.True(t, ok)
	assert.True(t, status.Online)

	joins := 0
	for _, m := range st.Recent("general", 0) {
		if m.Type == store.TypeJoin {
			joins++
		}
	}
	assert.Equal(t, 1, joins)
}

func TestSetBusy_TogglesAndNotifies(t *testing.T) {
	st := newStore(t)
	tr := presence.New(st, nil)
	tr.Touch("codex", "sess-1")

	var seen []presence.Status
	tr.OnChange(func(s presence.Status) { seen = append(seen, s) })

	tr.SetBusy("codex", true)
	tr.SetBusy("codex", true) // no-op, should not notify again
	tr.SetBusy("codex", false)

	require.Len(t, seen, 2)
	assert.True(t, seen[0].Busy)
	assert.False(t, seen[1].Busy)
}

func TestGet_UnknownAgent(t *testing.T) {
	st := newStore(t)
	tr := presence.New(st, nil)
	_, ok := tr.Get("nobody")
	assert.False(t, ok)
}

func TestList_ReturnsAllKnownAgents(t *testing.T) {
	st := newStore(t)
	tr := presence.New(st, nil)
	tr.Touch("codex", "s1")
	tr.Touch("claude", "s2")
	assert.Len(t, tr.List(), 2)
}

func TestTouch_RecordsOnlineStatusAndFreshLastSeen(t *testing.T) {
	st := newStore(t)
	tr := presence.New(st, nil)
	tr.Touch("codex", "s1")

	// The stale window and sweep tick are unexported, so the offline sweep
	// is not exercised here; this checks what Touch records.
	status, ok := tr.Get("codex")
	require.True(t, ok)
	assert.True(t, status.Online)
	assert.WithinDuration(t, time.Now(), status.LastSeen, time.Second)
}
