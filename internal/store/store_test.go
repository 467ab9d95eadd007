package store_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentchattr/agentchattr/internal/store"
)

func openTemp(t *testing.T) (*store.Store, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "chat.log")
	s, err := store.Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestAppend_AssignsDenseMonotonicIDs(t *testing.T) {
	s, _ := openTemp(t)
	var ids []int64
	for i := 0; i < 5; i++ {
		m, err := s.Append(store.Message{Sender: "codex", Channel: "general", Text: "hi"})
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}
	for i, id := range ids {
		assert.EqualValues(t, i+1, id)
	}
}

func TestAppend_RejectsUnknownChannel(t *testing.T) {
	s, _ := openTemp(t)
	_, err := s.Append(store.Message{Sender: "codex", Channel: "nope", Text: "hi"})
	assert.Error(t, err)
}

func TestAppend_RejectsTombstonedChannel(t *testing.T) {
	s, _ := openTemp(t)
	_, err := s.CreateChannel("dev")
	require.NoError(t, err)
	require.NoError(t, s.DeleteChannel("dev"))

	_, err = s.Append(store.Message{Sender: "codex", Channel: "dev", Text: "hi"})
	assert.Error(t, err)
}

func TestDelete_HidesFromRecentAndSince(t *testing.T) {
	s, _ := openTemp(t)
	m1, _ := s.Append(store.Message{Sender: "a", Channel: "general", Text: "one"})
	m2, _ := s.Append(store.Message{Sender: "a", Channel: "general", Text: "two"})

	require.NoError(t, s.Delete([]int64{m1.ID}))

	recent := s.Recent("general", 0)
	require.Len(t, recent, 1)
	assert.Equal(t, m2.ID, recent[0].ID)

	since := s.Since(0, "general")
	require.Len(t, since, 1)
	assert.Equal(t, m2.ID, since[0].ID)
}

func TestSince_CursorSkipsDeletedWithoutGap(t *testing.T) {
	s, _ := openTemp(t)
	m1, _ := s.Append(store.Message{Sender: "a", Channel: "general", Text: "one"})
	m2, _ := s.Append(store.Message{Sender: "a", Channel: "general", Text: "two"})
	m3, _ := s.Append(store.Message{Sender: "a", Channel: "general", Text: "three"})
	require.NoError(t, s.Delete([]int64{m2.ID}))

	out := s.Since(m1.ID, "")
	require.Len(t, out, 1)
	assert.Equal(t, m3.ID, out[0].ID)
}

func TestObserve_FiresSynchronouslyAfterWrite(t *testing.T) {
	s, _ := openTemp(t)
	var got store.Message
	s.Observe(store.EventMessage, func(kind store.EventKind, payload interface{}) {
		got = payload.(store.Message)
	})
	m, err := s.Append(store.Message{Sender: "a", Channel: "general", Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
}

func TestChannels_CreateRenameDelete(t *testing.T) {
	s, _ := openTemp(t)
	_, err := s.CreateChannel("dev")
	require.NoError(t, err)

	_, err = s.RenameChannel("dev", "dev2")
	require.NoError(t, err)

	names := func() []string {
		var out []string
		for _, c := range s.ListChannels() {
			out = append(out, c.Name)
		}
		return out
	}
	assert.Contains(t, names(), "dev2")
	assert.NotContains(t, names(), "dev")

	require.NoError(t, s.DeleteChannel("dev2"))
	assert.NotContains(t, names(), "dev2")
}

func TestChannels_RenameRoundTripPreservesMessageChannelField(t *testing.T) {
	s, _ := openTemp(t)
	_, err := s.CreateChannel("dev")
	require.NoError(t, err)
	m, err := s.Append(store.Message{Sender: "a", Channel: "dev", Text: "hi"})
	require.NoError(t, err)

	_, err = s.RenameChannel("dev", "dev2")
	require.NoError(t, err)
	_, err = s.RenameChannel("dev2", "dev")
	require.NoError(t, err)

	found := s.Recent("dev", 0)
	require.Len(t, found, 1)
	assert.Equal(t, m.ID, found[0].ID)
	assert.Equal(t, "dev", found[0].Channel)
}

func TestChannels_GeneralIsImmutable(t *testing.T) {
	s, _ := openTemp(t)
	_, err := s.RenameChannel("general", "whatever")
	assert.Error(t, err)
	assert.Error(t, s.DeleteChannel("general"))
}

func TestDecisions_CapEvictsOldestProposed(t *testing.T) {
	s, _ := openTemp(t)
	var first store.Decision
	for i := 0; i < store.MaxDecisions; i++ {
		d, err := s.AddDecision("codex", "decision text", "")
		require.NoError(t, err)
		if i == 0 {
			first = d
		}
	}
	_, err := s.AddDecision("codex", "one more", "")
	require.NoError(t, err)

	list := s.ListDecisions()
	assert.Len(t, list, store.MaxDecisions)
	for _, d := range list {
		assert.NotEqual(t, first.ID, d.ID)
	}
}

func TestDecisions_RejectsWhenFullAndAllApproved(t *testing.T) {
	s, _ := openTemp(t)
	for i := 0; i < store.MaxDecisions; i++ {
		d, err := s.AddDecision("codex", "decision text", "")
		require.NoError(t, err)
		_, err = s.ApproveDecision(d.ID)
		require.NoError(t, err)
	}
	_, err := s.AddDecision("codex", "overflow", "")
	assert.Error(t, err)
}

func TestDecisions_TextLengthBoundary(t *testing.T) {
	s, _ := openTemp(t)
	ok := make([]byte, store.MaxDecisionTextLen)
	for i := range ok {
		ok[i] = 'a'
	}
	_, err := s.AddDecision("codex", string(ok), "")
	assert.NoError(t, err)

	tooLong := append(ok, 'a')
	_, err = s.AddDecision("codex", string(tooLong), "")
	assert.Error(t, err)
}

func TestPins_ClearedWhenMessageDeleted(t *testing.T) {
	s, _ := openTemp(t)
	m, err := s.Append(store.Message{Sender: "a", Channel: "general", Text: "todo item"})
	require.NoError(t, err)
	require.NoError(t, s.SetPin(m.ID, store.PinTodo))
	require.Len(t, s.ListPins(), 1)

	require.NoError(t, s.Delete([]int64{m.ID}))
	assert.Len(t, s.ListPins(), 0)
}

func TestSettings_RoundTrip(t *testing.T) {
	s, _ := openTemp(t)
	require.NoError(t, s.SetSetting("hat:codex", "reviewer"))
	raw, ok := s.GetSetting("hat:codex")
	require.True(t, ok)
	assert.JSONEq(t, `"reviewer"`, string(raw))
}

func TestReplay_RebuildsStateAcrossReopen(t *testing.T) {
	s, path := openTemp(t)
	_, err := s.CreateChannel("dev")
	require.NoError(t, err)
	m, err := s.Append(store.Message{Sender: "a", Channel: "dev", Text: "hi"})
	require.NoError(t, err)
	require.NoError(t, s.SetPin(m.ID, store.PinDone))
	d, err := s.AddDecision("a", "ship it", "")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := store.Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	recent := reopened.Recent("dev", 0)
	require.Len(t, recent, 1)
	assert.Equal(t, m.Text, recent[0].Text)

	pins := reopened.ListPins()
	require.Len(t, pins, 1)
	assert.Equal(t, store.PinDone, pins[0].Status)

	decisions := reopened.ListDecisions()
	require.Len(t, decisions, 1)
	assert.Equal(t, d.Text, decisions[0].Text)
}

func TestReplay_SkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chat.log")
	good, err := store.Open(path, nil)
	require.NoError(t, err)
	_, err = good.Append(store.Message{Sender: "a", Channel: "general", Text: "one"})
	require.NoError(t, err)
	require.NoError(t, good.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened, err := store.Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	assert.Len(t, reopened.Recent("general", 0), 1)
}
