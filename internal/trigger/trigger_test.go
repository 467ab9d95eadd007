package trigger_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentchattr/agentchattr/internal/trigger"
)

func TestWriterReader_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codex_queue")
	w, err := trigger.NewWriter(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	r, err := trigger.NewReader(path)
	require.NoError(t, err)

	require.NoError(t, w.Enqueue("general"))
	require.NoError(t, w.Enqueue("dev"))

	entries, err := r.Poll()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "general", entries[0].Channel)
	assert.Equal(t, "dev", entries[1].Channel)
	assert.Equal(t, "mcp read #general", entries[0].Prompt)

	more, err := r.Poll()
	require.NoError(t, err)
	assert.Empty(t, more)
}

func TestNewReader_StartsAtEndOfExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codex_queue")
	w, err := trigger.NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Enqueue("stale"))
	require.NoError(t, w.Close())

	r, err := trigger.NewReader(path)
	require.NoError(t, err)
	entries, err := r.Poll()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTruncate_DropsStaleEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codex_queue")
	w, err := trigger.NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Enqueue("stale"))
	require.NoError(t, w.Close())

	require.NoError(t, trigger.Truncate(path))

	r, err := trigger.NewReader(path)
	require.NoError(t, err)
	entries, err := r.Poll()
	require.NoError(t, err)
	assert.Empty(t, entries)

	w2, err := trigger.NewWriter(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w2.Close() })
	require.NoError(t, w2.Enqueue("fresh"))

	entries, err = r.Poll()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "fresh", entries[0].Channel)
}
