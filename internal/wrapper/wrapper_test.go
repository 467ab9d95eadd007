package wrapper

import (
	"crypto/sha256"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentchattr/agentchattr/internal/config"
)

// fakeSession is a minimal ptyterm.Session double for exercising
// Supervisor logic without spawning a real process.
type fakeSession struct {
	injected []string
	screen   []byte
	alive    bool
	killed   bool
}

func (f *fakeSession) Inject(text string) error {
	f.injected = append(f.injected, text)
	return nil
}
func (f *fakeSession) Resize(cols, rows uint16) error { return nil }
func (f *fakeSession) ScreenSnapshot() []byte         { return f.screen }
func (f *fakeSession) ScreenHash() [32]byte           { return sha256.Sum256(f.screen) }
func (f *fakeSession) Alive() bool                    { return f.alive }
func (f *fakeSession) Kill()                          { f.killed = true; f.alive = false }
func (f *fakeSession) Wait() int                       { return 0 }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		DataDir: dir,
		MCP: config.MCP{
			HTTPPort:          8400,
			SSEPort:           8401,
			HTTPKillThreshold: 10,
			SSEKillThreshold:  5,
		},
		Monitor: config.Monitor{AgentTaskTimeoutMinutes: 15},
	}
}

func newTestSupervisor(t *testing.T) (*Supervisor, *fakeSession) {
	t.Helper()
	cfg := testConfig(t)
	acfg := config.Agent{Command: "true"}
	w := New("codex", acfg, cfg, slog.Default())
	fs := &fakeSession{alive: true}
	w.session = fs
	return w, fs
}

func TestLockPath_IsUnderDataDir(t *testing.T) {
	w, _ := newTestSupervisor(t)
	assert.Equal(t, filepath.Join(w.cfg.DataDir, "codex.lock"), w.lockPath())
}

func TestMaybeReinject_SkipsWhenNoOutstandingPrompt(t *testing.T) {
	w, fs := newTestSupervisor(t)
	w.maybeReinject("")
	assert.Empty(t, fs.injected)
}

func TestMaybeReinject_SkipsBeforeThresholdElapsed(t *testing.T) {
	w, fs := newTestSupervisor(t)
	w.lastActivity.Store(time.Now().UnixNano())
	w.maybeReinject("mcp read #general")
	assert.Empty(t, fs.injected)
}

func TestMaybeReinject_FiresOnceAfterThreshold(t *testing.T) {
	w, fs := newTestSupervisor(t)
	w.cfg.Monitor.AgentTaskTimeoutMinutes = 1
	w.lastActivity.Store(time.Now().Add(-2 * time.Minute).UnixNano())

	w.maybeReinject("mcp read #general")
	require.Len(t, fs.injected, 1)
	assert.Equal(t, "mcp read #general", fs.injected[0])

	w.maybeReinject("mcp read #general")
	assert.Len(t, fs.injected, 1, "re-nudge fires at most once per outstanding prompt")
}

func TestMaybeReinject_ZeroThresholdDisabled(t *testing.T) {
	w, fs := newTestSupervisor(t)
	w.cfg.Monitor.AgentTaskTimeoutMinutes = 0
	w.lastActivity.Store(time.Now().Add(-time.Hour).UnixNano())
	w.maybeReinject("mcp read #general")
	assert.Empty(t, fs.injected)
}

func TestSessionKey_PrefixesAgentName(t *testing.T) {
	w, _ := newTestSupervisor(t)
	assert.Equal(t, "agentchattr-codex", w.sessionKey())
}

func TestSetState_UpdatesState(t *testing.T) {
	w, _ := newTestSupervisor(t)
	w.setState(StateRunning)
	assert.Equal(t, StateRunning, w.State())
}
