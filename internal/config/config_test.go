package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentchattr/agentchattr/internal/config"
)

const sampleConfig = `
data_dir: ./testdata-run
server:
  port: 9100
  host: 127.0.0.1
routing:
  default: all
  max_agent_hops: 2
agents:
  claude:
    command: claude
    cwd: /tmp
    color: "#ff0000"
    label: Claude
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
agents:
  claude:
    command: claude
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8300, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "none", cfg.Routing.Default)
	assert.Equal(t, 4, cfg.Routing.MaxAgentHops)
	assert.Equal(t, 15, cfg.Monitor.AgentTaskTimeoutMinutes)
	assert.False(t, cfg.Cleanup.Enabled)
}

func TestLoad_OverridesFromFile(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "all", cfg.Routing.Default)
	assert.Equal(t, 2, cfg.Routing.MaxAgentHops)
	require.Contains(t, cfg.Agents, "claude")
	assert.Equal(t, "claude", cfg.Agents["claude"].Command)
}

func TestLoad_EnvPortOverride(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	t.Setenv("PORT", "9999")
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestLoad_AccessTokenFromEnv(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	t.Setenv("ACCESS_TOKEN", "secret-token")
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-token", cfg.AccessToken)
}

func TestValidate_RequiresAgent(t *testing.T) {
	path := writeConfig(t, `server:
  port: 8300
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	cfg.DataDir = t.TempDir()
	err = cfg.Validate()
	assert.ErrorContains(t, err, "agents")
}

func TestValidate_RejectsInvalidRoutingDefault(t *testing.T) {
	path := writeConfig(t, `
routing:
  default: sometimes
agents:
  claude:
    command: claude
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	cfg.DataDir = t.TempDir()
	err = cfg.Validate()
	assert.Error(t, err)
}

func TestIsLoopback(t *testing.T) {
	cfg := &config.Config{Server: config.Server{Host: "127.0.0.1"}}
	assert.True(t, cfg.IsLoopback())
	cfg.Server.Host = "0.0.0.0"
	assert.False(t, cfg.IsLoopback())
}

func TestPersistedPaths(t *testing.T) {
	cfg := &config.Config{DataDir: "data"}
	assert.Equal(t, filepath.Join("data", "session_token"), cfg.SessionTokenPath())
	assert.Equal(t, filepath.Join("data", "claude_queue"), cfg.AgentQueuePath("claude"))
	assert.Equal(t, filepath.Join("data", "claude_stability.log"), cfg.StabilityLogPath("claude"))
}
