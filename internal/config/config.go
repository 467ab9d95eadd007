// Package config loads agentchattr's typed configuration from config.toml
// (parsed with koanf's YAML parser; config.toml holds nested mappings whose
// key paths match koanf's dotted keys) layered over built-in defaults and
// under environment-variable overrides, as described in spec.md §6.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Server holds the chat hub's HTTP/WebSocket listen settings.
type Server struct {
	Port int    `koanf:"port"`
	Host string `koanf:"host"`
}

// MCP holds the MCP bridge's listen settings and health-watcher thresholds.
type MCP struct {
	HTTPPort         int `koanf:"http_port"`
	SSEPort          int `koanf:"sse_port"`
	SSEKillThreshold int `koanf:"sse_kill_threshold"`
	HTTPKillThreshold int `koanf:"http_kill_threshold"`
}

// Routing holds the default mention-routing mode and the loop guard's cap.
type Routing struct {
	Default      string `koanf:"default"` // "none" or "all"
	MaxAgentHops int    `koanf:"max_agent_hops"`
}

// Agent is one configured CLI agent.
type Agent struct {
	Command    string `koanf:"command"`
	Cwd        string `koanf:"cwd"`
	Color      string `koanf:"color"`
	Label      string `koanf:"label"`
	ResumeFlag string `koanf:"resume_flag"`
}

// Monitor holds the wrapper's task-idle re-nudge threshold.
type Monitor struct {
	AgentTaskTimeoutMinutes int `koanf:"agent_task_timeout_minutes"`
}

// Cleanup holds the tombstone/retention behavior toggle.
type Cleanup struct {
	Enabled bool `koanf:"enabled"`
}

// Config is the fully-resolved, typed configuration for a run.
type Config struct {
	DataDir string           `koanf:"data_dir"`
	Server  Server           `koanf:"server"`
	MCP     MCP              `koanf:"mcp"`
	Routing Routing          `koanf:"routing"`
	Agents  map[string]Agent `koanf:"agents"`
	Monitor Monitor          `koanf:"monitor"`
	Cleanup Cleanup          `koanf:"cleanup"`

	// AccessToken, when set (via $ACCESS_TOKEN), overrides the persisted
	// session token instead of generating/loading one from disk.
	AccessToken string `koanf:"-"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"data_dir":                           "data",
		"server.port":                        8300,
		"server.host":                        "127.0.0.1",
		"mcp.http_port":                      8200,
		"mcp.sse_port":                       8201,
		"mcp.sse_kill_threshold":             5,
		"mcp.http_kill_threshold":            10,
		"routing.default":                    "none",
		"routing.max_agent_hops":             4,
		"monitor.agent_task_timeout_minutes": 15,
		"cleanup.enabled":                    false,
	}
}

// Load reads config.toml (if present) at path, layers environment overrides
// ($PORT, $ACCESS_TOKEN) on top, and returns the resolved Config.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config file %s: %w", path, err)
		}
	}

	// $PORT overrides server.port; $ACCESS_TOKEN is read out-of-band below
	// since it does not live under the koanf tree (it overrides a
	// persisted file, not a config field).
	if err := k.Load(env.Provider("", ".", func(s string) string {
		if s == "PORT" {
			return "server.port"
		}
		return ""
	}), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.AccessToken = os.Getenv("ACCESS_TOKEN")

	return &cfg, nil
}

// Validate checks the configuration for structural errors and ensures the
// data directory exists. A failure here is a Fatal error per spec.md §7.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be positive, got %d", c.Server.Port)
	}
	if c.Routing.Default != "none" && c.Routing.Default != "all" {
		return fmt.Errorf("routing.default must be %q or %q, got %q", "none", "all", c.Routing.Default)
	}
	if c.Routing.MaxAgentHops < 0 {
		return fmt.Errorf("routing.max_agent_hops must be >= 0, got %d", c.Routing.MaxAgentHops)
	}
	if len(c.Agents) == 0 {
		return fmt.Errorf("at least one [agents.<name>] section is required")
	}
	for name, a := range c.Agents {
		if a.Command == "" {
			return fmt.Errorf("agents.%s.command is required", name)
		}
	}
	if err := os.MkdirAll(c.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}

// Addr returns the "host:port" listen address for the chat hub.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}

// IsLoopback reports whether the configured host is a loopback address.
func (c *Config) IsLoopback() bool {
	switch c.Server.Host {
	case "127.0.0.1", "localhost", "::1", "":
		return true
	default:
		return false
	}
}

// Persisted file paths under data/, per spec.md §6.

func (c *Config) path(name string) string {
	return c.DataDir + string(os.PathSeparator) + name
}

// SessionTokenPath returns the path to the active session token file.
func (c *Config) SessionTokenPath() string { return c.path("session_token") }

// ServerStartedAtPath returns the path to the file written on each hub startup.
func (c *Config) ServerStartedAtPath() string { return c.path("server_started_at") }

// ChatLogPath returns the path to the store's append-only log.
func (c *Config) ChatLogPath() string { return c.path("chat_log") }

// AgentQueuePath returns the path to an agent's trigger queue file.
func (c *Config) AgentQueuePath(agent string) string { return c.path(agent + "_queue") }

// StabilityLogPath returns the path to an agent's tagged stability log.
func (c *Config) StabilityLogPath(agent string) string { return c.path(agent + "_stability.log") }

// WrapperLogPath returns the path to an agent's free-form wrapper log.
func (c *Config) WrapperLogPath(agent string) string { return c.path(agent + "_wrapper.log") }

// UploadsDir returns the directory image attachments are stored under.
func (c *Config) UploadsDir() string { return c.path("uploads") }
