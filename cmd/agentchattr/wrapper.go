package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/agentchattr/agentchattr/internal/config"
	"github.com/agentchattr/agentchattr/internal/logging"
	"github.com/agentchattr/agentchattr/internal/wrapper"
)

func runWrapper(args []string) error {
	fs := flag.NewFlagSet("wrapper", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "path to config.toml")
	agentFlag := fs.String("agent", "", "agent name to supervise (default: all configured agents)")
	showVersion := fs.Bool("version", false, "print version and exit")
	_ = fs.Parse(args)

	if *showVersion {
		fmt.Println(version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if err := resolveAccessToken(cfg); err != nil {
		return fmt.Errorf("resolve session token: %w", err)
	}

	names, err := selectedAgents(cfg, *agentFlag)
	if err != nil {
		return err
	}

	logging.PrintBanner("wrapper", version, strings.Join(names, ","))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runSupervisors(ctx, cfg, names)
}

// selectedAgents resolves the -agent flag (or all configured agents when
// it's empty) against cfg.Agents.
func selectedAgents(cfg *config.Config, agent string) ([]string, error) {
	if agent == "" {
		names := make([]string, 0, len(cfg.Agents))
		for name := range cfg.Agents {
			names = append(names, name)
		}
		return names, nil
	}
	if _, ok := cfg.Agents[agent]; !ok {
		return nil, fmt.Errorf("unknown agent %q", agent)
	}
	return []string{agent}, nil
}

// runSupervisors runs one wrapper.Supervisor per named agent concurrently,
// returning once every supervisor has stopped or ctx is cancelled.
func runSupervisors(ctx context.Context, cfg *config.Config, names []string) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(names))

	for _, name := range names {
		sup := wrapper.New(name, cfg.Agents[name], cfg, slog.Default())
		wg.Add(1)
		go func(agent string) {
			defer wg.Done()
			if err := sup.Run(ctx); err != nil {
				errCh <- fmt.Errorf("agent %s: %w", agent, err)
			}
		}(name)
	}

	wg.Wait()
	close(errCh)

	var firstErr error
	for err := range errCh {
		slog.Error("wrapper exited with error", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// resolveAccessToken fills cfg.AccessToken with the hub's active session
// token when it wasn't already supplied via $ACCESS_TOKEN, so the
// wrapper's MCP client authenticates the same way the browser does
// (spec.md §6 "Auth").
func resolveAccessToken(cfg *config.Config) error {
	if cfg.AccessToken != "" {
		return nil
	}
	data, err := os.ReadFile(cfg.SessionTokenPath())
	if err != nil {
		return fmt.Errorf("read %s (is the hub running?): %w", cfg.SessionTokenPath(), err)
	}
	cfg.AccessToken = strings.TrimSpace(string(data))
	return nil
}
