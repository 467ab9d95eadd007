package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/agentchattr/agentchattr/internal/config"
	"github.com/agentchattr/agentchattr/internal/hubserver"
	"github.com/agentchattr/agentchattr/internal/logging"
)

// runStandalone is the typical local developer entry point: the chat hub
// and every configured agent's wrapper run together in one process
// (spec.md §6 "a bare invocation ... runs standalone mode").
func runStandalone(args []string) error {
	fs := flag.NewFlagSet("agentchattr", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "path to config.toml")
	allowNetwork := fs.Bool("allow-network", false, "permit binding a non-loopback host")
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

	logging.PrintBanner("standalone", version, cfg.Addr())

	server, err := hubserver.NewServer(hubserver.ServerConfig{Config: cfg, AllowNetwork: *allowNetwork}, nil)
	if err != nil {
		return fmt.Errorf("create hub server: %w", err)
	}

	// NewServer resolves/persists the session token synchronously, so it's
	// already on disk by the time the wrappers need it.
	if err := resolveAccessToken(cfg); err != nil {
		return fmt.Errorf("resolve session token: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	hubErrCh := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		hubErrCh <- server.Serve(ctx)
	}()

	if err := waitForHub(ctx, cfg.ServerStartedAtPath()); err != nil {
		stop()
		wg.Wait()
		return fmt.Errorf("wait for hub startup: %w", err)
	}

	names, err := selectedAgents(cfg, "")
	if err != nil {
		stop()
		wg.Wait()
		return err
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := runSupervisors(ctx, cfg, names); err != nil {
			hubErrCh <- err
		}
	}()

	select {
	case err := <-hubErrCh:
		stop()
		wg.Wait()
		return err
	case <-ctx.Done():
		wg.Wait()
		return nil
	}
}

// waitForHub polls until the hub's startup marker file exists (max ~5s).
func waitForHub(ctx context.Context, startedAtPath string) error {
	for i := 0; i < 50; i++ {
		if _, err := os.Stat(startedAtPath); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return fmt.Errorf("%s not created in time", startedAtPath)
}
