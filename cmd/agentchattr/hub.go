package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/agentchattr/agentchattr/internal/config"
	"github.com/agentchattr/agentchattr/internal/hubserver"
	"github.com/agentchattr/agentchattr/internal/logging"
)

func runHub(args []string) error {
	fs := flag.NewFlagSet("hub", flag.ExitOnError)
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

	logging.PrintBanner("hub", version, cfg.Addr())

	server, err := hubserver.NewServer(hubserver.ServerConfig{Config: cfg, AllowNetwork: *allowNetwork}, nil)
	if err != nil {
		return fmt.Errorf("create hub server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.Serve(ctx)
}
