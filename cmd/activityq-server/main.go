// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Activityq-server accepts activity files on a Unix socket, processes
// them on a pool of worker processes, and keeps each outcome available
// for polling until its TTL expires.
//
// Configuration comes from built-in defaults, an optional YAML file
// (--config), and explicitly set flags, in increasing precedence. See
// --help for the full flag list.
//
// SIGINT or SIGTERM stops admission, lets in-flight tasks finish or
// time out, stops the worker processes, and removes the socket.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/activityq/lib/clock"
	"github.com/bureau-foundation/activityq/lib/config"
	"github.com/bureau-foundation/activityq/lib/process"
	"github.com/bureau-foundation/activityq/lib/version"
)

// workerBinaryName is looked up next to the server binary, then on
// PATH, when no worker binary is configured.
const workerBinaryName = "activityq-worker"

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)
	flags := pflag.NewFlagSet("activityq-server", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "YAML configuration file")
	flags.BoolVar(&showVersion, "version", false, "print version information and exit")
	binding := config.BindFlags(flags)
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("activityq-server %s\n", version.Full())
		return nil
	}

	cfg, err := binding.Resolve(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	workerBinary, err := resolveWorkerBinary(cfg.WorkerBinary)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := newServer(cfg, serverOptions{
		WorkerCommand: workerBinary,
		Clock:         clock.Real(),
	}, logger)
	if err != nil {
		return err
	}

	logger.Info("activityq server starting",
		"version", version.Info(),
		"socket", cfg.UnixSocket,
		"workers", cfg.Workers,
		"queue_size", cfg.QueueSize,
		"processor", cfg.Processor,
		"worker_binary", workerBinary,
	)
	return server.Run(ctx)
}

// resolveWorkerBinary returns configured when set, otherwise the
// worker binary installed alongside this executable or on PATH.
func resolveWorkerBinary(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if executable, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(executable), workerBinaryName)
		if info, err := os.Stat(sibling); err == nil && !info.IsDir() {
			return sibling, nil
		}
	}
	path, err := exec.LookPath(workerBinaryName)
	if err != nil {
		return "", fmt.Errorf("%s not found next to the server or on PATH; set --worker-binary", workerBinaryName)
	}
	return path, nil
}
