// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/activityq/lib/clock"
	"github.com/bureau-foundation/activityq/lib/compress"
	"github.com/bureau-foundation/activityq/lib/config"
	"github.com/bureau-foundation/activityq/lib/pool"
	"github.com/bureau-foundation/activityq/lib/protocol"
	"github.com/bureau-foundation/activityq/lib/queue"
	"github.com/bureau-foundation/activityq/lib/results"
	"github.com/bureau-foundation/activityq/lib/service"
	"github.com/bureau-foundation/activityq/lib/worker"
)

// serverOptions carries what main resolves outside the configuration.
type serverOptions struct {
	// WorkerCommand is the worker executable.
	WorkerCommand string

	// WorkerEnv is appended to each worker process's environment.
	WorkerEnv []string

	Clock clock.Clock
}

// Server wires the admission queue, worker pool, result store and
// socket listener together.
type Server struct {
	config      *config.Config
	clock       clock.Clock
	logger      *slog.Logger
	startedAt   time.Time
	compression compress.Tag

	queue   *queue.Queue
	results *results.Store
	pool    *pool.Pool
	socket  *service.SocketServer
}

func newServer(cfg *config.Config, options serverOptions, logger *slog.Logger) (*Server, error) {
	compression, err := cfg.Compression()
	if err != nil {
		return nil, err
	}
	mode, err := cfg.FileMode()
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:      cfg,
		clock:       options.Clock,
		logger:      logger,
		startedAt:   options.Clock.Now(),
		compression: compression,
		queue:       queue.New(cfg.QueueSize, logger.With("component", "queue")),
		results:     results.New(cfg.ResultTTL.Std(), options.Clock, logger.With("component", "results")),
	}

	// Anything admitted through the socket must fit through the
	// worker pipe, in both directions.
	frameLimit := protocol.WorkerFrameLimit(cfg.MaxMessageSize)
	workerArgs := worker.Options{
		Processor:        cfg.Processor,
		ProcessorCommand: cfg.ProcessorCommand,
		VirtualDisplay:   cfg.VirtualDisplay,
		XvfbBinary:       cfg.XvfbBinary,
		LogLevel:         cfg.LogLevel,
		MaxFrameSize:     frameLimit,
	}.Args()

	s.pool, err = pool.New(pool.Config{
		Workers:            cfg.Workers,
		TaskTimeout:        cfg.ReadFileTimeout.Std(),
		TasksBeforeRestart: cfg.TasksBeforeSessionRestart,
		Command:            options.WorkerCommand,
		Args:               workerArgs,
		Env:                options.WorkerEnv,
		StartTimeout:       cfg.WorkerStartTimeout.Std(),
		MaxFrameSize:       frameLimit,
		Clock:              options.Clock,
	}, s.queue, s.results, logger.With("component", "pool"))
	if err != nil {
		return nil, err
	}

	s.socket = service.NewSocketServer(cfg.UnixSocket, service.Options{
		MaxConnections: cfg.MaxConnections,
		MaxRequestSize: cfg.MaxMessageSize,
		Mode:           mode,
	}, logger.With("component", "socket"))
	s.registerActions(s.socket)

	return s, nil
}

// sweepInterval is how often expired results are removed: a tenth of
// the TTL, between one second and one minute.
func sweepInterval(ttl time.Duration) time.Duration {
	return min(max(ttl/10, time.Second), time.Minute)
}

// Run serves until ctx is cancelled and everything has shut down. A
// listener failure at startup cancels the other components.
func (s *Server) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := s.socket.Serve(groupCtx); err != nil {
			return fmt.Errorf("socket server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		return s.pool.Run(groupCtx)
	})
	group.Go(func() error {
		s.results.Run(groupCtx, sweepInterval(s.config.ResultTTL.Std()))
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		s.logger.Info("shutting down")
		for _, task := range s.queue.Close() {
			s.results.Release(task.ID)
			s.logger.Warn("dropping queued task at shutdown",
				"task_id", task.ID,
				"digest", task.Digest.Short(),
			)
		}
		return nil
	})

	err := group.Wait()
	s.logger.Info("activityq server stopped")
	return err
}

// Ready is closed once the socket is accepting connections.
func (s *Server) Ready() <-chan struct{} { return s.socket.Ready() }
