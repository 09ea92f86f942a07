// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/activityq/lib/activity"
	"github.com/bureau-foundation/activityq/lib/clock"
	"github.com/bureau-foundation/activityq/lib/codec"
	"github.com/bureau-foundation/activityq/lib/protocol"
	"github.com/bureau-foundation/activityq/lib/queue"
)

// Source hands out tasks. *queue.Queue implements it.
type Source interface {
	Dequeue(ctx context.Context) (queue.Task, error)
}

// Sink receives outcomes. *results.Store implements it.
type Sink interface {
	Complete(taskID string, outcome activity.Data)
}

// Config configures a Pool.
type Config struct {
	// Workers is the number of slots, each running one worker process.
	Workers int

	// TaskTimeout bounds a single task. A worker that exceeds it is
	// killed and the task completes with ActivityProcessingTimeout.
	TaskTimeout time.Duration

	// TasksBeforeRestart replaces a worker process after it has
	// completed this many tasks. Zero disables counter-based restarts.
	TasksBeforeRestart int

	// Command and Args start a worker process. Env is appended to the
	// server's environment.
	Command string
	Args    []string
	Env     []string

	// Stderr receives worker process logs. Defaults to os.Stderr.
	Stderr io.Writer

	// StartTimeout bounds how long a new worker process may take to
	// report ready. Defaults to 30 seconds.
	StartTimeout time.Duration

	// StopTimeout is how long a worker process gets to exit after its
	// stdin is closed before it is killed. Defaults to 5 seconds.
	StopTimeout time.Duration

	// RespawnInterval is the minimum average interval between worker
	// process starts in one slot. Defaults to one second.
	RespawnInterval time.Duration

	// MaxFrameSize bounds outcome frames read from a worker process.
	// It should match the worker's own task frame limit. Defaults to
	// codec.DefaultMaxFrameSize.
	MaxFrameSize int

	// Clock stamps dequeue times, which share a time base with
	// queue.Task.SubmittedAt. Defaults to the real clock.
	Clock clock.Clock
}

func (c *Config) applyDefaults() {
	if c.Stderr == nil {
		c.Stderr = os.Stderr
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = 30 * time.Second
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 5 * time.Second
	}
	if c.RespawnInterval <= 0 {
		c.RespawnInterval = time.Second
	}
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = codec.DefaultMaxFrameSize
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.TaskTimeout <= 0 {
		errs = append(errs, fmt.Errorf("task timeout must be positive, got %v", c.TaskTimeout))
	}
	if c.TasksBeforeRestart < 0 {
		errs = append(errs, fmt.Errorf("tasks before restart must not be negative, got %d", c.TasksBeforeRestart))
	}
	if c.Command == "" {
		errs = append(errs, errors.New("worker command is required"))
	}
	return errors.Join(errs...)
}

// Pool runs a fixed number of worker slots that pull tasks from a
// Source and push outcomes to a Sink.
type Pool struct {
	config Config
	source Source
	sink   Sink
	logger *slog.Logger
	slots  []*slot
}

// New validates config and returns a pool. Nothing is started until
// Run.
func New(config Config, source Source, sink Sink, logger *slog.Logger) (*Pool, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid pool configuration: %w", err)
	}

	pool := &Pool{
		config: config,
		source: source,
		sink:   sink,
		logger: logger,
	}
	for index := range config.Workers {
		pool.slots = append(pool.slots, newSlot(pool, index))
	}
	return pool, nil
}

// Run starts every slot and blocks until ctx is done and all slots
// have stopped. A slot busy with a task when ctx is cancelled finishes
// it (or times out) first, then stops its worker process.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("worker pool starting",
		"workers", p.config.Workers,
		"task_timeout", p.config.TaskTimeout,
		"tasks_before_restart", p.config.TasksBeforeRestart,
	)

	var wait sync.WaitGroup
	for _, s := range p.slots {
		wait.Add(1)
		go func() {
			defer wait.Done()
			s.run(ctx)
		}()
	}
	wait.Wait()

	p.logger.Info("worker pool stopped")
	return nil
}

// Stats returns a snapshot of every slot.
func (p *Pool) Stats() []protocol.WorkerStatus {
	stats := make([]protocol.WorkerStatus, 0, len(p.slots))
	for _, s := range p.slots {
		stats = append(stats, s.snapshot())
	}
	return stats
}
