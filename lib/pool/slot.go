// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pool

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bureau-foundation/activityq/lib/activity"
	"github.com/bureau-foundation/activityq/lib/protocol"
	"github.com/bureau-foundation/activityq/lib/queue"
)

// Slot states reported by Stats.
const (
	StateStarting   = "starting"
	StateIdle       = "idle"
	StateBusy       = "busy"
	StateRestarting = "restarting"
	StateStopped    = "stopped"
)

// slot owns at most one live Session at a time. All session
// transitions happen on the slot's own goroutine; status is the only
// state shared with Stats.
type slot struct {
	index   int
	pool    *Pool
	limiter *rate.Limiter
	logger  *slog.Logger

	session    *Session
	generation int

	mu     sync.Mutex
	status protocol.WorkerStatus
}

func newSlot(pool *Pool, index int) *slot {
	return &slot{
		index: index,
		pool:  pool,
		// A burst of two lets a slot replace a session that failed
		// right after starting without waiting, while a worker binary
		// that dies on every start is held to the configured rate.
		limiter: rate.NewLimiter(rate.Every(pool.config.RespawnInterval), 2),
		logger:  pool.logger.With("worker", index),
		status:  protocol.WorkerStatus{Index: index, State: StateStarting},
	}
}

func (s *slot) run(ctx context.Context) {
	defer func() {
		s.discardSession()
		s.setState(StateStopped)
	}()

	for {
		if s.session == nil && !s.startSession(ctx) {
			return
		}
		s.setState(StateIdle)

		task, err := s.pool.source.Dequeue(s.session.Context())
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrQueueClosed) {
				return
			}
			s.logger.Warn("worker process exited while idle",
				"pid", s.session.pid,
				"exit_code", s.session.exitCode,
			)
			s.discardSession()
			continue
		}

		s.execute(ctx, task, s.pool.config.Clock.Now())
	}
}

// startSession spawns a worker process, retrying at the limiter's
// pace until one comes up or ctx is done.
func (s *slot) startSession(ctx context.Context) bool {
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return false
		}
		s.setState(StateStarting)
		s.generation++

		session, err := startSession(ctx, s.pool.config, s.generation, s.logger)
		if err == nil {
			s.session = session
			s.mu.Lock()
			s.status.PID = session.pid
			s.status.Display = session.display
			s.status.SessionTasks = 0
			s.status.SessionsStarted++
			s.mu.Unlock()
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		s.logger.Error("starting worker process failed", "error", err)
	}
}

// execute runs one task to completion. Every path writes exactly one
// outcome to the sink.
func (s *slot) execute(ctx context.Context, task queue.Task, dequeuedAt time.Time) {
	s.setState(StateBusy)
	started := time.Now()

	// The process may have died after Dequeue picked the task. Give
	// the task a live session rather than reporting a crash for work
	// that never started.
	if s.session.Exited() {
		s.discardSession()
		if !s.startSession(ctx) {
			s.complete(task, dequeuedAt, activity.Failed(activity.ProcessorCrashed, time.Since(started)))
			return
		}
		s.setState(StateBusy)
	}

	outcome, restart := s.session.Run(task, s.pool.config.TaskTimeout)
	outcome.ConsumedTime = time.Since(started)
	if err := outcome.Validate(); err != nil {
		s.logger.Error("discarding invalid outcome", "task_id", task.ID, "error", err)
		outcome = activity.Failed(activity.Unexpected, outcome.ConsumedTime)
		restart = true
	}
	s.complete(task, dequeuedAt, outcome)

	if restart {
		s.restart("task failure", outcome.Error)
		return
	}

	s.session.tasksProcessed++
	s.mu.Lock()
	s.status.SessionTasks = s.session.tasksProcessed
	s.mu.Unlock()

	limit := s.pool.config.TasksBeforeRestart
	if limit > 0 && s.session.tasksProcessed >= limit {
		s.restart("task limit reached", "")
	}
}

func (s *slot) complete(task queue.Task, dequeuedAt time.Time, outcome activity.Data) {
	s.pool.sink.Complete(task.ID, outcome)

	s.mu.Lock()
	s.status.TasksCompleted++
	s.mu.Unlock()

	attrs := []any{
		"task_id", task.ID,
		"digest", task.Digest.Short(),
		"consumed_time", outcome.ConsumedTime,
		"queued_for", dequeuedAt.Sub(task.SubmittedAt),
	}
	if outcome.Error != "" {
		attrs = append(attrs, "outcome", outcome.Error)
	} else {
		attrs = append(attrs, "outcome", "ok")
	}
	s.logger.Info("task completed", attrs...)
}

// restart tears the session down. The next loop iteration starts a
// fresh one with its counter at zero.
func (s *slot) restart(reason string, kind activity.ErrorKind) {
	s.setState(StateRestarting)
	attrs := []any{"reason", reason, "session_tasks", s.session.tasksProcessed}
	if kind != "" {
		attrs = append(attrs, "outcome", kind)
	}
	s.logger.Info("restarting worker session", attrs...)
	s.discardSession()
}

func (s *slot) discardSession() {
	if s.session == nil {
		return
	}
	s.session.Stop(s.pool.config.StopTimeout)
	s.session = nil

	s.mu.Lock()
	s.status.PID = 0
	s.status.Display = ""
	s.status.SessionTasks = 0
	s.mu.Unlock()
}

func (s *slot) setState(state string) {
	s.mu.Lock()
	s.status.State = state
	s.mu.Unlock()
}

func (s *slot) snapshot() protocol.WorkerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
