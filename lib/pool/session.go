// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pool

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/activityq/lib/activity"
	"github.com/bureau-foundation/activityq/lib/codec"
	"github.com/bureau-foundation/activityq/lib/process"
	"github.com/bureau-foundation/activityq/lib/protocol"
	"github.com/bureau-foundation/activityq/lib/queue"
)

// readyFrameLimit bounds the worker's first frame.
const readyFrameLimit = 64 << 10

// Session is one worker process together with the display and
// processor state living inside it. A Session is owned by a single
// slot goroutine; only Done, Context and Exited may be used from
// other goroutines.
type Session struct {
	generation   int
	pid          int
	display      string
	maxFrameSize int

	cmd    *exec.Cmd
	stdin  *os.File
	stdout *os.File

	// ctx is cancelled when the process exits.
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// exitCode is written by the reaper before done is closed.
	exitCode int

	closeStdin sync.Once

	// tasksProcessed counts tasks that completed normally in this
	// session.
	tasksProcessed int

	logger *slog.Logger
}

// startSession spawns a worker process and waits for its ready frame.
// The returned session's Context is derived from ctx.
func startSession(ctx context.Context, config Config, generation int, logger *slog.Logger) (*Session, error) {
	// The parent keeps one end of each pipe as a plain *os.File.
	// Letting exec create them would tie their lifetime to cmd.Wait,
	// which the reaper calls while a task read may still be pending.
	stdinReader, stdinWriter, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdoutReader, stdoutWriter, err := os.Pipe()
	if err != nil {
		stdinReader.Close()
		stdinWriter.Close()
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}

	cmd := exec.Command(config.Command, config.Args...)
	cmd.Env = append(os.Environ(), config.Env...)
	cmd.Stdin = stdinReader
	cmd.Stdout = stdoutWriter
	cmd.Stderr = config.Stderr
	process.Isolate(cmd)

	startErr := cmd.Start()
	// The child has its own copies now.
	stdinReader.Close()
	stdoutWriter.Close()
	if startErr != nil {
		stdinWriter.Close()
		stdoutReader.Close()
		return nil, fmt.Errorf("starting worker process %s: %w", config.Command, startErr)
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	session := &Session{
		generation:   generation,
		pid:          cmd.Process.Pid,
		maxFrameSize: config.MaxFrameSize,
		cmd:          cmd,
		stdin:        stdinWriter,
		stdout:       stdoutReader,
		ctx:          sessionCtx,
		cancel:       cancel,
		done:         make(chan struct{}),
		logger:       logger.With("pid", cmd.Process.Pid, "generation", generation),
	}

	// Reap the process so it never lingers as a zombie, and make its
	// exit observable to an idle slot through Context. Whatever the
	// worker started is still in its process group; sweep the group
	// while the unreaped leader keeps the group id from being reused.
	go func() {
		if err := process.WaitExited(session.pid); err != nil {
			session.logger.Error("observing worker process exit", "error", err)
		} else if err := process.KillGroup(session.pid); err != nil {
			session.logger.Error("removing worker process group", "error", err)
		}
		waitErr := cmd.Wait()
		session.exitCode = process.ExitCode(waitErr)
		close(session.done)
		cancel()
		session.logger.Debug("worker process exited", "exit_code", session.exitCode)
	}()

	type readyResult struct {
		ready protocol.WorkerReady
		err   error
	}
	readyCh := make(chan readyResult, 1)
	go func() {
		var ready protocol.WorkerReady
		err := codec.ReadFrame(stdoutReader, readyFrameLimit, &ready)
		readyCh <- readyResult{ready: ready, err: err}
	}()

	timer := time.NewTimer(config.StartTimeout)
	defer timer.Stop()

	select {
	case result := <-readyCh:
		if result.err != nil {
			session.Stop(0)
			return nil, fmt.Errorf("worker process %d did not become ready (exit code %d): %w",
				session.pid, session.exitCode, result.err)
		}
		session.display = result.ready.Display
	case <-timer.C:
		session.Stop(0)
		return nil, fmt.Errorf("worker process %d not ready after %v", session.pid, config.StartTimeout)
	case <-ctx.Done():
		session.Stop(0)
		return nil, ctx.Err()
	}

	session.logger.Info("worker session started", "display", session.display)
	return session, nil
}

// Context is cancelled when the worker process exits or the pool
// stops.
func (s *Session) Context() context.Context { return s.ctx }

// Done is closed once the worker process has exited and been reaped.
func (s *Session) Done() <-chan struct{} { return s.done }

// Exited reports whether the worker process has exited.
func (s *Session) Exited() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Run sends task to the worker process and waits at most timeout for
// its outcome. ConsumedTime is left for the caller to fill in. The
// boolean reports whether the session must be discarded: the worker
// timed out, died, or reported a fault. On timeout the process group
// is killed before Run returns.
func (s *Session) Run(task queue.Task, timeout time.Duration) (activity.Data, bool) {
	message := protocol.WorkerTask{
		TaskID:                task.ID,
		Payload:               task.Payload,
		Compression:           task.Compression,
		Size:                  task.Size,
		Digest:                task.Digest,
		Password:              task.Password,
		NetStabilizationDelay: task.NetStabilizationDelay,
		Timeout:               timeout,
	}

	type exchange struct {
		outcome protocol.WorkerOutcome
		err     error
	}
	// Buffered so the exchange goroutine can always finish: after a
	// timeout the kill closes the pipe and unblocks its read.
	exchanged := make(chan exchange, 1)
	go func() {
		if err := codec.WriteFrame(s.stdin, message); err != nil {
			exchanged <- exchange{err: err}
			return
		}
		var outcome protocol.WorkerOutcome
		err := codec.ReadFrame(s.stdout, s.maxFrameSize, &outcome)
		exchanged <- exchange{outcome: outcome, err: err}
	}()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case result := <-exchanged:
		if result.err != nil {
			s.logger.Warn("worker process failed during task",
				"task_id", task.ID,
				"error", result.err,
			)
			s.kill()
			return activity.Failed(activity.ProcessorCrashed, 0), true
		}
		return s.interpret(task.ID, result.outcome)
	case <-deadline:
		s.logger.Warn("task timed out, killing worker process",
			"task_id", task.ID,
			"timeout", timeout,
		)
		s.kill()
		return activity.Failed(activity.ProcessingTimeout, 0), true
	}
}

func (s *Session) interpret(taskID string, outcome protocol.WorkerOutcome) (activity.Data, bool) {
	if outcome.TaskID != taskID {
		s.logger.Error("worker answered for the wrong task",
			"task_id", taskID,
			"answered", outcome.TaskID,
		)
		return activity.Failed(activity.Unexpected, 0), true
	}
	if outcome.Error != "" {
		if outcome.Error == activity.Unexpected {
			s.logger.Warn("processor fault", "task_id", taskID, "detail", outcome.Detail)
		}
		if !outcome.Error.Valid() {
			return activity.Failed(activity.Unexpected, 0), true
		}
		return activity.Failed(outcome.Error, 0), outcome.Error.ForcesRestart()
	}
	return activity.Succeeded(outcome.Result, 0), false
}

// kill terminates the worker's whole process group. Once the leader
// has been reaped its pid may be reused, so a reaped session is left
// alone.
func (s *Session) kill() {
	if s.Exited() {
		return
	}
	if err := process.KillGroup(s.pid); err != nil {
		s.logger.Error("killing worker process group", "error", err)
	}
}

// Stop ends the session. The worker is asked to exit by closing its
// stdin. If it is still running after half of grace its process group
// gets SIGTERM, and after the rest of grace SIGKILL. Stop returns once
// the process has been reaped.
func (s *Session) Stop(grace time.Duration) {
	s.closeStdin.Do(func() { s.stdin.Close() })

	if grace > 0 && !s.waitExit(grace/2) {
		s.logger.Warn("worker process ignored stdin close, terminating", "grace", grace)
		if !s.Exited() {
			if err := process.SignalGroup(s.pid, unix.SIGTERM); err != nil {
				s.logger.Error("terminating worker process group", "error", err)
			}
		}
		if !s.waitExit(grace - grace/2) {
			s.logger.Warn("worker process ignored SIGTERM, killing")
		}
	}
	s.kill()
	<-s.done
	s.stdout.Close()
}

// waitExit reports whether the process exits within d.
func (s *Session) waitExit(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.done:
		return true
	case <-timer.C:
		return false
	}
}
