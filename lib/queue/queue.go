// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package queue implements the admission queue: a bounded FIFO of
// submitted tasks between the socket listener and the worker pool.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/activityq/lib/activity"
	"github.com/bureau-foundation/activityq/lib/compress"
)

// ErrQueueFull is returned by Enqueue when the queue is at capacity.
var ErrQueueFull = errors.New("queue is full")

// ErrQueueClosed is returned by Enqueue and Dequeue after Close.
var ErrQueueClosed = errors.New("queue is closed")

// Task is a submitted activity waiting for a worker.
type Task struct {
	ID string

	// Payload is compressed with Compression. Size and Digest
	// describe the uncompressed bytes.
	Payload     []byte
	Compression compress.Tag
	Size        int
	Digest      activity.Digest

	Password              *string
	NetStabilizationDelay time.Duration
	SubmittedAt           time.Time
}

// Queue is a bounded FIFO. Enqueue never blocks; Dequeue blocks until
// a task arrives. Safe for concurrent use.
type Queue struct {
	tasks  chan Task
	logger *slog.Logger

	// mu guards closed against concurrent sends: Enqueue sends under
	// the read lock, Close takes the write lock before closing the
	// channel.
	mu     sync.RWMutex
	closed bool
}

// New returns a queue holding at most size tasks. Panics if size < 1.
func New(size int, logger *slog.Logger) *Queue {
	if size < 1 {
		panic(fmt.Sprintf("queue: invalid size %d", size))
	}
	return &Queue{
		tasks:  make(chan Task, size),
		logger: logger,
	}
}

// Enqueue appends task without blocking. When the queue is at
// capacity it returns an error wrapping ErrQueueFull and the queue is
// left unchanged.
func (q *Queue) Enqueue(task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.tasks <- task:
		q.logger.Debug("task queued",
			"task_id", task.ID,
			"digest", task.Digest.Short(),
			"queue_length", len(q.tasks),
		)
		return nil
	default:
		return fmt.Errorf("%w: capacity %d reached", ErrQueueFull, cap(q.tasks))
	}
}

// Dequeue removes and returns the oldest task, blocking until one is
// available, ctx is done, or the queue is closed and drained.
func (q *Queue) Dequeue(ctx context.Context) (Task, error) {
	select {
	case task, ok := <-q.tasks:
		if !ok {
			return Task{}, ErrQueueClosed
		}
		return task, nil
	case <-ctx.Done():
		return Task{}, ctx.Err()
	}
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int { return len(q.tasks) }

// Cap returns the queue's capacity.
func (q *Queue) Cap() int { return cap(q.tasks) }

// Close stops admission and returns the tasks that were still queued.
// Subsequent Dequeue calls return ErrQueueClosed. Close is idempotent.
func (q *Queue) Close() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.tasks)

	var abandoned []Task
	for task := range q.tasks {
		abandoned = append(abandoned, task)
	}
	return abandoned
}
