// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package results holds task outcomes until clients collect them.
//
// The store knows every task id it has handed out. An id is pending
// from admission until a worker completes it, then visible for the
// configured TTL counted from completion. Reads never consume or
// extend an entry: a client may fetch the same result any number of
// times inside the window, and after it the id is indistinguishable
// from one that never existed.
package results

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/activityq/lib/activity"
	"github.com/bureau-foundation/activityq/lib/clock"
)

var (
	// ErrNotFound: the id was never issued, or its result expired.
	ErrNotFound = errors.New("task id not found")

	// ErrNotCompleted: the task is queued or being processed.
	ErrNotCompleted = errors.New("task not completed")

	// ErrDuplicateTask: Reserve was called twice for one id.
	ErrDuplicateTask = errors.New("task id already reserved")
)

type entry struct {
	submittedAt time.Time
	completed   bool
	completedAt time.Time
	outcome     activity.Data
}

// Store maps task ids to outcomes. Safe for concurrent use.
type Store struct {
	ttl    time.Duration
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	// completed counts entries with completed set, for Stats.
	completed int
}

// New returns a store retaining completed outcomes for ttl.
func New(ttl time.Duration, clock clock.Clock, logger *slog.Logger) *Store {
	return &Store{
		ttl:     ttl,
		clock:   clock,
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// Reserve registers taskID as issued and pending.
func (s *Store) Reserve(taskID string, submittedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[taskID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, taskID)
	}
	s.entries[taskID] = &entry{submittedAt: submittedAt}
	return nil
}

// Release forgets a pending reservation, used when admission fails
// after Reserve. Completed entries are left alone.
func (s *Store) Release(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[taskID]; ok && !existing.completed {
		delete(s.entries, taskID)
	}
}

// Complete records the outcome of taskID and starts its TTL. An
// outcome for an id that was never reserved is stored anyway; a
// second outcome for the same id replaces the first and restarts the
// TTL, which only happens if a worker reports twice.
func (s *Store) Complete(taskID string, outcome activity.Data) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	existing, ok := s.entries[taskID]
	if !ok {
		s.logger.Warn("completing task that was never reserved", "task_id", taskID)
		existing = &entry{submittedAt: now}
		s.entries[taskID] = existing
	}
	if existing.completed {
		s.logger.Warn("task completed twice", "task_id", taskID)
	} else {
		s.completed++
	}
	existing.completed = true
	existing.completedAt = now
	existing.outcome = outcome
}

// Get returns the outcome of taskID.
func (s *Store) Get(taskID string) (activity.Data, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entries[taskID]
	if !ok {
		return activity.Data{}, ErrNotFound
	}
	if !existing.completed {
		return activity.Data{}, ErrNotCompleted
	}
	if s.expiredLocked(existing, s.clock.Now()) {
		s.removeLocked(taskID, existing)
		return activity.Data{}, ErrNotFound
	}
	return existing.outcome, nil
}

// Sweep removes every expired outcome and returns how many it removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	removed := 0
	for taskID, existing := range s.entries {
		if existing.completed && s.expiredLocked(existing, now) {
			s.removeLocked(taskID, existing)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 {
				s.logger.Debug("expired results removed", "count", removed)
			}
		}
	}
}

// Stats returns the number of pending and completed entries.
// Completed entries past their TTL but not yet swept are included.
func (s *Store) Stats() (pending, completed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries) - s.completed, s.completed
}

func (s *Store) expiredLocked(existing *entry, now time.Time) bool {
	return now.Sub(existing.completedAt) >= s.ttl
}

func (s *Store) removeLocked(taskID string, existing *entry) {
	delete(s.entries, taskID)
	if existing.completed {
		s.completed--
	}
}
