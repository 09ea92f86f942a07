// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package client submits activities to an activityq server and
// retrieves their outcomes.
//
// Submission is asynchronous: Put returns a task id as soon as the
// task is queued, and Get reports the outcome once a worker has
// finished it. Wait wraps Get in a poll loop for callers that want to
// block. Protocol-level answers that are not results map to sentinel
// errors (ErrQueueIsFull, ErrTaskIDNotFound, ErrTaskNotCompleted) for
// use with errors.Is.
package client
