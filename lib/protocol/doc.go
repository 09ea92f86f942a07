// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the messages exchanged over activityq's two
// links. Every message is one codec frame.
//
// # Client link (unix socket)
//
// A connection carries exactly one request and one response. The
// request's "kind" selects the operation:
//
//	task     TaskMessage      -> task_id | queue_is_full
//	task_id  TaskIDMessage    -> result | task_id_not_found | task_not_completed
//	status   StatusRequest    -> status
//
// Any request the server cannot decode is answered with kind "error".
// Durations are integer nanoseconds.
//
// # Worker link (stdin/stdout of a worker process)
//
// The worker announces itself with WorkerReady, then answers every
// WorkerTask with exactly one WorkerOutcome, in order, until its stdin
// is closed.
package protocol
