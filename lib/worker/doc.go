// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package worker is the inside of a worker process.
//
// The server starts one worker process per pool slot and talks to it
// over its stdin and stdout (see lib/protocol). A worker owns one
// session: a display and a processor instance that accumulate state
// across tasks until the server replaces the whole process. Keeping
// that state in a separate process is what lets the server bound its
// leaks, kill it on a timeout and survive its crashes.
//
// [Main] is called by cmd/activityq-worker and by tests that re-exec
// their own binary as a worker.
package worker
