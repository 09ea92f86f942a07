// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers and the process
// group plumbing used to supervise worker processes.
//
// [Fatal] reports an unrecoverable error from main() before or after
// the structured logger exists.
//
// [Isolate] makes a worker process lead its own process group and
// receive SIGKILL if its parent dies. The worker starts its own
// children (the virtual display, external processor commands) with
// [Attach], which leaves them in that group. [KillGroup] then removes
// the worker and everything it started together. [WaitExited] lets a
// supervisor sweep the group after the leader exits, before the
// leader's pid is released.
package process
