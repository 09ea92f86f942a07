// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern so tests never block forever on a channel. [Eventually]
// polls state that lives in another process. [SocketPath] returns a
// short unix socket path, and [Logger] a quiet logger that can be
// turned up with ACTIVITYQ_TEST_LOG=1.
//
// All helpers fail the test instead of returning errors.
package testutil
