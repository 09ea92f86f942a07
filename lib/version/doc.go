// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the activityq
// binaries. Values are injected at build time, for example:
//
//	go build -ldflags "-X github.com/bureau-foundation/activityq/lib/version.GitCommit=$(git rev-parse --short HEAD)" ./cmd/...
//
// Development builds report "0.1.0-dev (unknown, unknown)". The
// server also returns Info in its status response so clients can tell
// which build they are talking to.
package version
