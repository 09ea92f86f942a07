// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

// SocketPath returns a path for a unix socket inside a fresh directory
// under /tmp. t.TempDir() can exceed the 108-byte sun_path limit when
// the test name is long, so socket tests use this instead. The
// directory is removed when the test completes.
func SocketPath(t *testing.T) string {
	t.Helper()
	directory, err := os.MkdirTemp("/tmp", "activityq-test-*")
	if err != nil {
		t.Fatalf("creating socket directory: %v", err)
	}
	t.Cleanup(func() {
		_ = os.RemoveAll(directory)
	})
	return filepath.Join(directory, "activityq.sock")
}

// Logger returns a logger for components under test. Output is
// discarded unless ACTIVITYQ_TEST_LOG is set, in which case debug
// level text goes to stderr.
func Logger() *slog.Logger {
	if os.Getenv("ACTIVITYQ_TEST_LOG") == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}
