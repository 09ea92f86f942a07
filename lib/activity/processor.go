// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package activity

import (
	"context"
	"time"
)

// Request is one activity to process.
type Request struct {
	// Payload is the uncompressed activity file.
	Payload []byte

	// Password opens a protected activity. Nil means none was given,
	// which is distinct from an empty password.
	Password *string

	// NetStabilizationDelay is how long to let the simulated network
	// converge before reading the completion percentage.
	NetStabilizationDelay time.Duration

	// Display is the X display the processor should render on.
	Display string
}

// Processor opens activity files. A Processor instance belongs to a
// single session and is used by one goroutine at a time. Process must
// return promptly once ctx is done.
type Processor interface {
	// Process returns the result map for req, or an *Error for a
	// domain failure. Any other error is a processor fault.
	Process(ctx context.Context, req Request) (map[string]any, error)

	// Close releases whatever the processor accumulated during the
	// session.
	Close() error
}
