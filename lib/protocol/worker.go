// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"time"

	"github.com/bureau-foundation/activityq/lib/activity"
	"github.com/bureau-foundation/activityq/lib/compress"
)

// WorkerReady is the first frame a worker process writes, once its
// display and processor are up.
type WorkerReady struct {
	PID     int    `cbor:"pid"`
	Display string `cbor:"display,omitempty"`
}

// WorkerTask hands one activity to a worker process. Payload is
// compressed with Compression; Size and Digest describe the
// uncompressed bytes.
type WorkerTask struct {
	TaskID      string          `cbor:"task_id"`
	Payload     []byte          `cbor:"payload"`
	Compression compress.Tag    `cbor:"compression"`
	Size        int             `cbor:"size"`
	Digest      activity.Digest `cbor:"digest"`
	Password    *string         `cbor:"password"`

	NetStabilizationDelay time.Duration `cbor:"net_stabilization_delay"`

	// Timeout is the worker's own deadline for the task. The parent
	// enforces the same bound by killing the worker.
	Timeout time.Duration `cbor:"timeout"`
}

// WorkerOutcome answers a WorkerTask. Exactly one of Result and Error
// is set.
type WorkerOutcome struct {
	TaskID string             `cbor:"task_id"`
	Result map[string]any     `cbor:"result"`
	Error  activity.ErrorKind `cbor:"error,omitempty"`

	// Detail explains an Unexpected error for the server log.
	Detail string `cbor:"detail,omitempty"`
}

// WorkerFrameOverhead is the room a WorkerTask frame needs beyond the
// activity and password it carries: field names, task id, digest,
// size, compression tag and timeout.
const WorkerFrameOverhead = 64 << 10

// WorkerFrameLimit bounds frames on the worker pipe for a server that
// accepts requests of up to maxRequestSize bytes. The activity and its
// password arrive together in one request and compression never grows
// a payload, so every admitted task fits.
func WorkerFrameLimit(maxRequestSize int) int {
	return maxRequestSize + WorkerFrameOverhead
}
