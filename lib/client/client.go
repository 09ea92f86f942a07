// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/activityq/lib/activity"
	"github.com/bureau-foundation/activityq/lib/protocol"
	"github.com/bureau-foundation/activityq/lib/service"
)

// SocketEnv overrides the default socket path.
const SocketEnv = "ACTIVITYQ_SOCKET"

// DefaultPollInterval is the Wait interval used when none is given.
const DefaultPollInterval = 250 * time.Millisecond

var (
	// ErrQueueIsFull means the server rejected a submission because
	// its queue was at capacity. Nothing was queued; retry later.
	ErrQueueIsFull = errors.New("queue is full")

	// ErrTaskIDNotFound means the server has no record of the task:
	// it was never issued or its result has expired.
	ErrTaskIDNotFound = errors.New("task id not found")

	// ErrTaskNotCompleted means the task is known but has no outcome
	// yet.
	ErrTaskNotCompleted = errors.New("task not completed")
)

// SocketPath resolves the server socket: explicit if non-empty, else
// $ACTIVITYQ_SOCKET, else activityq.sock under $XDG_RUNTIME_DIR or the
// system temp directory.
func SocketPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if fromEnv := os.Getenv(SocketEnv); fromEnv != "" {
		return fromEnv
	}
	return DefaultSocketPath()
}

// DefaultSocketPath is the socket path used when neither a flag nor
// $ACTIVITYQ_SOCKET names one.
func DefaultSocketPath() string {
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return filepath.Join(runtimeDir, "activityq.sock")
	}
	return filepath.Join(os.TempDir(), "activityq.sock")
}

// PutOptions carries the optional parts of a submission.
type PutOptions struct {
	// Password unlocks a protected activity. Nil means none was
	// supplied, which is distinct from an empty password.
	Password *string

	// NetStabilizationDelay is how long the processor waits before
	// reading results.
	NetStabilizationDelay time.Duration
}

// Client talks to one activityq server.
type Client struct {
	caller *service.Client
}

// New returns a client for the server at socketPath. Use SocketPath to
// resolve the conventional location.
func New(socketPath string) *Client {
	return &Client{caller: service.NewClient(socketPath)}
}

// Put submits an activity and returns its task id.
func (c *Client) Put(ctx context.Context, payload []byte, options PutOptions) (string, error) {
	request := protocol.NewTaskMessage(payload, options.Password, options.NetStabilizationDelay)
	response, err := c.caller.Call(ctx, protocol.KindTask, request)
	if err != nil {
		return "", err
	}
	switch response.Kind {
	case protocol.KindTaskID:
		if response.TaskID == "" {
			return "", errors.New("server returned an empty task id")
		}
		return response.TaskID, nil
	case protocol.KindQueueIsFull:
		return "", ErrQueueIsFull
	default:
		return "", unexpected(protocol.KindTask, response)
	}
}

// Get returns the outcome of a completed task. Repeated calls return
// the same outcome until the server's result TTL expires.
func (c *Client) Get(ctx context.Context, taskID string) (activity.Data, error) {
	response, err := c.caller.Call(ctx, protocol.KindTaskID, protocol.NewTaskIDMessage(taskID))
	if err != nil {
		return activity.Data{}, err
	}
	switch response.Kind {
	case protocol.KindResult:
		if response.ActivityData == nil {
			return activity.Data{}, errors.New("server returned a result without activity data")
		}
		return *response.ActivityData, nil
	case protocol.KindTaskIDNotFound:
		return activity.Data{}, fmt.Errorf("%w: %s", ErrTaskIDNotFound, taskID)
	case protocol.KindTaskNotCompleted:
		return activity.Data{}, fmt.Errorf("%w: %s", ErrTaskNotCompleted, taskID)
	default:
		return activity.Data{}, unexpected(protocol.KindTaskID, response)
	}
}

// Wait polls Get every interval until the task completes, ctx is done,
// or Get fails with anything other than ErrTaskNotCompleted. A
// non-positive interval uses DefaultPollInterval.
func (c *Client) Wait(ctx context.Context, taskID string, interval time.Duration) (activity.Data, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		data, err := c.Get(ctx, taskID)
		if !errors.Is(err, ErrTaskNotCompleted) {
			return data, err
		}
		select {
		case <-ctx.Done():
			return activity.Data{}, fmt.Errorf("waiting for task %s: %w", taskID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Status returns a snapshot of the server's queue, results and
// workers.
func (c *Client) Status(ctx context.Context) (*protocol.Status, error) {
	response, err := c.caller.Call(ctx, protocol.KindStatus, protocol.StatusRequest{Kind: protocol.KindStatus})
	if err != nil {
		return nil, err
	}
	if response.Kind != protocol.KindStatus || response.Status == nil {
		return nil, unexpected(protocol.KindStatus, response)
	}
	return response.Status, nil
}

func unexpected(request string, response *protocol.Response) error {
	return fmt.Errorf("unexpected %q response to %q request", response.Kind, request)
}
