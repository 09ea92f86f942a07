// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/bureau-foundation/activityq/lib/codec"
	"github.com/bureau-foundation/activityq/lib/protocol"
)

// dialTimeout bounds the connect phase only.
const dialTimeout = 5 * time.Second

// responseReadTimeout is how long the client waits for a response
// after writing its request, unless ctx has an earlier deadline.
const responseReadTimeout = 45 * time.Second

// maxResponseSize bounds one response frame. Results carry the
// processor's map, never the activity payload, so they stay small.
const maxResponseSize = 16 << 20

// ServiceError is returned by Call when the server answers with a
// response of kind "error".
type ServiceError struct {
	Request string
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("server rejected %q request: %s", e.Request, e.Message)
}

// Client sends requests to an activityq socket. Each Call opens a new
// connection, matching the server's one-exchange-per-connection model.
type Client struct {
	socketPath string
}

// NewClient returns a client for the server listening on socketPath.
// Nothing is dialed until Call.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// SocketPath returns the path the client dials.
func (c *Client) SocketPath() string { return c.socketPath }

// Call writes request as one frame and returns the server's response.
// request must carry a "kind" field the server routes on.
//
// A response of kind "error" is returned as a *ServiceError.
// Connection and decoding failures are returned as plain errors.
func (c *Client) Call(ctx context.Context, kind string, request any) (*protocol.Response, error) {
	response, err := c.send(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("calling %q on %s: %w", kind, c.socketPath, err)
	}
	if response.Kind == protocol.KindError {
		return nil, &ServiceError{Request: kind, Message: response.Error}
	}
	return response, nil
}

func (c *Client) send(ctx context.Context, request any) (*protocol.Response, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close()

	// Abandon the exchange when ctx ends mid-call.
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := codec.WriteFrame(conn, request); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	deadline := time.Now().Add(responseReadTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetReadDeadline(deadline)

	var response protocol.Response
	if err := codec.ReadFrame(conn, maxResponseSize, &response); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &response, nil
}
