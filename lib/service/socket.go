// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	"github.com/bureau-foundation/activityq/lib/codec"
	"github.com/bureau-foundation/activityq/lib/protocol"
)

// ActionFunc handles one request. raw is the complete request frame
// payload; the handler decodes its own message type from it. A nil
// response with a nil error is a programming error and is reported to
// the client as an error response.
type ActionFunc func(ctx context.Context, raw []byte) (*protocol.Response, error)

// Options tunes a SocketServer. Zero fields take defaults.
type Options struct {
	// MaxConnections bounds concurrently open client connections.
	// Further clients wait in the kernel backlog. Defaults to 64.
	MaxConnections int

	// MaxRequestSize bounds one request frame. Defaults to
	// codec.DefaultMaxFrameSize.
	MaxRequestSize int

	// Mode is applied to the socket file after it is created.
	// Defaults to 0600.
	Mode os.FileMode

	// ReadTimeout bounds how long a client may take to send its
	// request. Defaults to 30 seconds.
	ReadTimeout time.Duration

	// WriteTimeout bounds writing the response. Defaults to 10
	// seconds.
	WriteTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.MaxConnections <= 0 {
		o.MaxConnections = 64
	}
	if o.MaxRequestSize <= 0 {
		o.MaxRequestSize = codec.DefaultMaxFrameSize
	}
	if o.Mode == 0 {
		o.Mode = 0o600
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
}

// SocketServer serves the framed request-response protocol on a Unix
// socket. Register handlers with Handle before calling Serve.
type SocketServer struct {
	socketPath string
	options    Options
	handlers   map[string]ActionFunc
	logger     *slog.Logger

	// ready is closed once the socket is listening.
	ready chan struct{}

	// activeConnections tracks in-flight handlers. Serve waits for
	// them before returning.
	activeConnections sync.WaitGroup
}

// NewSocketServer creates a server that will listen on socketPath.
func NewSocketServer(socketPath string, options Options, logger *slog.Logger) *SocketServer {
	options.applyDefaults()
	return &SocketServer{
		socketPath: socketPath,
		options:    options,
		handlers:   make(map[string]ActionFunc),
		logger:     logger,
		ready:      make(chan struct{}),
	}
}

// Handle registers a handler for requests of the given kind. Panics if
// the kind is already registered.
func (s *SocketServer) Handle(kind string, handler ActionFunc) {
	if _, exists := s.handlers[kind]; exists {
		panic(fmt.Sprintf("service.SocketServer: duplicate handler for kind %q", kind))
	}
	s.handlers[kind] = handler
}

// Ready is closed once Serve is accepting connections.
func (s *SocketServer) Ready() <-chan struct{} { return s.ready }

// Serve accepts connections until ctx is cancelled, then stops
// accepting and waits for in-flight handlers to finish.
//
// A stale socket file at the configured path is removed before
// listening. The socket file is removed on return.
func (s *SocketServer) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	if err := os.Chmod(s.socketPath, s.options.Mode); err != nil {
		return fmt.Errorf("setting mode on %s: %w", s.socketPath, err)
	}

	limited := netutil.LimitListener(listener, s.options.MaxConnections)

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		limited.Close()
	}()

	s.logger.Info("socket server listening",
		"path", s.socketPath,
		"max_connections", s.options.MaxConnections,
	)
	close(s.ready)

	for {
		conn, err := limited.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	s.logger.Info("socket server stopped", "path", s.socketPath)
	return nil
}

// handleConnection processes one request-response cycle.
func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(s.options.ReadTimeout))

	raw, err := codec.ReadRawFrame(conn, s.options.MaxRequestSize)
	if err != nil {
		if errors.Is(err, io.EOF) {
			// Client connected but sent nothing.
			return
		}
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}

	var header protocol.Header
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if header.Kind == "" {
		s.writeError(conn, "missing required field: kind")
		return
	}

	handler, exists := s.handlers[header.Kind]
	if !exists {
		s.writeError(conn, fmt.Sprintf("unknown request kind %q", header.Kind))
		return
	}

	response, err := handler(ctx, raw)
	if err != nil {
		s.logger.Warn("request failed", "kind", header.Kind, "error", err)
		s.writeError(conn, err.Error())
		return
	}
	if response == nil {
		s.logger.Error("handler returned no response", "kind", header.Kind)
		s.writeError(conn, "internal: no response")
		return
	}

	s.write(conn, response)
}

func (s *SocketServer) writeError(conn net.Conn, message string) {
	s.write(conn, protocol.NewErrorResponse(message))
}

// write sends response. A client that hung up before reading is not
// an error worth more than a debug line.
func (s *SocketServer) write(conn net.Conn, response *protocol.Response) {
	conn.SetWriteDeadline(time.Now().Add(s.options.WriteTimeout))
	if err := codec.WriteFrame(conn, response); err != nil {
		if isPeerGone(err) {
			s.logger.Debug("client closed before response", "kind", response.Kind)
			return
		}
		s.logger.Warn("writing response failed", "kind", response.Kind, "error", err)
	}
}

// isPeerGone reports whether err means the other side of the
// connection has gone away.
func isPeerGone(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET)
}
