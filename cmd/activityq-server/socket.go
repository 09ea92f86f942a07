// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/bureau-foundation/activityq/lib/activity"
	"github.com/bureau-foundation/activityq/lib/codec"
	"github.com/bureau-foundation/activityq/lib/compress"
	"github.com/bureau-foundation/activityq/lib/protocol"
	"github.com/bureau-foundation/activityq/lib/queue"
	"github.com/bureau-foundation/activityq/lib/results"
	"github.com/bureau-foundation/activityq/lib/service"
	"github.com/bureau-foundation/activityq/lib/version"
)

// registerActions registers the client protocol on server.
func (s *Server) registerActions(server *service.SocketServer) {
	server.Handle(protocol.KindTask, s.handleSubmit)
	server.Handle(protocol.KindTaskID, s.handleGet)
	server.Handle(protocol.KindStatus, s.handleStatus)
}

// handleSubmit admits a task. The id is reserved in the result store
// before the task becomes visible to workers, so a fast worker can
// never complete a task the store does not know about.
func (s *Server) handleSubmit(ctx context.Context, raw []byte) (*protocol.Response, error) {
	var request protocol.TaskMessage
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid task message: %w", err)
	}
	if len(request.Activity) == 0 {
		return nil, errors.New("activity is empty")
	}
	if request.NetStabilizationDelay < 0 {
		return nil, fmt.Errorf("net_stabilization_delay must not be negative, got %v", request.NetStabilizationDelay)
	}

	payload, tag, err := compress.Compress(request.Activity, s.compression)
	if err != nil {
		return nil, fmt.Errorf("compressing activity: %w", err)
	}

	task := queue.Task{
		ID:                    uuid.NewString(),
		Payload:               payload,
		Compression:           tag,
		Size:                  len(request.Activity),
		Digest:                activity.HashPayload(request.Activity),
		Password:              request.Password,
		NetStabilizationDelay: request.NetStabilizationDelay,
		SubmittedAt:           s.clock.Now(),
	}

	if err := s.results.Reserve(task.ID, task.SubmittedAt); err != nil {
		return nil, err
	}
	if err := s.queue.Enqueue(task); err != nil {
		s.results.Release(task.ID)
		if errors.Is(err, queue.ErrQueueFull) {
			s.logger.Info("task rejected, queue full",
				"digest", task.Digest.Short(),
				"queue_capacity", s.queue.Cap(),
			)
			return protocol.NewKindResponse(protocol.KindQueueIsFull), nil
		}
		return nil, fmt.Errorf("server is shutting down: %w", err)
	}

	s.logger.Info("task queued",
		"task_id", task.ID,
		"digest", task.Digest.Short(),
		"size", task.Size,
		"stored_size", len(task.Payload),
		"compression", task.Compression.String(),
		"queue_length", s.queue.Len(),
	)
	return &protocol.Response{Kind: protocol.KindTaskID, TaskID: task.ID}, nil
}

func (s *Server) handleGet(ctx context.Context, raw []byte) (*protocol.Response, error) {
	var request protocol.TaskIDMessage
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid task_id message: %w", err)
	}

	data, err := s.results.Get(request.TaskID)
	switch {
	case errors.Is(err, results.ErrNotFound):
		return protocol.NewKindResponse(protocol.KindTaskIDNotFound), nil
	case errors.Is(err, results.ErrNotCompleted):
		return protocol.NewKindResponse(protocol.KindTaskNotCompleted), nil
	case err != nil:
		return nil, err
	}
	return protocol.NewResultResponse(data), nil
}

func (s *Server) handleStatus(ctx context.Context, raw []byte) (*protocol.Response, error) {
	return &protocol.Response{Kind: protocol.KindStatus, Status: s.status()}, nil
}

func (s *Server) status() *protocol.Status {
	pending, completed := s.results.Stats()
	return &protocol.Status{
		Version:          version.Info(),
		StartedAt:        s.startedAt,
		QueueLength:      s.queue.Len(),
		QueueCapacity:    s.queue.Cap(),
		PendingResults:   pending,
		CompletedResults: completed,
		Workers:          s.pool.Stats(),
	}
}
