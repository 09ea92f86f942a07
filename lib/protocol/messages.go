// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"time"

	"github.com/bureau-foundation/activityq/lib/activity"
)

// Request kinds.
const (
	KindTask   = "task"
	KindTaskID = "task_id"
	KindStatus = "status"
)

// Response kinds.
const (
	KindQueueIsFull      = "queue_is_full"
	KindResult           = "result"
	KindTaskIDNotFound   = "task_id_not_found"
	KindTaskNotCompleted = "task_not_completed"
	KindError            = "error"
)

// Header is decoded first from every request to route it.
type Header struct {
	Kind string `cbor:"kind"`
}

// TaskMessage submits an activity.
type TaskMessage struct {
	Kind     string  `cbor:"kind"`
	Activity []byte  `cbor:"activity"`
	Password *string `cbor:"password"`

	NetStabilizationDelay time.Duration `cbor:"net_stabilization_delay"`
}

// NewTaskMessage builds a task request.
func NewTaskMessage(payload []byte, password *string, delay time.Duration) TaskMessage {
	return TaskMessage{
		Kind:                  KindTask,
		Activity:              payload,
		Password:              password,
		NetStabilizationDelay: delay,
	}
}

// TaskIDMessage asks for a task's result. The server also uses it,
// with kind "task_id", to answer a successful submission.
type TaskIDMessage struct {
	Kind   string `cbor:"kind"`
	TaskID string `cbor:"task_id"`
}

// NewTaskIDMessage builds a task_id message.
func NewTaskIDMessage(taskID string) TaskIDMessage {
	return TaskIDMessage{Kind: KindTaskID, TaskID: taskID}
}

// StatusRequest asks for a server snapshot.
type StatusRequest struct {
	Kind string `cbor:"kind"`
}

// Response is the envelope for every server reply. Which optional
// field is set depends on Kind.
type Response struct {
	Kind string `cbor:"kind"`

	// TaskID is set for kind "task_id".
	TaskID string `cbor:"task_id,omitempty"`

	// ActivityData is set for kind "result".
	ActivityData *activity.Data `cbor:"activity_data,omitempty"`

	// Status is set for kind "status".
	Status *Status `cbor:"status,omitempty"`

	// Error is set for kind "error".
	Error string `cbor:"error,omitempty"`
}

// NewErrorResponse reports a request the server could not handle.
func NewErrorResponse(message string) *Response {
	return &Response{Kind: KindError, Error: message}
}

// NewResultResponse carries a completed task's outcome.
func NewResultResponse(data activity.Data) *Response {
	return &Response{Kind: KindResult, ActivityData: &data}
}

// NewKindResponse builds a response that carries nothing but its
// kind, such as queue_is_full.
func NewKindResponse(kind string) *Response {
	return &Response{Kind: kind}
}

// Status is a point-in-time view of the server.
type Status struct {
	Version   string    `cbor:"version"`
	StartedAt time.Time `cbor:"started_at"`

	QueueLength   int `cbor:"queue_length"`
	QueueCapacity int `cbor:"queue_capacity"`

	PendingResults   int `cbor:"pending_results"`
	CompletedResults int `cbor:"completed_results"`

	Workers []WorkerStatus `cbor:"workers"`
}

// WorkerStatus describes one pool slot.
type WorkerStatus struct {
	Index   int    `cbor:"index"`
	State   string `cbor:"state"`
	PID     int    `cbor:"pid,omitempty"`
	Display string `cbor:"display,omitempty"`

	// SessionTasks counts tasks served by the current session.
	SessionTasks int `cbor:"session_tasks"`

	SessionsStarted int    `cbor:"sessions_started"`
	TasksCompleted  uint64 `cbor:"tasks_completed"`
}
