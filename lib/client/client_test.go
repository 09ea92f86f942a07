// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/activityq/lib/activity"
	"github.com/bureau-foundation/activityq/lib/codec"
	"github.com/bureau-foundation/activityq/lib/protocol"
	"github.com/bureau-foundation/activityq/lib/service"
	"github.com/bureau-foundation/activityq/lib/testutil"
)

// fakeServer answers client requests from canned state.
type fakeServer struct {
	mu        sync.Mutex
	full      bool
	submitted []protocol.TaskMessage
	// pollsLeft counts task_not_completed answers before a result.
	pollsLeft map[string]int
	results   map[string]activity.Data
}

func startFakeServer(t *testing.T) (*fakeServer, *Client) {
	t.Helper()
	fake := &fakeServer{pollsLeft: map[string]int{}, results: map[string]activity.Data{}}

	socketPath := testutil.SocketPath(t)
	server := service.NewSocketServer(socketPath, service.Options{}, testutil.Logger())
	server.Handle(protocol.KindTask, fake.submit)
	server.Handle(protocol.KindTaskID, fake.get)
	server.Handle(protocol.KindStatus, func(ctx context.Context, raw []byte) (*protocol.Response, error) {
		return &protocol.Response{Kind: protocol.KindStatus, Status: &protocol.Status{Version: "test", QueueCapacity: 3}}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		server.Serve(ctx)
		close(done)
	}()
	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "fake server listening")
	t.Cleanup(func() {
		cancel()
		testutil.RequireClosed(t, done, 5*time.Second, "fake server shutdown")
	})
	return fake, New(socketPath)
}

func (f *fakeServer) submit(ctx context.Context, raw []byte) (*protocol.Response, error) {
	var request protocol.TaskMessage
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return protocol.NewKindResponse(protocol.KindQueueIsFull), nil
	}
	f.submitted = append(f.submitted, request)
	return &protocol.Response{Kind: protocol.KindTaskID, TaskID: "task-1"}, nil
}

func (f *fakeServer) get(ctx context.Context, raw []byte) (*protocol.Response, error) {
	var request protocol.TaskIDMessage
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	result, known := f.results[request.TaskID]
	if !known {
		return protocol.NewKindResponse(protocol.KindTaskIDNotFound), nil
	}
	if f.pollsLeft[request.TaskID] > 0 {
		f.pollsLeft[request.TaskID]--
		return protocol.NewKindResponse(protocol.KindTaskNotCompleted), nil
	}
	return protocol.NewResultResponse(result), nil
}

func TestPut(t *testing.T) {
	fake, client := startFakeServer(t)

	password := "123"
	taskID, err := client.Put(context.Background(), []byte("activity"), PutOptions{
		Password:              &password,
		NetStabilizationDelay: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if taskID != "task-1" {
		t.Errorf("task id = %q, want task-1", taskID)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.submitted) != 1 {
		t.Fatalf("server saw %d submissions, want 1", len(fake.submitted))
	}
	got := fake.submitted[0]
	if !bytes.Equal(got.Activity, []byte("activity")) {
		t.Errorf("activity = %q", got.Activity)
	}
	if got.Password == nil || *got.Password != "123" {
		t.Errorf("password = %v, want 123", got.Password)
	}
	if got.NetStabilizationDelay != 2*time.Second {
		t.Errorf("delay = %v, want 2s", got.NetStabilizationDelay)
	}
}

func TestPutQueueIsFull(t *testing.T) {
	fake, client := startFakeServer(t)
	fake.full = true

	_, err := client.Put(context.Background(), []byte("activity"), PutOptions{})
	if !errors.Is(err, ErrQueueIsFull) {
		t.Fatalf("Put error = %v, want ErrQueueIsFull", err)
	}
}

func TestGet(t *testing.T) {
	fake, client := startFakeServer(t)
	fake.results["done"] = activity.Succeeded(map[string]any{activity.TotalPercentageKey: 75.0}, time.Second)
	fake.results["pending"] = activity.Data{}
	fake.pollsLeft["pending"] = 1

	data, err := client.Get(context.Background(), "done")
	if err != nil {
		t.Fatalf("Get(done): %v", err)
	}
	if percentage, ok := data.Percentage(); !ok || percentage != 75 {
		t.Errorf("percentage = %v, %v; want 75", percentage, ok)
	}
	if data.ConsumedTime != time.Second {
		t.Errorf("consumed time = %v, want 1s", data.ConsumedTime)
	}

	if _, err := client.Get(context.Background(), "missing"); !errors.Is(err, ErrTaskIDNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrTaskIDNotFound", err)
	}
	if _, err := client.Get(context.Background(), "pending"); !errors.Is(err, ErrTaskNotCompleted) {
		t.Errorf("Get(pending) error = %v, want ErrTaskNotCompleted", err)
	}
}

func TestWaitPollsUntilCompleted(t *testing.T) {
	fake, client := startFakeServer(t)
	fake.results["slow"] = activity.Failed(activity.WrongPassword, time.Millisecond)
	fake.pollsLeft["slow"] = 3

	data, err := client.Wait(context.Background(), "slow", time.Millisecond)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if data.Error != activity.WrongPassword {
		t.Errorf("outcome error = %q, want %q", data.Error, activity.WrongPassword)
	}
}

func TestWaitStopsOnNotFound(t *testing.T) {
	_, client := startFakeServer(t)

	if _, err := client.Wait(context.Background(), "missing", time.Millisecond); !errors.Is(err, ErrTaskIDNotFound) {
		t.Fatalf("Wait error = %v, want ErrTaskIDNotFound", err)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	fake, client := startFakeServer(t)
	fake.results["forever"] = activity.Data{}
	fake.pollsLeft["forever"] = 1 << 30

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := client.Wait(ctx, "forever", 5*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait error = %v, want context.DeadlineExceeded", err)
	}
}

func TestStatus(t *testing.T) {
	_, client := startFakeServer(t)

	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Version != "test" || status.QueueCapacity != 3 {
		t.Errorf("status = %+v", status)
	}
}

func TestClientReportsUnreachableServer(t *testing.T) {
	client := New(filepath.Join(t.TempDir(), "absent.sock"))
	if _, err := client.Put(context.Background(), []byte("x"), PutOptions{}); err == nil {
		t.Fatal("Put to a missing socket succeeded")
	}
}

func TestSocketPath(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	t.Setenv(SocketEnv, "")

	if got := SocketPath(""); got != "/run/user/1000/activityq.sock" {
		t.Errorf("default = %q", got)
	}

	t.Setenv(SocketEnv, "/srv/aq.sock")
	if got := SocketPath(""); got != "/srv/aq.sock" {
		t.Errorf("from environment = %q", got)
	}
	if got := SocketPath("/explicit.sock"); got != "/explicit.sock" {
		t.Errorf("explicit = %q", got)
	}
}
