// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/activityq/lib/activity"
	"github.com/bureau-foundation/activityq/lib/codec"
	"github.com/bureau-foundation/activityq/lib/protocol"
	"github.com/bureau-foundation/activityq/lib/service"
	"github.com/bureau-foundation/activityq/lib/testutil"
)

// fakeServer records submissions and answers lookups from a table.
type fakeServer struct {
	socketPath string

	mu        sync.Mutex
	submitted []protocol.TaskMessage
	outcomes  map[string]*activity.Data
}

func startFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fake := &fakeServer{socketPath: testutil.SocketPath(t), outcomes: map[string]*activity.Data{}}

	server := service.NewSocketServer(fake.socketPath, service.Options{}, testutil.Logger())
	server.Handle(protocol.KindTask, func(ctx context.Context, raw []byte) (*protocol.Response, error) {
		var request protocol.TaskMessage
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, err
		}
		fake.mu.Lock()
		defer fake.mu.Unlock()
		fake.submitted = append(fake.submitted, request)
		return &protocol.Response{Kind: protocol.KindTaskID, TaskID: "task-7"}, nil
	})
	server.Handle(protocol.KindTaskID, func(ctx context.Context, raw []byte) (*protocol.Response, error) {
		var request protocol.TaskIDMessage
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, err
		}
		fake.mu.Lock()
		defer fake.mu.Unlock()
		outcome, known := fake.outcomes[request.TaskID]
		switch {
		case !known:
			return protocol.NewKindResponse(protocol.KindTaskIDNotFound), nil
		case outcome == nil:
			return protocol.NewKindResponse(protocol.KindTaskNotCompleted), nil
		}
		return protocol.NewResultResponse(*outcome), nil
	})
	server.Handle(protocol.KindStatus, func(ctx context.Context, raw []byte) (*protocol.Response, error) {
		return &protocol.Response{Kind: protocol.KindStatus, Status: &protocol.Status{
			Version:          "v1.2.3",
			StartedAt:        time.Now().Add(-time.Hour),
			QueueLength:      1200,
			QueueCapacity:    5000,
			PendingResults:   3,
			CompletedResults: 4,
			Workers: []protocol.WorkerStatus{
				{Index: 0, State: "busy", PID: 4242, Display: ":99", SessionTasks: 3, SessionsStarted: 2, TasksCompleted: 12345},
				{Index: 1, State: "starting"},
			},
		}}, nil
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
	return fake
}

func (f *fakeServer) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), append([]string{"--socket", f.socketPath}, args...), os.Stdin, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func writeActivity(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.pka")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func decodeResult(t *testing.T, output string) resultView {
	t.Helper()
	var view resultView
	if err := json.Unmarshal([]byte(output), &view); err != nil {
		t.Fatalf("decoding output %q: %v", output, err)
	}
	return view
}

func TestPutPrintsTaskID(t *testing.T) {
	fake := startFakeServer(t)

	stdout, _, err := fake.run(t, "put", writeActivity(t, "bytes"), "--password", "123", "--net-stabilization-delay", "2")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if strings.TrimSpace(stdout) != "task-7" {
		t.Errorf("stdout = %q, want task-7", stdout)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.submitted) != 1 {
		t.Fatalf("server saw %d submissions", len(fake.submitted))
	}
	got := fake.submitted[0]
	if string(got.Activity) != "bytes" {
		t.Errorf("activity = %q", got.Activity)
	}
	if got.Password == nil || *got.Password != "123" {
		t.Errorf("password = %v", got.Password)
	}
	if got.NetStabilizationDelay != 2*time.Second {
		t.Errorf("delay = %v, want 2s", got.NetStabilizationDelay)
	}
}

func TestPutWithoutPasswordSendsNull(t *testing.T) {
	fake := startFakeServer(t)

	if _, _, err := fake.run(t, "put", writeActivity(t, "bytes")); err != nil {
		t.Fatalf("put: %v", err)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.submitted[0].Password != nil {
		t.Errorf("password = %q, want none", *fake.submitted[0].Password)
	}
}

func TestPutSendsEmptyPassword(t *testing.T) {
	fake := startFakeServer(t)

	if _, _, err := fake.run(t, "put", writeActivity(t, "bytes"), "--password="); err != nil {
		t.Fatalf("put: %v", err)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if got := fake.submitted[0].Password; got == nil || *got != "" {
		t.Errorf("password = %v, want a pointer to the empty string", got)
	}
}

func TestPutWaitPrintsResult(t *testing.T) {
	fake := startFakeServer(t)
	outcome := activity.Succeeded(map[string]any{activity.TotalPercentageKey: 42.5}, 1500*time.Millisecond)
	fake.outcomes["task-7"] = &outcome

	stdout, _, err := fake.run(t, "put", writeActivity(t, "bytes"), "--wait", "--interval", "0.01")
	if err != nil {
		t.Fatalf("put --wait: %v", err)
	}
	view := decodeResult(t, stdout)
	if view.TaskID != "task-7" || view.Error != nil {
		t.Errorf("result = %+v", view)
	}
	if view.Data[activity.TotalPercentageKey] != 42.5 {
		t.Errorf("data = %v", view.Data)
	}
	if view.ConsumedTime != 1.5 {
		t.Errorf("consumed time = %v, want 1.5", view.ConsumedTime)
	}
}

func TestGetErrorOutcome(t *testing.T) {
	fake := startFakeServer(t)
	outcome := activity.Failed(activity.WrongPassword, time.Second)
	fake.outcomes["bad"] = &outcome

	stdout, _, err := fake.run(t, "get", "bad")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	view := decodeResult(t, stdout)
	if view.Error == nil || *view.Error != string(activity.WrongPassword) {
		t.Errorf("error = %v, want %s", view.Error, activity.WrongPassword)
	}
	if view.Data != nil {
		t.Errorf("data = %v, want null", view.Data)
	}
}

func TestGetPendingExitsTwo(t *testing.T) {
	fake := startFakeServer(t)
	fake.outcomes["pending"] = nil

	_, stderr, err := fake.run(t, "get", "pending")
	var exit *exitError
	if !errors.As(err, &exit) || exit.Code != notCompletedExit {
		t.Fatalf("get error = %v, want exit code %d", err, notCompletedExit)
	}
	if !strings.Contains(stderr, "not completed") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestGetUnknownTask(t *testing.T) {
	fake := startFakeServer(t)

	if _, _, err := fake.run(t, "get", "nope"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("get error = %v, want not found", err)
	}
}

func TestWaitTimeout(t *testing.T) {
	fake := startFakeServer(t)
	fake.outcomes["slow"] = nil

	_, _, err := fake.run(t, "wait", "slow", "--interval", "5ms", "--timeout", "50ms")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("wait error = %v, want deadline exceeded", err)
	}
}

func TestStatusOutput(t *testing.T) {
	fake := startFakeServer(t)

	stdout, _, err := fake.run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"v1.2.3", "1 hour ago", "1,200 of 5,000", "3 pending, 4 completed", "4242", ":99", "12,345", "starting"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("status output missing %q:\n%s", want, stdout)
		}
	}
}

func TestStatusJSON(t *testing.T) {
	fake := startFakeServer(t)

	stdout, _, err := fake.run(t, "status", "--json")
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var status protocol.Status
	if err := json.Unmarshal([]byte(stdout), &status); err != nil {
		t.Fatalf("decoding %q: %v", stdout, err)
	}
	if len(status.Workers) != 2 || status.QueueCapacity != 5000 {
		t.Errorf("status = %+v", status)
	}
}

func TestUnknownCommandSuggests(t *testing.T) {
	fake := startFakeServer(t)

	_, _, err := fake.run(t, "stauts")
	if err == nil || !strings.Contains(err.Error(), `did you mean "status"`) {
		t.Fatalf("error = %v, want a suggestion", err)
	}
}

func TestPutArguments(t *testing.T) {
	fake := startFakeServer(t)

	if _, _, err := fake.run(t, "put"); err == nil {
		t.Error("put without FILE succeeded")
	}
	if _, _, err := fake.run(t, "put", writeActivity(t, "")); err == nil {
		t.Error("put of an empty file succeeded")
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "abc", 3},
		{"status", "status", 0},
		{"stauts", "status", 2},
		{"get", "put", 2},
	}
	for _, test := range tests {
		if got := levenshtein(test.a, test.b); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
	}
}
