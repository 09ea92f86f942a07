// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/bureau-foundation/activityq/lib/testutil"
)

func TestKillGroupTerminatesChildren(t *testing.T) {
	// The shell starts a grandchild sleep in the same group; killing
	// the group must take both down so Wait returns promptly.
	cmd := exec.Command("/bin/sh", "-c", "sleep 60 & wait")
	Isolate(cmd)
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start /bin/sh: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	if err := KillGroup(cmd.Process.Pid); err != nil {
		t.Fatalf("KillGroup: %v", err)
	}
	waitErr := testutil.RequireReceive(t, done, 10*time.Second, "waiting for killed group")
	if code := ExitCode(waitErr); code != -1 {
		t.Errorf("ExitCode = %d, want -1 for a signalled process", code)
	}

	// The group is gone now; a second kill is not an error.
	if err := KillGroup(cmd.Process.Pid); err != nil {
		t.Errorf("KillGroup on exited group: %v", err)
	}
}

func TestWaitExitedLeavesChildUnreaped(t *testing.T) {
	cmd := exec.Command("/bin/sh", "-c", "exit 3")
	Isolate(cmd)
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start /bin/sh: %v", err)
	}

	if err := WaitExited(cmd.Process.Pid); err != nil {
		t.Fatalf("WaitExited: %v", err)
	}
	// The exit status is still there for Wait to collect.
	if code := ExitCode(cmd.Wait()); code != 3 {
		t.Errorf("ExitCode = %d, want 3", code)
	}
}

func TestKillGroupRejectsInvalidPID(t *testing.T) {
	if err := KillGroup(0); err == nil {
		t.Fatal("KillGroup(0) succeeded, want error")
	}
}

func TestExitCode(t *testing.T) {
	if code := ExitCode(nil); code != 0 {
		t.Errorf("ExitCode(nil) = %d, want 0", code)
	}

	err := exec.Command("/bin/sh", "-c", "exit 3").Run()
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Skipf("unexpected error from /bin/sh: %v", err)
	}
	if code := ExitCode(err); code != 3 {
		t.Errorf("ExitCode = %d, want 3", code)
	}

	if code := ExitCode(errors.New("never started")); code != -1 {
		t.Errorf("ExitCode(non-exit error) = %d, want -1", code)
	}
}
