// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Isolate puts cmd in a new process group led by the child and asks
// the kernel to SIGKILL the child when the thread that started it
// exits. Call before cmd.Start.
//
// Pdeathsig is tied to the creating OS thread, not the process. Go
// may retire that thread while the parent is still alive, so Isolate
// is a backstop for a crashed parent; orderly shutdown still goes
// through KillGroup.
func Isolate(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
	cmd.SysProcAttr.Pdeathsig = unix.SIGKILL
}

// Attach keeps cmd in the caller's process group, so killing that
// group reaches it, and asks the kernel to SIGKILL the child when the
// thread that started it exits. Call before cmd.Start.
func Attach(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = false
	cmd.SysProcAttr.Pdeathsig = unix.SIGKILL
}

// WaitExited blocks until the child pid has exited, leaving it
// unreaped. Until the caller reaps it (cmd.Wait), the pid cannot be
// reused, so it still names only the child's own process group.
func WaitExited(pid int) error {
	for {
		var info unix.Siginfo
		err := unix.Waitid(unix.P_PID, pid, &info, unix.WEXITED|unix.WNOWAIT, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return fmt.Errorf("waiting for process %d: %w", pid, err)
		}
		return nil
	}
}

// KillGroup sends SIGKILL to every process in the group led by pid. A
// group that no longer exists is not an error.
func KillGroup(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid process group leader %d", pid)
	}
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("killing process group %d: %w", pid, err)
	}
	return nil
}

// SignalGroup sends sig to every process in the group led by pid.
func SignalGroup(pid int, sig unix.Signal) error {
	if pid <= 0 {
		return fmt.Errorf("invalid process group leader %d", pid)
	}
	if err := unix.Kill(-pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("signalling process group %d: %w", pid, err)
	}
	return nil
}

// ExitCode extracts the exit status from the error returned by
// cmd.Wait: 0 for a nil error, the child's code for a normal exit, and
// -1 when the child was killed by a signal or never ran.
func ExitCode(waitErr error) int {
	if waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
