// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package display provides the X display a worker's processor renders
// on: either a private Xvfb server owned by the worker, or whatever
// display the worker inherited.
package display

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/bureau-foundation/activityq/lib/process"
)

// Display is an X display usable by one worker.
type Display interface {
	// Name is the DISPLAY value, for example ":99". Empty when no
	// display is available.
	Name() string

	// Close releases the display. Closing an inherited display is a
	// no-op.
	Close() error
}

// Inherit returns the display named by $DISPLAY, which may be empty.
func Inherit() Display {
	return inherited(os.Getenv("DISPLAY"))
}

type inherited string

func (d inherited) Name() string { return string(d) }

func (inherited) Close() error { return nil }

// XvfbOptions configures StartXvfb.
type XvfbOptions struct {
	// Binary is the Xvfb executable. Defaults to "Xvfb" on PATH.
	Binary string

	// Screen is the screen geometry. Defaults to "1280x1024x24".
	Screen string

	// StartTimeout bounds how long to wait for Xvfb to report its
	// display number. Defaults to 10 seconds.
	StartTimeout time.Duration
}

// Xvfb is a virtual framebuffer X server owned by this process.
type Xvfb struct {
	name   string
	cmd    *exec.Cmd
	done   chan struct{}
	logger *slog.Logger
}

// StartXvfb launches a private Xvfb server. Xvfb picks a free display
// number itself (-displayfd) and writes it to a pipe, so concurrent
// workers never race for the same number. The server joins this
// process's group and dies with this process.
func StartXvfb(ctx context.Context, options XvfbOptions, logger *slog.Logger) (*Xvfb, error) {
	if options.Binary == "" {
		options.Binary = "Xvfb"
	}
	if options.Screen == "" {
		options.Screen = "1280x1024x24"
	}
	if options.StartTimeout <= 0 {
		options.StartTimeout = 10 * time.Second
	}

	binary, err := exec.LookPath(options.Binary)
	if err != nil {
		return nil, fmt.Errorf("locating Xvfb: %w", err)
	}

	reader, writer, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating displayfd pipe: %w", err)
	}
	defer reader.Close()

	// ExtraFiles[0] becomes fd 3 in the child.
	cmd := exec.Command(binary,
		"-displayfd", "3",
		"-screen", "0", options.Screen,
		"-nolisten", "tcp",
		"-noreset",
	)
	cmd.ExtraFiles = []*os.File{writer}
	cmd.Stderr = os.Stderr
	process.Attach(cmd)

	if err := cmd.Start(); err != nil {
		writer.Close()
		return nil, fmt.Errorf("starting Xvfb: %w", err)
	}
	// The child holds its own copy of the write end.
	writer.Close()

	xvfb := &Xvfb{cmd: cmd, done: make(chan struct{}), logger: logger}
	go func() {
		waitErr := cmd.Wait()
		close(xvfb.done)
		logger.Debug("Xvfb exited", "pid", cmd.Process.Pid, "exit_code", process.ExitCode(waitErr))
	}()

	type displayNumber struct {
		number int
		err    error
	}
	numbers := make(chan displayNumber, 1)
	go func() {
		line, err := bufio.NewReader(reader).ReadString('\n')
		if err != nil && line == "" {
			numbers <- displayNumber{err: fmt.Errorf("reading display number: %w", err)}
			return
		}
		number, err := strconv.Atoi(strings.TrimSpace(line))
		numbers <- displayNumber{number: number, err: err}
	}()

	timer := time.NewTimer(options.StartTimeout)
	defer timer.Stop()

	select {
	case result := <-numbers:
		if result.err != nil {
			xvfb.Close()
			return nil, fmt.Errorf("Xvfb did not report a display: %w", result.err)
		}
		xvfb.name = ":" + strconv.Itoa(result.number)
	case <-xvfb.done:
		return nil, errors.New("Xvfb exited before reporting a display")
	case <-timer.C:
		xvfb.Close()
		return nil, fmt.Errorf("Xvfb did not report a display within %v", options.StartTimeout)
	case <-ctx.Done():
		xvfb.Close()
		return nil, ctx.Err()
	}

	logger.Info("virtual display started", "display", xvfb.name, "pid", cmd.Process.Pid)
	return xvfb, nil
}

// Name returns the DISPLAY value.
func (x *Xvfb) Name() string { return x.name }

// Close kills the server and waits for it to exit.
func (x *Xvfb) Close() error {
	select {
	case <-x.done:
		return nil
	default:
	}
	if err := x.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("killing Xvfb: %w", err)
	}
	<-x.done
	return nil
}
