// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/activityq/lib/activity"
	"github.com/bureau-foundation/activityq/lib/codec"
	"github.com/bureau-foundation/activityq/lib/display"
	"github.com/bureau-foundation/activityq/lib/version"
)

// Processor names accepted by --processor.
const (
	ProcessorExec     = "exec"
	ProcessorScripted = "scripted"
)

// Options configures a worker process. The server builds them into a
// command line with Args.
type Options struct {
	Processor        string
	ProcessorCommand []string
	VirtualDisplay   bool
	XvfbBinary       string
	LogLevel         string

	// MaxFrameSize bounds task frames read from stdin. Zero means
	// codec.DefaultMaxFrameSize.
	MaxFrameSize int
}

// Args renders o as worker command line flags.
func (o Options) Args() []string {
	args := []string{"--processor=" + o.Processor}
	for _, part := range o.ProcessorCommand {
		args = append(args, "--processor-command="+part)
	}
	if o.VirtualDisplay {
		args = append(args, "--virtual-display")
	}
	if o.XvfbBinary != "" {
		args = append(args, "--xvfb-binary="+o.XvfbBinary)
	}
	if o.LogLevel != "" {
		args = append(args, "--log-level="+o.LogLevel)
	}
	if o.MaxFrameSize > 0 {
		args = append(args, "--max-frame-size="+strconv.Itoa(o.MaxFrameSize))
	}
	return args
}

// Main is the worker process entrypoint. It serves tasks on stdin and
// stdout, logs JSON to stderr, and returns the exit code.
func Main(args []string) int {
	if err := run(args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func run(args []string) error {
	var (
		options     Options
		showVersion bool
	)
	flags := pflag.NewFlagSet("activityq-worker", pflag.ContinueOnError)
	flags.StringVar(&options.Processor, "processor", ProcessorExec, "activity processor: exec or scripted")
	flags.StringArrayVar(&options.ProcessorCommand, "processor-command", nil, "command and arguments for the exec processor (repeat per argument)")
	flags.BoolVar(&options.VirtualDisplay, "virtual-display", false, "run the processor on a private Xvfb display")
	flags.StringVar(&options.XvfbBinary, "xvfb-binary", "", "Xvfb executable (default: Xvfb on PATH)")
	flags.StringVar(&options.LogLevel, "log-level", "info", "log level: debug, info, warn or error")
	flags.IntVar(&options.MaxFrameSize, "max-frame-size", codec.DefaultMaxFrameSize, "largest task frame accepted on stdin, in bytes")
	flags.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if showVersion {
		fmt.Printf("activityq-worker %s\n", version.Info())
		return nil
	}
	if options.MaxFrameSize <= 0 {
		return fmt.Errorf("--max-frame-size must be positive, got %d", options.MaxFrameSize)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(options.LogLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", options.LogLevel, err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})).With("component", "worker", "pid", os.Getpid())

	// The worker leads its own process group, so a terminal's SIGINT
	// never reaches it; the server stops it by closing stdin or, if
	// that is too slow, by killing the group.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	screen, err := openDisplay(ctx, options, logger)
	if err != nil {
		return err
	}
	defer screen.Close()

	processor, err := newProcessor(options, logger)
	if err != nil {
		return err
	}
	defer processor.Close()

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- Serve(ctx, os.Stdin, os.Stdout, options.MaxFrameSize, processor, screen.Name(), logger)
	}()

	select {
	case err := <-serveDone:
		return err
	case <-ctx.Done():
		logger.Info("terminated by signal")
		return nil
	}
}

func openDisplay(ctx context.Context, options Options, logger *slog.Logger) (display.Display, error) {
	if !options.VirtualDisplay {
		return display.Inherit(), nil
	}
	xvfb, err := display.StartXvfb(ctx, display.XvfbOptions{Binary: options.XvfbBinary}, logger)
	if err != nil {
		return nil, fmt.Errorf("starting virtual display: %w", err)
	}
	return xvfb, nil
}

func newProcessor(options Options, logger *slog.Logger) (activity.Processor, error) {
	switch options.Processor {
	case ProcessorScripted:
		return activity.NewScriptedProcessor(), nil
	case ProcessorExec:
		if len(options.ProcessorCommand) == 0 {
			return nil, errors.New("--processor=exec requires --processor-command")
		}
		return activity.NewExecProcessor(options.ProcessorCommand, "", logger)
	default:
		return nil, fmt.Errorf("unknown processor %q", options.Processor)
	}
}
