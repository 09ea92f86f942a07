// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Activityq submits activity files to an activityq server and reads
// back their outcomes.
//
//	activityq put capture.pka --password-prompt --wait
//	activityq get 3f0c9e1a-...
//	activityq status
//
// The server socket is --socket, else $ACTIVITYQ_SOCKET, else
// activityq.sock in $XDG_RUNTIME_DIR or the system temp directory.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/activityq/lib/client"
	"github.com/bureau-foundation/activityq/lib/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app carries what every subcommand needs.
type app struct {
	ctx    context.Context
	client *client.Client
	stdin  *os.File
	stdout io.Writer
	stderr io.Writer
}

func run(ctx context.Context, args []string, stdin *os.File, stdout, stderr io.Writer) error {
	var (
		socketPath  string
		showVersion bool
	)
	global := pflag.NewFlagSet("activityq", pflag.ContinueOnError)
	global.SetInterspersed(false)
	global.SetOutput(io.Discard)
	global.StringVar(&socketPath, "socket", "", "server socket (default: $ACTIVITYQ_SOCKET, then the runtime directory)")
	global.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := global.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			args = []string{"--help"}
		} else {
			return err
		}
	} else {
		args = global.Args()
	}

	if showVersion {
		fmt.Fprintf(stdout, "activityq %s\n", version.Info())
		return nil
	}

	a := &app{
		ctx:    ctx,
		client: client.New(client.SocketPath(socketPath)),
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}
	return a.root(global).execute(args, stderr)
}

func (a *app) root(global *pflag.FlagSet) *command {
	return &command{
		Name:    "activityq",
		Summary: "Submit activity files to an activityq server and read their outcomes.",
		Usage:   "activityq [--socket PATH] <command> [flags]",
		Flags:   func() *pflag.FlagSet { return global },
		Subcommands: []*command{
			a.putCommand(),
			a.getCommand(),
			a.waitCommand(),
			a.statusCommand(),
		},
	}
}
