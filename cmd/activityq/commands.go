// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/activityq/lib/activity"
	"github.com/bureau-foundation/activityq/lib/client"
	"github.com/bureau-foundation/activityq/lib/config"
	"github.com/bureau-foundation/activityq/lib/protocol"
)

// notCompletedExit is the exit status of "get" for a task that is
// still pending, so scripts can poll without parsing output.
const notCompletedExit = 2

type waitParams struct {
	interval config.Duration
	timeout  config.Duration
}

func (p *waitParams) bind(flags *pflag.FlagSet) {
	p.interval = config.Duration(client.DefaultPollInterval)
	flags.Var(&p.interval, "interval", "poll interval (seconds or duration)")
	flags.Var(&p.timeout, "timeout", "give up after this long (seconds or duration, default: no limit)")
}

func (p *waitParams) context(parent context.Context) (context.Context, context.CancelFunc) {
	if p.timeout > 0 {
		return context.WithTimeout(parent, p.timeout.Std())
	}
	return context.WithCancel(parent)
}

func (a *app) putCommand() *command {
	var (
		password       string
		passwordPrompt bool
		delay          config.Duration
		wait           bool
		waiting        waitParams

		// flags is the set Run's arguments were parsed with.
		flags *pflag.FlagSet
	)
	return &command{
		Name:    "put",
		Summary: "Submit an activity file and print its task id",
		Usage:   "activityq put FILE [flags]  (FILE may be - for stdin)",
		Flags: func() *pflag.FlagSet {
			flags = pflag.NewFlagSet("put", pflag.ContinueOnError)
			flags.StringVar(&password, "password", "", "password for a protected activity (may be empty)")
			flags.BoolVar(&passwordPrompt, "password-prompt", false, "read the password from the terminal without echo")
			flags.Var(&delay, "net-stabilization-delay", "delay before results are read (seconds or duration)")
			flags.BoolVar(&wait, "wait", false, "wait for the outcome and print it")
			waiting.bind(flags)
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return errors.New("put takes exactly one FILE argument")
			}
			payload, err := a.readActivity(args[0])
			if err != nil {
				return err
			}

			var options client.PutOptions
			options.NetStabilizationDelay = delay.Std()
			switch {
			case passwordPrompt:
				prompted, err := a.promptPassword()
				if err != nil {
					return err
				}
				options.Password = &prompted
			case flags.Changed("password"):
				// An empty password is still a password.
				options.Password = &password
			}

			taskID, err := a.client.Put(a.ctx, payload, options)
			if err != nil {
				return err
			}
			if !wait {
				fmt.Fprintln(a.stdout, taskID)
				return nil
			}

			ctx, cancel := waiting.context(a.ctx)
			defer cancel()
			data, err := a.client.Wait(ctx, taskID, waiting.interval.Std())
			if err != nil {
				return err
			}
			return a.writeResult(taskID, data)
		},
	}
}

func (a *app) getCommand() *command {
	return &command{
		Name:    "get",
		Summary: "Print the outcome of a task",
		Usage:   "activityq get TASK_ID",
		Run: func(args []string) error {
			if len(args) != 1 {
				return errors.New("get takes exactly one TASK_ID argument")
			}
			data, err := a.client.Get(a.ctx, args[0])
			if errors.Is(err, client.ErrTaskNotCompleted) {
				fmt.Fprintf(a.stderr, "task %s is not completed yet\n", args[0])
				return &exitError{Code: notCompletedExit}
			}
			if err != nil {
				return err
			}
			return a.writeResult(args[0], data)
		},
	}
}

func (a *app) waitCommand() *command {
	var waiting waitParams
	return &command{
		Name:    "wait",
		Summary: "Wait for a task to complete and print its outcome",
		Usage:   "activityq wait TASK_ID [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("wait", pflag.ContinueOnError)
			waiting.bind(flags)
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return errors.New("wait takes exactly one TASK_ID argument")
			}
			ctx, cancel := waiting.context(a.ctx)
			defer cancel()
			data, err := a.client.Wait(ctx, args[0], waiting.interval.Std())
			if err != nil {
				return err
			}
			return a.writeResult(args[0], data)
		},
	}
}

func (a *app) statusCommand() *command {
	var outputJSON bool
	return &command{
		Name:    "status",
		Summary: "Show queue, result and worker state",
		Usage:   "activityq status [--json]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("status", pflag.ContinueOnError)
			flags.BoolVar(&outputJSON, "json", false, "output as JSON")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return errors.New("status takes no arguments")
			}
			status, err := a.client.Status(a.ctx)
			if err != nil {
				return err
			}
			if outputJSON {
				return a.writeJSON(status)
			}
			a.writeStatus(status, time.Now())
			return nil
		},
	}
}

func (a *app) readActivity(path string) ([]byte, error) {
	var (
		payload []byte
		err     error
	)
	if path == "-" {
		payload, err = io.ReadAll(a.stdin)
	} else {
		payload, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading activity: %w", err)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("activity %s is empty", path)
	}
	return payload, nil
}

func (a *app) promptPassword() (string, error) {
	fd := int(a.stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--password-prompt needs a terminal on stdin")
	}
	fmt.Fprint(a.stderr, "Activity password: ")
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(a.stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(password), nil
}

// resultView is the JSON rendering of a task outcome. Exactly one of
// Data and Error is non-null.
type resultView struct {
	TaskID       string         `json:"task_id"`
	Data         map[string]any `json:"data"`
	Error        *string        `json:"error"`
	ConsumedTime float64        `json:"consumed_time_seconds"`
}

func (a *app) writeResult(taskID string, data activity.Data) error {
	view := resultView{
		TaskID:       taskID,
		ConsumedTime: data.ConsumedTime.Seconds(),
	}
	if data.Error != "" {
		kind := string(data.Error)
		view.Error = &kind
	} else {
		view.Data = data.Data
		if view.Data == nil {
			view.Data = map[string]any{}
		}
	}
	return a.writeJSON(view)
}

func (a *app) writeJSON(value any) error {
	encoder := json.NewEncoder(a.stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func (a *app) writeStatus(status *protocol.Status, now time.Time) {
	fmt.Fprintf(a.stdout, "Server:   %s, up since %s\n", status.Version, humanize.RelTime(status.StartedAt, now, "ago", "from now"))
	fmt.Fprintf(a.stdout, "Queue:    %s of %s waiting\n",
		humanize.Comma(int64(status.QueueLength)), humanize.Comma(int64(status.QueueCapacity)))
	fmt.Fprintf(a.stdout, "Results:  %s pending, %s completed\n",
		humanize.Comma(int64(status.PendingResults)), humanize.Comma(int64(status.CompletedResults)))

	if len(status.Workers) == 0 {
		return
	}
	fmt.Fprintln(a.stdout)
	tw := tabwriter.NewWriter(a.stdout, 2, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WORKER\tSTATE\tPID\tDISPLAY\tSESSION TASKS\tSESSIONS\tCOMPLETED")
	for _, worker := range status.Workers {
		pid := "-"
		if worker.PID != 0 {
			pid = fmt.Sprint(worker.PID)
		}
		display := worker.Display
		if display == "" {
			display = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
			worker.Index,
			worker.State,
			pid,
			display,
			worker.SessionTasks,
			humanize.Comma(int64(worker.SessionsStarted)),
			humanize.Comma(int64(worker.TasksCompleted)),
		)
	}
	tw.Flush()
}
