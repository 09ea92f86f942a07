// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package activity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/bureau-foundation/activityq/lib/process"
)

// Environment variables passed to an external processor command.
const (
	EnvActivityFile          = "ACTIVITY_FILE"
	EnvActivityPassword      = "ACTIVITY_PASSWORD"
	EnvNetStabilizationDelay = "NET_STABILIZATION_DELAY"
)

// maxCommandOutput bounds what is read from the command's stdout and
// kept from its stderr.
const maxCommandOutput = 1 << 20

// execWaitDelay is how long Wait keeps collecting output after the
// command was killed for missing its deadline.
const execWaitDelay = 2 * time.Second

// ExecProcessor runs an external command for every task. The command
// reads the activity from the file named by ACTIVITY_FILE and prints
// one JSON object on stdout: the result map, or {"error": "<kind>"}
// with a domain ErrorKind. The command is killed when the task
// deadline passes. It stays in the caller's process group, so
// anything it starts is removed along with that group.
type ExecProcessor struct {
	command []string
	tempDir string
	logger  *slog.Logger
}

// NewExecProcessor returns a processor running command. Activity
// payloads are staged in tempDir ("" means os.TempDir()).
func NewExecProcessor(command []string, tempDir string, logger *slog.Logger) (*ExecProcessor, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, errors.New("exec processor: empty command")
	}
	return &ExecProcessor{
		command: command,
		tempDir: tempDir,
		logger:  logger,
	}, nil
}

// Process stages the payload and runs the command.
func (p *ExecProcessor) Process(ctx context.Context, req Request) (map[string]any, error) {
	activityFile, err := p.stage(req.Payload)
	if err != nil {
		return nil, err
	}
	defer os.Remove(activityFile)

	cmd := exec.CommandContext(ctx, p.command[0], p.command[1:]...)
	cmd.Env = append(os.Environ(),
		EnvActivityFile+"="+activityFile,
		EnvNetStabilizationDelay+"="+strconv.FormatFloat(req.NetStabilizationDelay.Seconds(), 'f', -1, 64),
	)
	if req.Password != nil {
		cmd.Env = append(cmd.Env, EnvActivityPassword+"="+*req.Password)
	}
	if req.Display != "" {
		cmd.Env = append(cmd.Env, "DISPLAY="+req.Display)
	}
	// The command shares the worker's process group. A deadline
	// kills the command itself; anything it left behind goes with the
	// worker, which a timeout always replaces.
	process.Attach(cmd)
	cmd.WaitDelay = execWaitDelay

	var stdout bytes.Buffer
	stderr := &tailBuffer{limit: maxCommandOutput}
	cmd.Stdout = &limitedWriter{writer: &stdout, remaining: maxCommandOutput}
	cmd.Stderr = stderr

	started := time.Now()
	runErr := cmd.Run()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	result, parseErr := parseCommandOutput(stdout.Bytes())
	p.logger.Debug("processor command finished",
		"command", p.command[0],
		"exit_code", process.ExitCode(runErr),
		"duration", time.Since(started),
	)

	var activityErr *Error
	if errors.As(parseErr, &activityErr) {
		return nil, activityErr
	}
	if runErr != nil {
		return nil, fmt.Errorf("processor command %s: %w (stderr: %s)",
			p.command[0], runErr, strings.TrimSpace(stderr.String()))
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return result, nil
}

// Close is a no-op: every command exits with its task.
func (p *ExecProcessor) Close() error { return nil }

func (p *ExecProcessor) stage(payload []byte) (string, error) {
	file, err := os.CreateTemp(p.tempDir, "activity-*.pka")
	if err != nil {
		return "", fmt.Errorf("staging activity file: %w", err)
	}
	name := file.Name()
	if _, err := file.Write(payload); err != nil {
		file.Close()
		os.Remove(name)
		return "", fmt.Errorf("staging activity file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("staging activity file: %w", err)
	}
	return name, nil
}

// parseCommandOutput decodes the JSON object printed by a processor
// command. A {"error": kind} object with a domain kind becomes an
// *Error.
func parseCommandOutput(output []byte) (map[string]any, error) {
	trimmed := bytes.TrimSpace(output)
	if len(trimmed) == 0 {
		return nil, errors.New("processor command printed nothing")
	}
	var result map[string]any
	if err := json.Unmarshal(trimmed, &result); err != nil {
		return nil, fmt.Errorf("processor command output: %w", err)
	}
	if rawKind, ok := result["error"]; ok {
		kind, _ := rawKind.(string)
		if !ErrorKind(kind).IsDomain() {
			return nil, fmt.Errorf("processor command reported unknown error %q", kind)
		}
		return nil, Fail(ErrorKind(kind), nil)
	}
	if result == nil {
		return nil, errors.New("processor command printed null")
	}
	return result, nil
}

// limitedWriter discards everything past its budget while reporting
// full writes, so a chatty command is not killed by EPIPE.
type limitedWriter struct {
	writer    io.Writer
	remaining int
}

func (w *limitedWriter) Write(data []byte) (int, error) {
	if w.remaining > 0 {
		chunk := data
		if len(chunk) > w.remaining {
			chunk = chunk[:w.remaining]
		}
		written, err := w.writer.Write(chunk)
		w.remaining -= written
		if err != nil {
			return written, err
		}
	}
	return len(data), nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	data  []byte
	limit int
}

func (b *tailBuffer) Write(data []byte) (int, error) {
	b.data = append(b.data, data...)
	if overflow := len(b.data) - b.limit; overflow > 0 {
		b.data = b.data[overflow:]
	}
	return len(data), nil
}

func (b *tailBuffer) String() string { return string(b.data) }
