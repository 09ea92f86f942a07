// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package activity

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bureau-foundation/activityq/lib/codec"
)

// scriptMagic prefixes every scripted payload so that arbitrary bytes
// (a stray file name, a real activity file) are never mistaken for a
// script.
var scriptMagic = []byte("AQSCRIPT1\n")

// Script kinds.
const (
	ScriptActivity = "activity"
	ScriptTopology = "topology"
)

// CrashExitCode is the status a worker exits with when a script asks
// it to crash.
const CrashExitCode = 86

// Script describes the behavior of a scripted activity.
type Script struct {
	// Kind is ScriptActivity or ScriptTopology.
	Kind string `cbor:"kind"`

	// Password protects the activity when non-empty.
	Password string `cbor:"password,omitempty"`

	// Percentage is reported as totalPercentage once opened.
	Percentage float64 `cbor:"percentage"`

	// Work is extra processing time after the stabilization delay.
	Work time.Duration `cbor:"work,omitempty"`

	// Crash terminates the worker process mid-task.
	Crash bool `cbor:"crash,omitempty"`

	// Hang blocks until the task deadline.
	Hang bool `cbor:"hang,omitempty"`
}

// EncodeScript builds a scripted activity payload.
func EncodeScript(script Script) ([]byte, error) {
	body, err := codec.Marshal(script)
	if err != nil {
		return nil, fmt.Errorf("encoding script: %w", err)
	}
	return append(append([]byte{}, scriptMagic...), body...), nil
}

// DecodeScript parses a scripted activity payload.
func DecodeScript(payload []byte) (Script, error) {
	var script Script
	if !bytes.HasPrefix(payload, scriptMagic) {
		return script, errors.New("not a scripted activity")
	}
	if err := codec.Unmarshal(payload[len(scriptMagic):], &script); err != nil {
		return script, fmt.Errorf("decoding script: %w", err)
	}
	if script.Kind != ScriptActivity && script.Kind != ScriptTopology {
		return script, fmt.Errorf("unknown script kind %q", script.Kind)
	}
	return script, nil
}

// ScriptedProcessor interprets payloads built by EncodeScript. Like a
// real desktop processor it keeps state across tasks: the number of
// activities it has opened, reported as "sessionTasks", which makes a
// fresh session observable from the outside.
type ScriptedProcessor struct {
	// Exit terminates the process for Crash scripts. Defaults to
	// os.Exit.
	Exit func(code int)

	opened int
	closed bool
}

// NewScriptedProcessor returns a processor with a fresh session state.
func NewScriptedProcessor() *ScriptedProcessor {
	return &ScriptedProcessor{Exit: os.Exit}
}

// Process runs the script carried by req.Payload.
func (p *ScriptedProcessor) Process(ctx context.Context, req Request) (map[string]any, error) {
	if p.closed {
		return nil, errors.New("scripted processor is closed")
	}

	script, err := DecodeScript(req.Payload)
	if err != nil {
		return nil, Fail(FileReadingError, err)
	}
	if script.Kind == ScriptTopology {
		return nil, Fail(TopologyNotSupported, nil)
	}
	if script.Password != "" {
		if req.Password == nil {
			return nil, Fail(NeedsPassword, nil)
		}
		if *req.Password != script.Password {
			return nil, Fail(WrongPassword, nil)
		}
	}
	p.opened++

	if script.Crash {
		p.Exit(CrashExitCode)
		return nil, errors.New("crash requested")
	}
	if script.Hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	if err := sleep(ctx, req.NetStabilizationDelay+script.Work); err != nil {
		return nil, err
	}

	return map[string]any{
		TotalPercentageKey: script.Percentage,
		"sessionTasks":     float64(p.opened),
		"workerPid":        float64(os.Getpid()),
	}, nil
}

// Close ends the session.
func (p *ScriptedProcessor) Close() error {
	p.closed = true
	return nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
