// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/bureau-foundation/activityq/lib/activity"
	"github.com/bureau-foundation/activityq/lib/codec"
	"github.com/bureau-foundation/activityq/lib/compress"
	"github.com/bureau-foundation/activityq/lib/protocol"
)

// Serve announces readiness on out, then processes WorkerTask frames
// of at most maxFrameSize bytes from in one at a time until in reaches
// end of stream or ctx is done. It returns nil on a clean end of
// stream.
func Serve(ctx context.Context, in io.Reader, out io.Writer, maxFrameSize int, processor activity.Processor, displayName string, logger *slog.Logger) error {
	ready := protocol.WorkerReady{PID: os.Getpid(), Display: displayName}
	if err := codec.WriteFrame(out, ready); err != nil {
		return fmt.Errorf("announcing readiness: %w", err)
	}
	logger.Info("worker ready", "display", displayName)

	served := 0
	for {
		var task protocol.WorkerTask
		err := codec.ReadFrame(in, maxFrameSize, &task)
		if errors.Is(err, io.EOF) {
			logger.Info("task stream closed", "tasks_served", served)
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading task: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		started := time.Now()
		outcome := handle(ctx, task, processor, displayName)
		served++

		attrs := []any{
			"task_id", task.TaskID,
			"digest", task.Digest.Short(),
			"duration", time.Since(started),
		}
		if outcome.Error != "" {
			attrs = append(attrs, "outcome", outcome.Error)
			if outcome.Detail != "" {
				attrs = append(attrs, "detail", outcome.Detail)
			}
		}
		logger.Info("task processed", attrs...)

		if err := codec.WriteFrame(out, outcome); err != nil {
			return fmt.Errorf("writing outcome for %s: %w", task.TaskID, err)
		}
	}
}

// handle turns one task into exactly one outcome.
func handle(ctx context.Context, task protocol.WorkerTask, processor activity.Processor, displayName string) protocol.WorkerOutcome {
	outcome := protocol.WorkerOutcome{TaskID: task.TaskID}

	payload, err := compress.Decompress(task.Payload, task.Compression, task.Size)
	if err != nil {
		outcome.Error = activity.Unexpected
		outcome.Detail = err.Error()
		return outcome
	}
	if digest := activity.HashPayload(payload); digest != task.Digest {
		outcome.Error = activity.Unexpected
		outcome.Detail = fmt.Sprintf("payload digest %s does not match %s", digest.Short(), task.Digest.Short())
		return outcome
	}

	taskCtx := ctx
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	result, err := processor.Process(taskCtx, activity.Request{
		Payload:               payload,
		Password:              task.Password,
		NetStabilizationDelay: task.NetStabilizationDelay,
		Display:               displayName,
	})
	switch {
	case err == nil:
		if result == nil {
			result = map[string]any{}
		}
		outcome.Result = result
	case errors.Is(err, context.DeadlineExceeded) && taskCtx.Err() != nil:
		outcome.Error = activity.ProcessingTimeout
	default:
		outcome.Error = activity.KindOf(err)
		if outcome.Error == activity.Unexpected {
			outcome.Detail = err.Error()
		}
	}
	return outcome
}
