// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"testing"
	"time"

	"github.com/bureau-foundation/activityq/lib/activity"
	"github.com/bureau-foundation/activityq/lib/codec"
	"github.com/bureau-foundation/activityq/lib/compress"
)

// TestTaskMessageWireNames decodes a task request into a plain map to
// pin the field names other client bindings rely on.
func TestTaskMessageWireNames(t *testing.T) {
	password := "123"
	encoded, err := codec.Marshal(NewTaskMessage([]byte("lab"), &password, 2*time.Second))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var wire map[string]any
	if err := codec.Unmarshal(encoded, &wire); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if wire["kind"] != KindTask {
		t.Errorf("kind = %v, want %q", wire["kind"], KindTask)
	}
	if wire["password"] != "123" {
		t.Errorf("password = %v, want 123", wire["password"])
	}
	if wire["net_stabilization_delay"] != uint64(2*time.Second) {
		t.Errorf("net_stabilization_delay = %v (%T)", wire["net_stabilization_delay"], wire["net_stabilization_delay"])
	}
	if _, ok := wire["activity"].([]byte); !ok {
		t.Errorf("activity has type %T, want a byte string", wire["activity"])
	}
}

func TestTaskMessageNilPasswordIsNull(t *testing.T) {
	encoded, err := codec.Marshal(NewTaskMessage([]byte("lab"), nil, 0))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded TaskMessage
	if err := codec.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Password != nil {
		t.Errorf("Password = %q, want nil", *decoded.Password)
	}

	empty := ""
	encoded, err = codec.Marshal(NewTaskMessage([]byte("lab"), &empty, 0))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	decoded = TaskMessage{}
	if err := codec.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Password == nil || *decoded.Password != "" {
		t.Errorf("empty password did not survive the wire: %v", decoded.Password)
	}
}

func TestResponseHeaderRouting(t *testing.T) {
	outcome := activity.Failed(activity.WrongPassword, time.Second)
	encoded, err := codec.Marshal(Response{Kind: KindResult, ActivityData: &outcome})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var header Header
	if err := codec.Unmarshal(encoded, &header); err != nil {
		t.Fatalf("Unmarshal header: %v", err)
	}
	if header.Kind != KindResult {
		t.Errorf("Kind = %q, want %q", header.Kind, KindResult)
	}

	var response Response
	if err := codec.Unmarshal(encoded, &response); err != nil {
		t.Fatalf("Unmarshal response: %v", err)
	}
	if response.ActivityData == nil || response.ActivityData.Error != activity.WrongPassword {
		t.Errorf("ActivityData = %+v", response.ActivityData)
	}
}

// TestWorkerTaskFitsWorkerFrameLimit checks that the worker frame
// built from an admitted request never exceeds the limit derived from
// the request's size, even when the payload is stored uncompressed.
func TestWorkerTaskFitsWorkerFrameLimit(t *testing.T) {
	for _, size := range []int{1, 4 << 10, 1 << 20} {
		payload := make([]byte, size)
		for i := range payload {
			payload[i] = byte(i * 7)
		}
		password := "correct horse battery staple"
		request, err := codec.Marshal(NewTaskMessage(payload, &password, 3*time.Second))
		if err != nil {
			t.Fatalf("Marshal request: %v", err)
		}

		frame, err := codec.Marshal(WorkerTask{
			TaskID:                "0b8c1a3e-6b5f-4f7a-9d2e-1c4b7a9e0f12",
			Payload:               payload,
			Compression:           compress.None,
			Size:                  size,
			Digest:                activity.HashPayload(payload),
			Password:              &password,
			NetStabilizationDelay: 3 * time.Second,
			Timeout:               time.Hour,
		})
		if err != nil {
			t.Fatalf("Marshal worker task: %v", err)
		}

		limit := WorkerFrameLimit(len(request))
		if len(frame) > limit {
			t.Errorf("size %d: worker frame is %d bytes, limit for a %d byte request is %d",
				size, len(frame), len(request), limit)
		}
		if len(frame) <= len(request) {
			t.Errorf("size %d: worker frame (%d bytes) should be larger than the request (%d bytes)",
				size, len(frame), len(request))
		}
	}
}
