// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

type sampleMessage struct {
	Kind   string `cbor:"kind"`
	TaskID string `cbor:"task_id,omitempty"`
	Count  int    `cbor:"count"`
}

func TestFrameRoundtrip(t *testing.T) {
	messages := []sampleMessage{
		{Kind: "task", Count: 1},
		{Kind: "task_id", TaskID: "5f0c", Count: 2},
		{Kind: "status"},
	}

	var buffer bytes.Buffer
	for _, message := range messages {
		if err := WriteFrame(&buffer, message); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}

	for i, want := range messages {
		var got sampleMessage
		if err := ReadFrame(&buffer, DefaultMaxFrameSize, &got); err != nil {
			t.Fatalf("ReadFrame message %d: %v", i, err)
		}
		if got != want {
			t.Errorf("message %d: got %+v, want %+v", i, got, want)
		}
	}

	var extra sampleMessage
	if err := ReadFrame(&buffer, DefaultMaxFrameSize, &extra); err != io.EOF {
		t.Errorf("ReadFrame on drained stream = %v, want io.EOF", err)
	}
}

func TestFrameHeaderIsBigEndianLength(t *testing.T) {
	var buffer bytes.Buffer
	if err := WriteFrame(&buffer, sampleMessage{Kind: "task"}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	raw := buffer.Bytes()
	if len(raw) < frameHeaderSize {
		t.Fatalf("frame is %d bytes, shorter than header", len(raw))
	}
	announced := binary.BigEndian.Uint32(raw[:frameHeaderSize])
	if int(announced) != len(raw)-frameHeaderSize {
		t.Errorf("header announces %d bytes, payload is %d", announced, len(raw)-frameHeaderSize)
	}
}

func TestReadFrameRejectsOversized(t *testing.T) {
	var buffer bytes.Buffer
	if err := WriteFrame(&buffer, sampleMessage{Kind: "task_id", TaskID: "0123456789abcdef"}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	var got sampleMessage
	err := ReadFrame(&buffer, 8, &got)
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("ReadFrame = %v, want ErrFrameTooLarge", err)
	}
}

func TestReadFrameTruncated(t *testing.T) {
	var buffer bytes.Buffer
	if err := WriteFrame(&buffer, sampleMessage{Kind: "task", Count: 42}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	truncated := buffer.Bytes()[:buffer.Len()-2]

	var got sampleMessage
	err := ReadFrame(bytes.NewReader(truncated), DefaultMaxFrameSize, &got)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("ReadFrame = %v, want io.ErrUnexpectedEOF", err)
	}

	err = ReadFrame(bytes.NewReader([]byte{0, 0}), DefaultMaxFrameSize, &got)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("ReadFrame on partial header = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestReadFrameInvalidCBOR(t *testing.T) {
	var buffer bytes.Buffer
	if err := WriteRawFrame(&buffer, []byte{0xff, 0xff}); err != nil {
		t.Fatalf("WriteRawFrame: %v", err)
	}

	var got sampleMessage
	if err := ReadFrame(&buffer, DefaultMaxFrameSize, &got); err == nil {
		t.Fatal("ReadFrame accepted invalid CBOR")
	}
}

func TestMarshalDeterministic(t *testing.T) {
	value := map[string]any{"b": 2, "a": 1, "totalPercentage": 37.5}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	second, err := Marshal(value)
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding violated: %x != %x", first, second)
	}
}

func TestUnmarshalAnyMapUsesStringKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"totalPercentage": 12.5})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	asMap, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
	if asMap["totalPercentage"] != 12.5 {
		t.Errorf("totalPercentage = %v, want 12.5", asMap["totalPercentage"])
	}
}
