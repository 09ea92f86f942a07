// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package display

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/activityq/lib/testutil"
)

func TestInherit(t *testing.T) {
	t.Setenv("DISPLAY", ":7")
	display := Inherit()
	if display.Name() != ":7" {
		t.Errorf("Name() = %q, want :7", display.Name())
	}
	if err := display.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestStartXvfbMissingBinary(t *testing.T) {
	_, err := StartXvfb(context.Background(), XvfbOptions{Binary: "activityq-no-such-xvfb"}, testutil.Logger())
	if err == nil {
		t.Fatal("StartXvfb succeeded with a missing binary")
	}
}

func TestStartXvfb(t *testing.T) {
	if _, err := exec.LookPath("Xvfb"); err != nil {
		t.Skip("Xvfb not installed")
	}

	xvfb, err := StartXvfb(context.Background(), XvfbOptions{StartTimeout: 20 * time.Second}, testutil.Logger())
	if err != nil {
		t.Fatalf("StartXvfb: %v", err)
	}
	if !strings.HasPrefix(xvfb.Name(), ":") {
		t.Errorf("Name() = %q, want a :N display", xvfb.Name())
	}
	if err := xvfb.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	testutil.RequireClosed(t, xvfb.done, 5*time.Second, "Xvfb exit")

	// Closing twice is harmless.
	if err := xvfb.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
