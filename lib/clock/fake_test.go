// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"

	"github.com/bureau-foundation/activityq/lib/testutil"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestFakeNowAdvances(t *testing.T) {
	fake := Fake(epoch)
	if got := fake.Now(); !got.Equal(epoch) {
		t.Fatalf("Now() = %v, want %v", got, epoch)
	}
	fake.Advance(90 * time.Second)
	if got, want := fake.Now(), epoch.Add(90*time.Second); !got.Equal(want) {
		t.Fatalf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestFakeAfterFiresAtDeadline(t *testing.T) {
	fake := Fake(epoch)
	channel := fake.After(10 * time.Second)

	fake.Advance(9 * time.Second)
	select {
	case <-channel:
		t.Fatal("After fired before its deadline")
	default:
	}

	fake.Advance(time.Second)
	fired := testutil.RequireReceive(t, channel, time.Second, "After should fire at deadline")
	if want := epoch.Add(10 * time.Second); !fired.Equal(want) {
		t.Errorf("fired at %v, want %v", fired, want)
	}
	if count := fake.PendingCount(); count != 0 {
		t.Errorf("PendingCount after firing = %d, want 0", count)
	}
}

func TestFakeAfterNonPositiveIsImmediate(t *testing.T) {
	fake := Fake(epoch)
	testutil.RequireReceive(t, fake.After(0), time.Second, "After(0)")
	if count := fake.PendingCount(); count != 0 {
		t.Errorf("PendingCount = %d, want 0", count)
	}
}

func TestFakeTickerRearms(t *testing.T) {
	fake := Fake(epoch)
	ticker := fake.NewTicker(time.Minute)
	defer ticker.Stop()

	for i := 1; i <= 3; i++ {
		fake.Advance(time.Minute)
		tick := testutil.RequireReceive(t, ticker.C, time.Second, "tick %d", i)
		if want := epoch.Add(time.Duration(i) * time.Minute); !tick.Equal(want) {
			t.Errorf("tick %d at %v, want %v", i, tick, want)
		}
	}
	if count := fake.PendingCount(); count != 1 {
		t.Errorf("PendingCount = %d, want 1", count)
	}
}

func TestFakeTickerStop(t *testing.T) {
	fake := Fake(epoch)
	ticker := fake.NewTicker(time.Second)
	ticker.Stop()

	fake.Advance(5 * time.Second)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker delivered a tick")
	default:
	}
	if count := fake.PendingCount(); count != 0 {
		t.Errorf("PendingCount = %d, want 0", count)
	}
}

func TestFakeWaitForTimers(t *testing.T) {
	fake := Fake(epoch)
	done := make(chan struct{})
	go func() {
		<-fake.After(time.Second)
		close(done)
	}()

	fake.WaitForTimers(1)
	fake.Advance(time.Second)
	testutil.RequireClosed(t, done, 5*time.Second, "goroutine waiting on After")
}
