// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Components that stamp or expire state (the result store and its
// janitor) hold a Clock instead of calling the time package. In tests
// a FakeClock makes expiry deterministic:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	store := results.New(5*time.Minute, fake, logger)
//	fake.Advance(5 * time.Minute)
//
// Use WaitForTimers before Advance when a goroutine under test arms a
// ticker concurrently.
package clock
