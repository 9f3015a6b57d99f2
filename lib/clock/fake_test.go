// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeClock(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := Fake(start)

	if got := c.Now(); !got.Equal(start) {
		t.Fatalf("Now() = %v, want %v", got, start)
	}

	c.Advance(90 * time.Second)
	if got := c.Now(); !got.Equal(start.Add(90 * time.Second)) {
		t.Errorf("Now() after Advance = %v", got)
	}

	later := time.Date(2027, 1, 1, 0, 0, 0, 0, time.FixedZone("X", 3600))
	c.Set(later)
	got := c.Now()
	if !got.Equal(later) || got.Location() != time.UTC {
		t.Errorf("Now() after Set = %v (%v), want %v in UTC", got, got.Location(), later)
	}
}

func TestRealClockIsUTC(t *testing.T) {
	now := Real().Now()
	if now.Location() != time.UTC {
		t.Errorf("Real().Now() location = %v, want UTC", now.Location())
	}
	// Round(0) strips the monotonic reading, so the value survives an
	// encode/decode through Unix nanoseconds unchanged.
	if decoded := time.Unix(0, now.UnixNano()).UTC(); !decoded.Equal(now) {
		t.Errorf("round trip = %v, want %v", decoded, now)
	}
}
