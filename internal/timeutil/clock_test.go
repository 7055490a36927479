package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestMockClock(t *testing.T) {
	start := time.Date(2025, 9, 4, 23, 30, 0, 0, time.UTC)
	clock := NewMockClock(start)

	if got := clock.Now(); !got.Equal(start) {
		t.Errorf("Now() = %v, want %v", got, start)
	}

	clock.Advance(45 * time.Minute)
	if got := DayStamp(clock.Now()); got != "2025-09-05" {
		t.Errorf("DayStamp after advance = %q, want 2025-09-05", got)
	}

	clock.Set(start)
	if got := DayStamp(clock.Now()); got != "2025-09-04" {
		t.Errorf("DayStamp after set = %q, want 2025-09-04", got)
	}
}
