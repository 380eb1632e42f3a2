package cycle

import (
	"testing"
	"time"
)

var moscow = time.FixedZone("MSK", 3*60*60)

func TestStartBounds(t *testing.T) {
	anchor := Anchor{Weekday: time.Saturday, Hour: 18}

	// Sweep a fortnight hour by hour; the invariants must hold for every
	// reference instant.
	base := time.Date(2026, time.March, 1, 0, 0, 0, 0, moscow)
	for i := 0; i < 14*24; i++ {
		now := base.Add(time.Duration(i) * time.Hour)
		start := Start(anchor, now)

		if start.After(now) {
			t.Fatalf("Start(%v) = %v is in the future", now, start)
		}
		if now.Sub(start) >= 7*24*time.Hour {
			t.Fatalf("Start(%v) = %v is more than a week back", now, start)
		}
		if start.Weekday() != time.Saturday || start.Hour() != 18 {
			t.Fatalf("Start(%v) = %v does not sit on the anchor", now, start)
		}
	}
}

func TestStartExactBoundary(t *testing.T) {
	anchor := Anchor{Weekday: time.Saturday, Hour: 18}

	// 2026-03-07 is a Saturday. Exactly 18:00 belongs to the new cycle.
	onBoundary := time.Date(2026, time.March, 7, 18, 0, 0, 0, moscow)
	if got := Start(anchor, onBoundary); !got.Equal(onBoundary) {
		t.Fatalf("Start at boundary = %v, want %v", got, onBoundary)
	}

	// One second earlier still belongs to the previous cycle.
	justBefore := onBoundary.Add(-time.Second)
	want := onBoundary.AddDate(0, 0, -7)
	if got := Start(anchor, justBefore); !got.Equal(want) {
		t.Fatalf("Start just before boundary = %v, want %v", got, want)
	}
}

func TestStartWeekWraparound(t *testing.T) {
	anchor := Anchor{Weekday: time.Saturday, Hour: 18}

	// Monday: the target weekday is numerically after the current one.
	monday := time.Date(2026, time.March, 9, 12, 0, 0, 0, moscow)
	got := Start(anchor, monday)
	want := time.Date(2026, time.March, 7, 18, 0, 0, 0, moscow)
	if !got.Equal(want) {
		t.Fatalf("Start(monday) = %v, want %v", got, want)
	}
}

func TestNextDeadlineBounds(t *testing.T) {
	base := time.Date(2026, time.March, 1, 0, 0, 0, 0, moscow)
	for i := 0; i < 14*24; i++ {
		now := base.Add(time.Duration(i) * time.Hour)
		next := NextDeadline(time.Sunday, 13, now)

		if !next.After(now) {
			t.Fatalf("NextDeadline(%v) = %v is not in the future", now, next)
		}
		if next.Sub(now) > 7*24*time.Hour {
			t.Fatalf("NextDeadline(%v) = %v is more than a week out", now, next)
		}
		if next.Weekday() != time.Sunday || next.Hour() != 13 {
			t.Fatalf("NextDeadline(%v) = %v does not match weekday/hour", now, next)
		}
	}
}

func TestNextDeadlineExactBoundaryRollsForward(t *testing.T) {
	// 2026-03-08 is a Sunday; exactly 13:00 schedules a week out.
	onBoundary := time.Date(2026, time.March, 8, 13, 0, 0, 0, moscow)
	got := NextDeadline(time.Sunday, 13, onBoundary)
	want := onBoundary.AddDate(0, 0, 7)
	if !got.Equal(want) {
		t.Fatalf("NextDeadline at boundary = %v, want %v", got, want)
	}
}

func TestNextDeadlineWraparound(t *testing.T) {
	// Friday asking for a Wednesday deadline crosses the week boundary.
	friday := time.Date(2026, time.March, 13, 9, 0, 0, 0, moscow)
	got := NextDeadline(time.Wednesday, 18, friday)
	want := time.Date(2026, time.March, 18, 18, 0, 0, 0, moscow)
	if !got.Equal(want) {
		t.Fatalf("NextDeadline(friday, wednesday) = %v, want %v", got, want)
	}
}
