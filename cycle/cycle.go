// Package cycle computes the boundaries of the weekly accountability
// window and upcoming deadline instants. All functions are pure and
// total: any input instant yields a well-defined result, there are no
// error conditions and no I/O.
package cycle

import "time"

// Anchor is the fixed weekday+hour that opens each weekly cycle.
type Anchor struct {
	Weekday time.Weekday
	Hour    int
}

// Start returns the most recent past-or-equal occurrence of the anchor
// relative to now. When now falls earlier in the week than the anchor,
// the start rolls back a full week, so the result is always within the
// preceding seven days.
func Start(a Anchor, now time.Time) time.Time {
	daysBack := int(now.Weekday()-a.Weekday+7) % 7
	start := time.Date(now.Year(), now.Month(), now.Day()-daysBack,
		a.Hour, 0, 0, 0, now.Location())
	if start.After(now) {
		start = start.AddDate(0, 0, -7)
	}
	return start
}

// NextDeadline returns the soonest strictly-future occurrence of the
// given weekday+hour. An instant sitting exactly on the boundary rolls a
// full week forward, so the result is never equal to now.
func NextDeadline(weekday time.Weekday, hour int, now time.Time) time.Time {
	delta := int(weekday-now.Weekday()+7) % 7
	next := time.Date(now.Year(), now.Month(), now.Day()+delta,
		hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}
