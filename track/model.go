// Package track owns the submission data model: the append-only history
// of confirmed submissions, the transient pending snapshot, and the
// status lifecycle that drives user-visible feedback. All shared state
// lives in the store under three keys; the Tracker is the only writer of
// the pending and status slots, and the only automatic writer of the
// history.
package track

import "time"

// Storage keys in the shared store.
const (
	KeyEntries = "submissionEntries"
	KeyPending = "pendingSubmission"
	KeyStatus  = "pendingStatus"
)

const (
	// MaxEntries caps the history; insertion is at the head, overflow
	// truncates the tail.
	MaxEntries = 200

	// DedupGuard is the window within which a repeat confirmation for the
	// same form counts as the same physical submission.
	DedupGuard = 15 * time.Second

	// WaitingStale is how long a waiting status may age before a reader
	// presents it as timeout.
	WaitingStale = 10 * time.Minute

	// RecordedStale is how long a recorded status may age before a reader
	// presents it as idle.
	RecordedStale = 30 * time.Second
)

// State is the pending-status lifecycle.
type State string

const (
	StateIdle     State = "idle"
	StateActive   State = "active"
	StateWaiting  State = "waiting"
	StateRecorded State = "recorded"
	StateTimeout  State = "timeout"
)

// Source tags how a confirmed submission was detected.
type Source string

const (
	// SourceConfirmation: the confirmation heuristic fired on load or on
	// a structural mutation, with no or a matching pending record.
	SourceConfirmation Source = "confirmation"
	// SourceConfirmationWatch: the bounded poll started by a submit
	// intent resolved before its deadline.
	SourceConfirmationWatch Source = "confirmation-watch"
	// SourceConfirmationMismatch: the page confirmed a different form
	// identity than the pending record; the page identity wins and the
	// cached answers are discarded.
	SourceConfirmationMismatch Source = "confirmation-mismatch"
	// SourceManual: explicit user-initiated entry, bypassing detection.
	SourceManual Source = "manual"
)

// Answer is one captured question with its selected or typed values, in
// page order.
type Answer struct {
	Question string   `json:"question"`
	Answers  []string `json:"answers"`
}

// Entry is one confirmed submission. Immutable once written.
type Entry struct {
	ID        string   `json:"id"`
	FormID    string   `json:"formId"`
	Timestamp string   `json:"timestamp"` // RFC 3339
	URL       string   `json:"url"`
	Title     string   `json:"title"`
	Answers   []Answer `json:"answers"`
	Source    Source   `json:"source"`
}

// Time parses the entry timestamp. Malformed timestamps return the zero
// time, which never satisfies a time comparison.
func (e Entry) Time() time.Time { return parseTime(e.Timestamp) }

// PendingSubmission is a captured, not-yet-confirmed snapshot of answers.
// Single slot, keyed by form identity; cleared on confirmation.
type PendingSubmission struct {
	FormID    string   `json:"formId"`
	Timestamp string   `json:"timestamp"`
	URL       string   `json:"url"`
	Title     string   `json:"title"`
	Answers   []Answer `json:"answers"`
}

// PendingStatus is the transient user-visible state of the current
// submission attempt. Not part of permanent history.
type PendingStatus struct {
	State     State  `json:"state"`
	Timestamp string `json:"timestamp"`
	URL       string `json:"url,omitempty"`
	Title     string `json:"title,omitempty"`
}

// Time parses the status timestamp; zero for malformed values.
func (p PendingStatus) Time() time.Time { return parseTime(p.Timestamp) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
