package track

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/formwatch/idgen"
	"github.com/hazyhaar/formwatch/store"
)

// Tracker reconciles transient pending state with the durable history.
// Every method is fail-soft: storage errors are logged and the caller
// gets a fallback value, never an error — a torn-down page context must
// not halt interaction (it degrades to "no detection this cycle").
type Tracker struct {
	store  *store.Store
	logger *slog.Logger
	now    func() time.Time
}

// TrackerOption customises a Tracker.
type TrackerOption func(*Tracker)

// WithLogger overrides slog.Default().
func WithLogger(l *slog.Logger) TrackerOption {
	return func(t *Tracker) { t.logger = l }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// New creates a Tracker over the shared store.
func New(s *store.Store, opts ...TrackerOption) *Tracker {
	t := &Tracker{store: s, logger: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Entries returns the history, newest first. Nil on any failure.
func (t *Tracker) Entries(ctx context.Context) []Entry {
	var entries []Entry
	err := t.store.View(ctx, func(tx *store.Tx) error {
		_, err := tx.Get(KeyEntries, &entries)
		return err
	})
	if err != nil {
		t.logger.Warn("track: read entries failed", "error", err)
		return nil
	}
	return entries
}

// Entry returns the history entry with the given ID.
func (t *Tracker) Entry(ctx context.Context, id string) (Entry, bool) {
	for _, e := range t.Entries(ctx) {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Pending returns the current pending submission, or nil.
func (t *Tracker) Pending(ctx context.Context) *PendingSubmission {
	var p *PendingSubmission
	err := t.store.View(ctx, func(tx *store.Tx) error {
		_, err := tx.Get(KeyPending, &p)
		return err
	})
	if err != nil {
		t.logger.Warn("track: read pending failed", "error", err)
		return nil
	}
	return p
}

// MarkPending persists a submission attempt and moves the status to
// waiting. Called on every submit-intent signal; a repeat intent for the
// same form refreshes the answer snapshot but the status stays waiting.
func (t *Tracker) MarkPending(ctx context.Context, p PendingSubmission) {
	now := t.now()
	if p.Timestamp == "" {
		p.Timestamp = formatTime(now)
	}
	err := t.store.Update(ctx, func(tx *store.Tx) error {
		if err := tx.Set(KeyPending, p); err != nil {
			return err
		}
		return tx.Set(KeyStatus, PendingStatus{
			State:     StateWaiting,
			Timestamp: formatTime(now),
			URL:       p.URL,
			Title:     p.Title,
		})
	})
	if err != nil {
		t.logger.Warn("track: mark pending failed", "error", err)
	}
}

// Record confirms a submission for formID. It carries over the pending
// answer snapshot only when the pending record's form identity matches,
// deduplicates against the head entry within the guard interval, prepends
// the new entry (truncating to MaxEntries), clears the pending slot and
// publishes a recorded status — all in one transaction.
//
// It returns the entry the recorded status now references and whether a
// new entry was appended (false means the confirmation was folded into
// the existing head entry).
func (t *Tracker) Record(ctx context.Context, formID, pageURL, title string, source Source) (Entry, bool) {
	now := t.now()
	var out Entry
	appended := false

	err := t.store.Update(ctx, func(tx *store.Tx) error {
		var pending *PendingSubmission
		if _, err := tx.Get(KeyPending, &pending); err != nil {
			return err
		}
		var entries []Entry
		if _, err := tx.Get(KeyEntries, &entries); err != nil {
			return err
		}

		// Dedup guard: a repeat confirmation for the same form within the
		// window is the same physical submission. Republish recorded
		// referencing the existing head entry, no new entry.
		if len(entries) > 0 && entries[0].FormID == formID {
			if lt := entries[0].Time(); !lt.IsZero() && now.Sub(lt) < DedupGuard {
				out = entries[0]
				if out.Title == "" {
					out.Title = title
				}
				if out.URL == "" {
					out.URL = pageURL
				}
				return tx.Set(KeyStatus, PendingStatus{
					State:     StateRecorded,
					Timestamp: formatTime(now),
					URL:       out.URL,
					Title:     out.Title,
				})
			}
		}

		entry := Entry{
			ID:        idgen.EntryID(formID, now),
			FormID:    formID,
			Timestamp: formatTime(now),
			URL:       pageURL,
			Title:     title,
			Source:    source,
		}
		if pending != nil && pending.FormID == formID {
			entry.Answers = pending.Answers
			if pending.Title != "" {
				entry.Title = pending.Title
			}
		}

		entries = append([]Entry{entry}, entries...)
		if len(entries) > MaxEntries {
			entries = entries[:MaxEntries]
		}

		if err := tx.Set(KeyEntries, entries); err != nil {
			return err
		}
		if err := tx.Delete(KeyPending); err != nil {
			return err
		}
		out = entry
		appended = true
		return tx.Set(KeyStatus, PendingStatus{
			State:     StateRecorded,
			Timestamp: formatTime(now),
			URL:       entry.URL,
			Title:     entry.Title,
		})
	})
	if err != nil {
		t.logger.Warn("track: record failed", "form_id", formID, "error", err)
		return Entry{}, false
	}
	return out, appended
}

// Activate marks a tracked page as loaded, unless a confirmation wait is
// in flight: an existing waiting status is never clobbered.
func (t *Tracker) Activate(ctx context.Context, pageURL, title string) {
	err := t.store.Update(ctx, func(tx *store.Tx) error {
		var cur PendingStatus
		if _, err := tx.Get(KeyStatus, &cur); err != nil {
			return err
		}
		if cur.State == StateWaiting {
			return nil
		}
		return tx.Set(KeyStatus, PendingStatus{
			State:     StateActive,
			Timestamp: formatTime(t.now()),
			URL:       pageURL,
			Title:     title,
		})
	})
	if err != nil {
		t.logger.Warn("track: activate failed", "error", err)
	}
}

// MarkTimeout records that the confirmation bound elapsed without a
// confirmation signal. The pending submission is left in place.
func (t *Tracker) MarkTimeout(ctx context.Context, pageURL, title string) {
	err := t.store.Set(ctx, KeyStatus, PendingStatus{
		State:     StateTimeout,
		Timestamp: formatTime(t.now()),
		URL:       pageURL,
		Title:     title,
	})
	if err != nil {
		t.logger.Warn("track: mark timeout failed", "error", err)
	}
}

// Status returns the current pending status with read-side aging applied:
// a waiting status older than WaitingStale presents (and persists) as
// timeout, a recorded status older than RecordedStale as idle. Aging on
// the read path avoids a background cleanup timer. Malformed timestamps
// never count as stale.
func (t *Tracker) Status(ctx context.Context) PendingStatus {
	now := t.now()
	st := PendingStatus{State: StateIdle}

	err := t.store.Update(ctx, func(tx *store.Tx) error {
		var cur PendingStatus
		found, err := tx.Get(KeyStatus, &cur)
		if err != nil {
			return err
		}
		if !found || cur.State == "" {
			st = PendingStatus{State: StateIdle, Timestamp: formatTime(now)}
			return nil
		}

		switch cur.State {
		case StateWaiting:
			if ts := cur.Time(); !ts.IsZero() && now.Sub(ts) > WaitingStale {
				cur = PendingStatus{
					State:     StateTimeout,
					Timestamp: formatTime(now),
					URL:       cur.URL,
					Title:     cur.Title,
				}
				if err := tx.Set(KeyStatus, cur); err != nil {
					return err
				}
			}
		case StateRecorded:
			if ts := cur.Time(); !ts.IsZero() && now.Sub(ts) > RecordedStale {
				cur = PendingStatus{State: StateIdle, Timestamp: formatTime(now)}
				if err := tx.Set(KeyStatus, cur); err != nil {
					return err
				}
			}
		}
		st = cur
		return nil
	})
	if err != nil {
		t.logger.Warn("track: read status failed", "error", err)
		return PendingStatus{State: StateIdle}
	}
	return st
}

// ManualAdd appends a user-initiated entry, bypassing detection. No
// dedup: manual entries may collide in time with automatic ones.
func (t *Tracker) ManualAdd(ctx context.Context) (Entry, bool) {
	now := t.now()
	entry := Entry{
		ID:        idgen.EntryID("manual", now),
		FormID:    "manual",
		Timestamp: formatTime(now),
		Title:     "Added manually",
		Source:    SourceManual,
	}
	err := t.store.Update(ctx, func(tx *store.Tx) error {
		var entries []Entry
		if _, err := tx.Get(KeyEntries, &entries); err != nil {
			return err
		}
		entries = append([]Entry{entry}, entries...)
		if len(entries) > MaxEntries {
			entries = entries[:MaxEntries]
		}
		return tx.Set(KeyEntries, entries)
	})
	if err != nil {
		t.logger.Warn("track: manual add failed", "error", err)
		return Entry{}, false
	}
	return entry, true
}

// Remove deletes the entry with the given ID. Reports whether it existed.
func (t *Tracker) Remove(ctx context.Context, id string) bool {
	removed := false
	err := t.store.Update(ctx, func(tx *store.Tx) error {
		var entries []Entry
		if _, err := tx.Get(KeyEntries, &entries); err != nil {
			return err
		}
		next := entries[:0]
		for _, e := range entries {
			if e.ID == id {
				removed = true
				continue
			}
			next = append(next, e)
		}
		if !removed {
			return nil
		}
		return tx.Set(KeyEntries, next)
	})
	if err != nil {
		t.logger.Warn("track: remove failed", "id", id, "error", err)
		return false
	}
	return removed
}

// Clear empties the history.
func (t *Tracker) Clear(ctx context.Context) {
	if err := t.store.Set(ctx, KeyEntries, []Entry{}); err != nil {
		t.logger.Warn("track: clear failed", "error", err)
	}
}

// SubmittedSince reports whether any entry for formID has a timestamp at
// or after since. Entries with malformed timestamps never match.
func (t *Tracker) SubmittedSince(ctx context.Context, formID string, since time.Time) bool {
	for _, e := range t.Entries(ctx) {
		if e.FormID != formID {
			continue
		}
		if ts := e.Time(); !ts.IsZero() && !ts.Before(since) {
			return true
		}
	}
	return false
}
