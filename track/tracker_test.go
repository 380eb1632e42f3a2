package track

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/formwatch/store"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

const formA = "1FAIpQLSfAAAA"

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testTracker(t *testing.T) (*Tracker, *fakeClock) {
	t.Helper()
	s := store.OpenMemory(t)
	clock := &fakeClock{t: time.Date(2026, time.March, 7, 19, 0, 0, 0, time.UTC)}
	return New(s, WithClock(clock.now)), clock
}

func TestRecordAppendsEntry(t *testing.T) {
	tr, _ := testTracker(t)
	ctx := context.Background()

	entry, appended := tr.Record(ctx, formA, "https://docs.google.com/forms/d/e/"+formA+"/formResponse", "Weekly report", SourceConfirmation)
	if !appended {
		t.Fatal("expected a new entry")
	}
	if entry.FormID != formA || entry.Source != SourceConfirmation {
		t.Fatalf("entry = %+v", entry)
	}

	entries := tr.Entries(ctx)
	if len(entries) != 1 || entries[0].ID != entry.ID {
		t.Fatalf("entries = %+v", entries)
	}

	if st := tr.Status(ctx); st.State != StateRecorded {
		t.Fatalf("status = %q, want recorded", st.State)
	}
}

func TestRecordDedupWithinGuard(t *testing.T) {
	tr, clock := testTracker(t)
	ctx := context.Background()

	first, _ := tr.Record(ctx, formA, "https://example/a", "First", SourceConfirmation)

	// 10s later: same physical submission, no new entry, status recorded
	// referencing the original entry.
	clock.advance(10 * time.Second)
	got, appended := tr.Record(ctx, formA, "https://example/b", "Second", SourceConfirmationWatch)
	if appended {
		t.Fatal("duplicate within guard must not append")
	}
	if got.ID != first.ID {
		t.Fatalf("status references %q, want original %q", got.ID, first.ID)
	}
	if n := len(tr.Entries(ctx)); n != 1 {
		t.Fatalf("entries = %d, want 1", n)
	}

	st := tr.Status(ctx)
	if st.State != StateRecorded || st.Title != "First" {
		t.Fatalf("status = %+v", st)
	}
}

func TestRecordPastGuardAppends(t *testing.T) {
	tr, clock := testTracker(t)
	ctx := context.Background()

	tr.Record(ctx, formA, "https://example/a", "First", SourceConfirmation)

	clock.advance(20 * time.Second)
	entry, appended := tr.Record(ctx, formA, "https://example/b", "Second", SourceConfirmation)
	if !appended {
		t.Fatal("gap past the guard must append")
	}

	entries := tr.Entries(ctx)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].ID != entry.ID {
		t.Fatal("new entry must be at the head")
	}
}

func TestRecordDifferentFormSkipsGuard(t *testing.T) {
	tr, clock := testTracker(t)
	ctx := context.Background()

	tr.Record(ctx, formA, "https://example/a", "A", SourceConfirmation)
	clock.advance(2 * time.Second)

	if _, appended := tr.Record(ctx, "otherForm", "https://example/b", "B", SourceConfirmation); !appended {
		t.Fatal("guard only applies to the same form identity")
	}
}

func TestRepeatPendingKeepsWaiting(t *testing.T) {
	tr, clock := testTracker(t)
	ctx := context.Background()

	tr.MarkPending(ctx, PendingSubmission{
		FormID:  formA,
		URL:     "https://example/form",
		Title:   "Report",
		Answers: []Answer{{Question: "Week", Answers: []string{"10"}}},
	})

	// Second submit intent while the first is still waiting: the answer
	// snapshot refreshes, the state stays waiting, nothing is recorded.
	clock.advance(3 * time.Second)
	tr.MarkPending(ctx, PendingSubmission{
		FormID:  formA,
		URL:     "https://example/form",
		Title:   "Report",
		Answers: []Answer{{Question: "Week", Answers: []string{"11"}}},
	})

	if st := tr.Status(ctx); st.State != StateWaiting {
		t.Fatalf("status = %q, want waiting", st.State)
	}
	p := tr.Pending(ctx)
	if p == nil || len(p.Answers) != 1 || p.Answers[0].Answers[0] != "11" {
		t.Fatalf("pending = %+v, want refreshed snapshot", p)
	}
	if n := len(tr.Entries(ctx)); n != 0 {
		t.Fatalf("entries = %d, repeat intent must not record", n)
	}
}

func TestRecordCarriesMatchingPendingAnswers(t *testing.T) {
	tr, clock := testTracker(t)
	ctx := context.Background()

	tr.MarkPending(ctx, PendingSubmission{
		FormID:  formA,
		URL:     "https://example/form",
		Title:   "Pending title",
		Answers: []Answer{{Question: "Moderators", Answers: []string{"4"}}},
	})
	clock.advance(time.Second)

	entry, _ := tr.Record(ctx, formA, "https://example/done", "Page title", SourceConfirmationWatch)
	if len(entry.Answers) != 1 || entry.Answers[0].Question != "Moderators" {
		t.Fatalf("answers not carried over: %+v", entry.Answers)
	}
	if entry.Title != "Pending title" {
		t.Fatalf("title = %q, want pending title", entry.Title)
	}
	if tr.Pending(ctx) != nil {
		t.Fatal("pending slot must be cleared on confirmation")
	}
}

func TestRecordMismatchedPendingDropsAnswers(t *testing.T) {
	tr, clock := testTracker(t)
	ctx := context.Background()

	tr.MarkPending(ctx, PendingSubmission{
		FormID:  "someOtherForm",
		Answers: []Answer{{Question: "Q", Answers: []string{"v"}}},
	})
	clock.advance(time.Second)

	entry, appended := tr.Record(ctx, formA, "https://example/done", "Title", SourceConfirmationMismatch)
	if !appended {
		t.Fatal("mismatch still records")
	}
	if len(entry.Answers) != 0 {
		t.Fatal("mismatched answers must not be carried over")
	}
	if entry.Source != SourceConfirmationMismatch {
		t.Fatalf("source = %q", entry.Source)
	}
}

func TestHistoryCap(t *testing.T) {
	tr, clock := testTracker(t)
	ctx := context.Background()

	firstID := ""
	lastID := ""
	for i := 0; i < MaxEntries+1; i++ {
		// Step past the dedup guard each time.
		clock.advance(DedupGuard + time.Second)
		e, appended := tr.Record(ctx, formA, fmt.Sprintf("https://example/%d", i), "T", SourceConfirmation)
		if !appended {
			t.Fatalf("entry %d not appended", i)
		}
		if i == 0 {
			firstID = e.ID
		}
		lastID = e.ID
	}

	entries := tr.Entries(ctx)
	if len(entries) != MaxEntries {
		t.Fatalf("entries = %d, want %d", len(entries), MaxEntries)
	}
	if entries[0].ID != lastID {
		t.Fatal("most recent entry must be at index 0")
	}
	for _, e := range entries {
		if e.ID == firstID {
			t.Fatal("oldest entry must have been evicted")
		}
	}
}

func TestActivateDoesNotClobberWaiting(t *testing.T) {
	tr, _ := testTracker(t)
	ctx := context.Background()

	tr.MarkPending(ctx, PendingSubmission{FormID: formA, URL: "https://example/a"})
	tr.Activate(ctx, "https://example/other", "Other form")

	if st := tr.Status(ctx); st.State != StateWaiting {
		t.Fatalf("status = %q, want waiting", st.State)
	}
}

func TestActivateFromIdleAndRecorded(t *testing.T) {
	tr, clock := testTracker(t)
	ctx := context.Background()

	tr.Activate(ctx, "https://example/a", "Form")
	if st := tr.Status(ctx); st.State != StateActive {
		t.Fatalf("status = %q, want active", st.State)
	}

	tr.Record(ctx, formA, "https://example/a", "Form", SourceConfirmation)
	clock.advance(time.Second)
	tr.Activate(ctx, "https://example/a", "Form")
	if st := tr.Status(ctx); st.State != StateActive {
		t.Fatalf("status = %q, want active after recorded", st.State)
	}
}

func TestStatusAgingWaitingToTimeout(t *testing.T) {
	tr, clock := testTracker(t)
	ctx := context.Background()

	tr.MarkPending(ctx, PendingSubmission{FormID: formA, URL: "https://example/a", Title: "T"})

	clock.advance(5 * time.Minute)
	if st := tr.Status(ctx); st.State != StateWaiting {
		t.Fatalf("at 5min status = %q, want waiting", st.State)
	}

	clock.advance(6 * time.Minute) // 11 minutes total
	st := tr.Status(ctx)
	if st.State != StateTimeout {
		t.Fatalf("at 11min status = %q, want timeout", st.State)
	}
	if st.Title != "T" {
		t.Fatal("aged status must keep the original title")
	}

	// The aged status is persisted, not just presented.
	if st := tr.Status(ctx); st.State != StateTimeout {
		t.Fatalf("persisted status = %q, want timeout", st.State)
	}
}

func TestStatusAgingRecordedToIdle(t *testing.T) {
	tr, clock := testTracker(t)
	ctx := context.Background()

	tr.Record(ctx, formA, "https://example/a", "T", SourceConfirmation)

	clock.advance(10 * time.Second)
	if st := tr.Status(ctx); st.State != StateRecorded {
		t.Fatalf("at 10s status = %q, want recorded", st.State)
	}

	clock.advance(25 * time.Second)
	if st := tr.Status(ctx); st.State != StateIdle {
		t.Fatalf("at 35s status = %q, want idle", st.State)
	}
}

func TestStatusMalformedTimestampNeverAges(t *testing.T) {
	tr, _ := testTracker(t)
	s := tr.store
	ctx := context.Background()

	err := s.Set(ctx, KeyStatus, PendingStatus{State: StateWaiting, Timestamp: "not-a-date"})
	if err != nil {
		t.Fatal(err)
	}
	if st := tr.Status(ctx); st.State != StateWaiting {
		t.Fatalf("status = %q, malformed timestamp must not age", st.State)
	}
}

func TestManualAddRemoveClear(t *testing.T) {
	tr, clock := testTracker(t)
	ctx := context.Background()

	tr.Record(ctx, formA, "https://example/a", "Auto", SourceConfirmation)
	clock.advance(time.Second)

	manual, ok := tr.ManualAdd(ctx)
	if !ok {
		t.Fatal("manual add failed")
	}
	if manual.Source != SourceManual || manual.FormID != "manual" {
		t.Fatalf("manual entry = %+v", manual)
	}
	if entries := tr.Entries(ctx); len(entries) != 2 || entries[0].ID != manual.ID {
		t.Fatalf("entries = %+v", entries)
	}

	if !tr.Remove(ctx, manual.ID) {
		t.Fatal("remove reported not found")
	}
	if tr.Remove(ctx, manual.ID) {
		t.Fatal("second remove must report not found")
	}

	tr.Clear(ctx)
	if entries := tr.Entries(ctx); len(entries) != 0 {
		t.Fatalf("entries after clear = %+v", entries)
	}
}

func TestSubmittedSince(t *testing.T) {
	tr, clock := testTracker(t)
	ctx := context.Background()

	start := clock.t
	tr.Record(ctx, formA, "https://example/a", "T", SourceConfirmation)

	if !tr.SubmittedSince(ctx, formA, start) {
		t.Fatal("entry at window start must count")
	}
	if tr.SubmittedSince(ctx, formA, start.Add(time.Hour)) {
		t.Fatal("entry before the window must not count")
	}
	if tr.SubmittedSince(ctx, "otherForm", start) {
		t.Fatal("other form identity must not count")
	}
}

func TestExportTextWithAnswers(t *testing.T) {
	e := Entry{
		Title:     "Weekly report",
		Timestamp: "2026-03-07T18:30:00Z",
		URL:       "https://example/form",
		Answers: []Answer{
			{Question: "Moderators on shift", Answers: []string{"4"}},
			{Question: "Issues", Answers: []string{"none", "n/a"}},
		},
	}
	got := ExportText(e)

	for _, want := range []string{
		"Title: Weekly report\n",
		"URL: https://example/form\n",
		"\nAnswers:\n",
		"- Moderators on shift\n",
		"  • 4\n",
		"- Issues\n",
		"  • none\n",
		"  • n/a\n",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("export missing %q:\n%s", want, got)
		}
	}
}

func TestExportTextWithoutAnswers(t *testing.T) {
	got := ExportText(Entry{Timestamp: "2026-03-07T18:30:00Z"})
	if !strings.Contains(got, "Answers: —\n") {
		t.Fatalf("export = %q", got)
	}
}

func TestExportFilename(t *testing.T) {
	e := Entry{Timestamp: "2026-03-07T18:30:05.123Z"}
	if got := ExportFilename(e); got != "report-2026-03-07T18:30:05.txt" {
		t.Fatalf("filename = %q", got)
	}

	bad := Entry{ID: "x-1", Timestamp: "garbage"}
	if got := ExportFilename(bad); got != "report-x-1.txt" {
		t.Fatalf("fallback filename = %q", got)
	}
}
