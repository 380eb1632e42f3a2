package reminder

import (
	"context"
	"testing"
	"time"

	"github.com/hazyhaar/formwatch/cycle"
	"github.com/hazyhaar/formwatch/notify"
	"github.com/hazyhaar/formwatch/store"
	"github.com/hazyhaar/formwatch/track"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

const formID = "1FAIpQLSfJ2Tq20loiKS2hxmAV_JJjr4kLjVF"

var anchor = cycle.Anchor{Weekday: time.Saturday, Hour: 18}

type recordingSink struct {
	sent []notify.Notification
}

func (r *recordingSink) Send(_ context.Context, n notify.Notification) error {
	r.sent = append(r.sent, n)
	return nil
}

func newScheduler(t *testing.T, tracker *track.Tracker, at time.Time) (*Scheduler, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	s := New(Config{
		Tracker: tracker,
		Sink:    sink,
		Anchor:  anchor,
		FormID:  formID,
	})
	s.now = func() time.Time { return at }
	return s, sink
}

func TestFireSendsWhenNotSubmitted(t *testing.T) {
	tracker := track.New(store.OpenMemory(t))

	// Sunday 13:00, one day into the cycle, nothing recorded.
	at := time.Date(2026, 3, 8, 13, 0, 0, 0, time.UTC)
	s, sink := newScheduler(t, tracker, at)

	s.fire(context.Background(), DefaultWakeups[1])
	if len(sink.sent) != 1 {
		t.Fatalf("sent %d notifications, want 1", len(sink.sent))
	}
	if sink.sent[0].Title != "Weekly report due" {
		t.Fatalf("title = %q", sink.sent[0].Title)
	}
}

func TestFireSkipsWhenSubmittedThisCycle(t *testing.T) {
	// Recorded Sunday 10:00, inside the cycle that began Saturday 18:00.
	recordedAt := time.Date(2026, 3, 8, 10, 0, 0, 0, time.UTC)
	tracker := track.New(store.OpenMemory(t),
		track.WithClock(func() time.Time { return recordedAt }))
	tracker.Record(context.Background(), formID, "https://example.com/formResponse", "Report", track.SourceConfirmation)

	at := time.Date(2026, 3, 8, 13, 0, 0, 0, time.UTC)
	s, sink := newScheduler(t, tracker, at)

	s.fire(context.Background(), DefaultWakeups[1])
	if len(sink.sent) != 0 {
		t.Fatalf("sent %d notifications, want 0", len(sink.sent))
	}
}

func TestFireIgnoresPreviousCycleSubmission(t *testing.T) {
	// Recorded Friday, before the Saturday 18:00 cycle start.
	recordedAt := time.Date(2026, 3, 6, 12, 0, 0, 0, time.UTC)
	tracker := track.New(store.OpenMemory(t),
		track.WithClock(func() time.Time { return recordedAt }))
	tracker.Record(context.Background(), formID, "https://example.com/formResponse", "Report", track.SourceConfirmation)

	at := time.Date(2026, 3, 8, 13, 0, 0, 0, time.UTC)
	s, sink := newScheduler(t, tracker, at)

	s.fire(context.Background(), DefaultWakeups[1])
	if len(sink.sent) != 1 {
		t.Fatalf("sent %d notifications, want 1", len(sink.sent))
	}
}

type signalSink struct {
	fired chan notify.Notification
}

func (s *signalSink) Send(_ context.Context, n notify.Notification) error {
	s.fired <- n
	return nil
}

func TestLoopFiresOnDeadline(t *testing.T) {
	tracker := track.New(store.OpenMemory(t))
	sink := &signalSink{fired: make(chan notify.Notification)}

	at := time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC)
	s := New(Config{Tracker: tracker, Sink: sink, Anchor: anchor, FormID: formID})
	s.now = func() time.Time { return at }

	armed := make(chan time.Duration, 4)
	tick := make(chan time.Time, 1)
	s.timeAfter = func(d time.Duration) <-chan time.Time {
		armed <- d
		return tick
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.loop(ctx, DefaultWakeups[1])
		close(done)
	}()

	// Sunday 13:00 is one hour away from the fixed clock.
	select {
	case d := <-armed:
		if d != time.Hour {
			t.Fatalf("armed for %v, want 1h", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("loop never armed a timer")
	}

	tick <- at.Add(time.Hour)
	select {
	case n := <-sink.fired:
		if n.Title != "Weekly report due" {
			t.Fatalf("title = %q", n.Title)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("wake-up never fired")
	}

	// The loop re-arms for the following week.
	select {
	case <-armed:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not re-arm")
	}
	cancel()
	<-done
}
