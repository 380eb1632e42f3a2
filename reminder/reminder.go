// Package reminder fires scheduled wake-ups that nudge the user when
// the tracked form has not been submitted in the current weekly cycle.
package reminder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/formwatch/cycle"
	"github.com/hazyhaar/formwatch/notify"
	"github.com/hazyhaar/formwatch/track"
)

// Wakeup is one recurring weekly alarm.
type Wakeup struct {
	Weekday time.Weekday
	Hour    int
	Title   string
	Message string
}

// DefaultWakeups are the stock reminders: an early nudge on Saturday
// evening and an urgent one on Sunday afternoon.
var DefaultWakeups = []Wakeup{
	{
		Weekday: time.Saturday,
		Hour:    18,
		Title:   "Weekly report",
		Message: "The new reporting cycle started. Submit the form when ready.",
	},
	{
		Weekday: time.Sunday,
		Hour:    13,
		Title:   "Weekly report due",
		Message: "The form has not been submitted this cycle yet.",
	},
}

// Scheduler runs the wake-up loops. Each wake-up gets its own timer
// goroutine that re-arms for the next week after firing.
type Scheduler struct {
	tracker *track.Tracker
	sink    notify.Sink
	anchor  cycle.Anchor
	formID  string
	wakeups []Wakeup
	logger  *slog.Logger

	now       func() time.Time
	timeAfter func(d time.Duration) <-chan time.Time
}

// Config assembles a Scheduler.
type Config struct {
	Tracker *track.Tracker
	Sink    notify.Sink
	// Anchor marks the start of the weekly cycle.
	Anchor cycle.Anchor
	// FormID is the form whose submissions silence reminders.
	FormID  string
	Wakeups []Wakeup
	Logger  *slog.Logger
}

// New creates a Scheduler.
func New(cfg Config) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	wakeups := cfg.Wakeups
	if len(wakeups) == 0 {
		wakeups = DefaultWakeups
	}
	return &Scheduler{
		tracker:   cfg.Tracker,
		sink:      cfg.Sink,
		anchor:    cfg.Anchor,
		formID:    cfg.FormID,
		wakeups:   wakeups,
		logger:    cfg.Logger,
		now:       time.Now,
		timeAfter: time.After,
	}
}

// Run blocks until ctx is done, firing wake-ups on schedule.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range s.wakeups {
		wg.Add(1)
		go func(w Wakeup) {
			defer wg.Done()
			s.loop(ctx, w)
		}(w)
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, w Wakeup) {
	for {
		next := cycle.NextDeadline(w.Weekday, w.Hour, s.now())
		s.logger.Debug("reminder: armed", "title", w.Title, "at", next)

		select {
		case <-ctx.Done():
			return
		case <-s.timeAfter(next.Sub(s.now())):
			s.fire(ctx, w)
		}
	}
}

// fire sends the notification unless the form was already submitted in
// the current cycle. Delivery failures are logged and dropped.
func (s *Scheduler) fire(ctx context.Context, w Wakeup) {
	now := s.now()
	since := cycle.Start(s.anchor, now)
	if s.tracker.SubmittedSince(ctx, s.formID, since) {
		s.logger.Info("reminder: already submitted this cycle", "title", w.Title)
		return
	}

	n := notify.Notification{Title: w.Title, Message: w.Message}
	if err := s.sink.Send(ctx, n); err != nil {
		s.logger.Warn("reminder: send", "title", w.Title, "error", err)
		return
	}
	s.logger.Info("reminder: sent", "title", w.Title)
}
