// Package notify delivers one-shot user-visible alerts. Sinks are
// fire-and-forget: there is no acknowledgment channel back, and the
// reminder scheduler treats delivery failures as best-effort (logged,
// never fatal).
package notify

import (
	"context"
	"errors"
	"log/slog"
)

// Notification is one alert to display.
type Notification struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Icon    string `json:"icon,omitempty"`
}

// Sink delivers notifications to one backend.
type Sink interface {
	Send(ctx context.Context, n Notification) error
}

// Multi fans a notification out to every sink, collecting errors.
type Multi []Sink

// Send delivers to all sinks; a failing sink does not stop the others.
func (m Multi) Send(ctx context.Context, n Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes notifications to the log. The fallback backend when no
// external sink is configured.
type LogSink struct {
	Logger *slog.Logger
}

// Send logs the notification.
func (l *LogSink) Send(_ context.Context, n Notification) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notify: "+n.Title, "message", n.Message)
	return nil
}
