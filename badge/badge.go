// Package badge maps the submission status to a compact indicator, the
// at-a-glance signal shown next to the tracked form.
package badge

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/formwatch/store"
	"github.com/hazyhaar/formwatch/track"
)

// Badge is one rendered indicator.
type Badge struct {
	Text  string `json:"text"`
	Color string `json:"color,omitempty"`
}

// ForState maps a tracking state to its badge. Unknown and idle states
// render an empty badge.
func ForState(state track.State) Badge {
	switch state {
	case track.StateWaiting:
		return Badge{Text: "…", Color: "#2b57ff"}
	case track.StateRecorded:
		return Badge{Text: "OK", Color: "#1e7f3e"}
	case track.StateTimeout:
		return Badge{Text: "!", Color: "#b02a2a"}
	case track.StateActive:
		return Badge{Text: "•", Color: "#1e7f3e"}
	default:
		return Badge{}
	}
}

// Renderer displays a badge somewhere the user can see it.
type Renderer interface {
	Render(ctx context.Context, b Badge) error
}

// LogRenderer writes badge transitions to the log.
type LogRenderer struct {
	Logger *slog.Logger
}

// Render logs the badge.
func (l *LogRenderer) Render(_ context.Context, b Badge) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("badge", "text", b.Text, "color", b.Color)
	return nil
}

// Updater re-renders the badge whenever the store changes.
type Updater struct {
	Tracker  *track.Tracker
	Renderer Renderer
	Logger   *slog.Logger
}

// Run blocks until ctx is done, rendering on every store change. It
// renders once up front so the indicator is correct at startup.
func (u *Updater) Run(ctx context.Context, w *store.Watcher) {
	logger := u.Logger
	if logger == nil {
		logger = slog.Default()
	}

	render := func() error {
		st := u.Tracker.Status(ctx)
		if err := u.Renderer.Render(ctx, ForState(st.State)); err != nil {
			logger.Warn("badge: render", "error", err)
		}
		return nil
	}

	render()
	w.OnChange(ctx, render)
}
