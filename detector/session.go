package detector

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/formwatch/idgen"
	"github.com/hazyhaar/formwatch/track"
)

//go:embed detect.js
var detectJS string

const (
	// ConfirmTimeout bounds the wait between a submit intent and a
	// confirmation signal.
	ConfirmTimeout = 15 * time.Second
	// ConfirmTick is the polling interval of the confirmation watch.
	ConfirmTick = 500 * time.Millisecond

	bindingName = "__formwatch_binding"
)

// pageEvent is the normalized form of every raw page signal (submit,
// click, mutation, SPA navigation, teardown). The injected listeners
// multiplex into this one shape so the session loop stays decoupled from
// the raw event sources.
type pageEvent struct {
	Kind string `json:"kind"`
	URL  string `json:"url"`
	// Text is the clicked button text for click-derived submit intents;
	// empty for form submit events.
	Text string `json:"text"`
}

// SessionConfig configures a detector Session.
type SessionConfig struct {
	Page        *rod.Page
	Registry    *Registry
	Tracker     *track.Tracker
	Markers     []string
	SubmitWords []string
	Logger      *slog.Logger

	// ConfirmTimeout/ConfirmTick override the defaults, for tests.
	ConfirmTimeout time.Duration
	ConfirmTick    time.Duration
}

// Session observes a single loaded page. It owns its cancellation and
// the confirmation watch timer; destroying the session (page teardown or
// Close) cancels any live timer. One session per page load — no ambient
// process-wide detection state.
type Session struct {
	id          string
	page        *rod.Page
	registry    *Registry
	tracker     *track.Tracker
	markers     []string
	submitWords []string
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	events chan pageEvent

	watchRunning atomic.Bool

	confirmTimeout time.Duration
	confirmTick    time.Duration

	// confirmProbe is the heuristic polled by the confirmation watch.
	// Overridable in tests.
	confirmProbe func() bool
}

// NewSession creates a Session for an already-navigated page.
func NewSession(cfg SessionConfig) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if len(cfg.Markers) == 0 {
		cfg.Markers = DefaultMarkers
	}
	if len(cfg.SubmitWords) == 0 {
		cfg.SubmitWords = DefaultSubmitWords
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = ConfirmTimeout
	}
	if cfg.ConfirmTick <= 0 {
		cfg.ConfirmTick = ConfirmTick
	}

	s := &Session{
		id:             idgen.Prefixed("sess_", idgen.UUIDv7())(),
		page:           cfg.Page,
		registry:       cfg.Registry,
		tracker:        cfg.Tracker,
		markers:        cfg.Markers,
		submitWords:    cfg.SubmitWords,
		logger:         cfg.Logger,
		events:         make(chan pageEvent, 64),
		confirmTimeout: cfg.ConfirmTimeout,
		confirmTick:    cfg.ConfirmTick,
	}
	s.confirmProbe = s.isConfirmationPage
	return s
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// Start installs the page-side listeners and begins processing signals.
// It performs the initial confirmation check so a page that loads
// already confirmed (back-navigation, reload) is recorded immediately.
func (s *Session) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(s.page); err != nil {
		s.logger.Warn("detector: add binding failed (may already exist)",
			"session", s.id, "error", err)
	}
	go s.listenBinding()

	if err := s.pushSubmitWords(); err != nil {
		s.logger.Warn("detector: push submit words failed", "session", s.id, "error", err)
	}
	if _, err := s.page.Context(s.ctx).Eval(detectJS); err != nil {
		return fmt.Errorf("detector: inject detect.js: %w", err)
	}

	url := s.pageURL()
	if s.registry.Allowed(url) {
		if !s.checkConfirmation(url) {
			s.tracker.Activate(s.ctx, url, s.pageTitle())
		}
	}

	go s.loop()

	s.logger.Info("detector: session started", "session", s.id, "url", url)
	return nil
}

// Close tears down the session, cancelling any live confirmation watch.
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// listenBinding receives events from the injected listeners via
// Runtime.bindingCalled and feeds them to the session loop.
func (s *Session) listenBinding() {
	s.page.Context(s.ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		var ev pageEvent
		if err := json.Unmarshal([]byte(e.Payload), &ev); err != nil {
			s.logger.Warn("detector: parse binding payload", "session", s.id, "error", err)
			return
		}
		select {
		case s.events <- ev:
		default:
			// A full buffer means a mutation storm; dropping a re-check
			// signal is safe, the next one re-runs the same heuristic.
		}
	})()
}

// loop processes normalized page signals until the session is closed.
func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.events:
			switch ev.Kind {
			case "submit-intent":
				s.onSubmitIntent(ev.URL, ev.Text)
			case "mutation", "navigate":
				s.checkConfirmation(ev.URL)
			case "teardown":
				s.logger.Info("detector: page teardown", "session", s.id)
				s.cancel()
				return
			}
		}
	}
}

// onSubmitIntent snapshots the filled answers, persists the pending
// record, and starts the bounded confirmation watch. A repeat intent
// while the watch runs refreshes the snapshot but does not restart the
// bound. Click-derived intents carry the button text and are re-checked
// against the session's own vocabulary; the page-side filter uses
// whatever was pushed into the page and is not trusted on its own.
func (s *Session) onSubmitIntent(url, buttonText string) {
	if !s.registry.Allowed(url) {
		return
	}
	if buttonText != "" && !looksLikeSubmit(buttonText, s.submitWords) {
		s.logger.Debug("detector: click text fails submit vocabulary",
			"session", s.id, "text", buttonText)
		return
	}
	formID := s.registry.Identify(url)
	title := s.pageTitle()
	answers := s.collectAnswers()

	s.tracker.MarkPending(s.ctx, track.PendingSubmission{
		FormID:  formID,
		URL:     url,
		Title:   title,
		Answers: answers,
	})
	s.logger.Info("detector: submit intent",
		"session", s.id, "form_id", formID, "answers", len(answers))

	s.startConfirmWatch()
}

// startConfirmWatch launches the confirmation poll and reports whether
// a new watch was started. A watch already in flight keeps its original
// bound; the repeat call is a no-op.
func (s *Session) startConfirmWatch() bool {
	if !s.watchRunning.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		defer s.watchRunning.Store(false)
		switch s.awaitConfirmation(s.ctx) {
		case confirmResolved:
			s.record(s.pageURL(), track.SourceConfirmationWatch)
		case confirmTimedOut:
			s.tracker.MarkTimeout(s.ctx, s.pageURL(), s.pageTitle())
			s.logger.Info("detector: confirmation timed out", "session", s.id)
		case confirmCancelled:
			// Page torn down; nothing to persist.
		}
	}()
	return true
}

// checkConfirmation runs the confirmation heuristic for the given URL
// and records the submission when it holds. Reports whether a recording
// happened. A pending record for a different form identity does not
// block confirmation: the page's identity is authoritative, the
// mismatch is tagged and the cached answers are dropped.
func (s *Session) checkConfirmation(url string) bool {
	if !s.registry.Allowed(url) {
		return false
	}
	if !s.isConfirmationPage() {
		return false
	}

	formID := s.registry.Identify(url)
	source := track.SourceConfirmation
	if pending := s.tracker.Pending(s.ctx); pending != nil && pending.FormID != formID {
		source = track.SourceConfirmationMismatch
		s.logger.Warn("detector: pending form identity mismatch",
			"session", s.id, "pending", pending.FormID, "page", formID)
	}
	s.record(url, source)
	return true
}

// record confirms the submission through the tracker.
func (s *Session) record(url string, source track.Source) {
	if !s.registry.Allowed(url) {
		return
	}
	formID := s.registry.Identify(url)
	entry, appended := s.tracker.Record(s.ctx, formID, url, s.pageTitle(), source)
	s.logger.Info("detector: submission recorded",
		"session", s.id, "form_id", formID, "entry", entry.ID,
		"source", source, "appended", appended)
}

// isConfirmationPage evaluates the confirmation heuristic: the URL
// carries the response marker, or the page text contains a configured
// confirmation phrase.
func (s *Session) isConfirmationPage() bool {
	if ConfirmedURL(s.pageURL()) {
		return true
	}
	return textConfirms(s.bodyText(), s.markers)
}
