package detector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
)

// BrowserConfig controls the Chrome connection.
type BrowserConfig struct {
	// Remote is the WebSocket URL of an external Chrome instance.
	// Empty launches a local Chrome via the rod launcher.
	Remote string

	// Headful shows the browser window so the user can fill the form;
	// this is the normal mode for a submission tracker. Headless is for
	// confirmation-only checks.
	Headful bool

	Logger *slog.Logger
}

// Browser owns the Chrome lifecycle shared by detector sessions.
type Browser struct {
	cfg     BrowserConfig
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// NewBrowser creates a Browser. Call Start to launch or connect.
func NewBrowser(cfg BrowserConfig) *Browser {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Browser{cfg: cfg}
}

// Start launches a local Chrome or connects to a remote instance.
func (b *Browser) Start(ctx context.Context) error {
	log := b.cfg.Logger

	var wsURL string
	if b.cfg.Remote != "" {
		wsURL = b.cfg.Remote
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().
			Headless(!b.cfg.Headful).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		b.lnch = l
		log.Info("browser: launched local chrome", "headful", b.cfg.Headful)
	}

	br := rod.New().ControlURL(wsURL).Context(ctx)
	if err := br.Connect(); err != nil {
		return fmt.Errorf("browser: connect: %w", err)
	}
	b.browser = br
	return nil
}

// OpenPage creates a stealth tab, navigates to the URL, and waits for
// the initial load.
func (b *Browser) OpenPage(ctx context.Context, pageURL string) (*rod.Page, error) {
	if b.browser == nil {
		return nil, fmt.Errorf("browser: not started")
	}

	page, err := stealth.Page(b.browser)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		b.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}
	return page, nil
}

// Close shuts down the browser and, for local launches, the Chrome
// process.
func (b *Browser) Close() error {
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			return fmt.Errorf("browser: close: %w", err)
		}
	}
	if b.lnch != nil {
		b.lnch.Cleanup()
	}
	return nil
}
