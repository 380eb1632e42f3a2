// Package config loads the daemon configuration from YAML.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/formwatch/detector"
)

// Config is the top-level daemon configuration.
type Config struct {
	// DB is the SQLite path backing the submission store.
	DB string `yaml:"db"`
	// Listen is the HTTP API address.
	Listen string `yaml:"listen"`

	Browser BrowserConfig `yaml:"browser"`

	// Forms is the allow-list of watched forms.
	Forms []detector.Form `yaml:"forms"`
	// TrackedForm is the form identity checked by reminders. Defaults to
	// the first allow-listed form.
	TrackedForm string `yaml:"tracked_form"`

	// ConfirmationMarkers override the stock thank-you phrases.
	ConfirmationMarkers []string `yaml:"confirmation_markers"`
	// SubmitWords override the stock submit-button vocabulary.
	SubmitWords []string `yaml:"submit_words"`

	Cycle     CycleConfig      `yaml:"cycle"`
	Reminders []ReminderConfig `yaml:"reminders"`
	Notify    NotifyConfig     `yaml:"notify"`
}

// BrowserConfig selects the Chrome connection mode.
type BrowserConfig struct {
	// Remote is a DevTools WebSocket URL; empty launches Chrome locally.
	Remote  string `yaml:"remote"`
	Headful bool   `yaml:"headful"`
}

// CycleConfig anchors the weekly reporting cycle.
type CycleConfig struct {
	Weekday string `yaml:"weekday"`
	Hour    int    `yaml:"hour"`
}

// ReminderConfig is one recurring wake-up.
type ReminderConfig struct {
	Weekday string `yaml:"weekday"`
	Hour    int    `yaml:"hour"`
	Title   string `yaml:"title"`
	Message string `yaml:"message"`
}

// NotifyConfig selects notification backends. All empty means
// log-only delivery.
type NotifyConfig struct {
	Webhook  WebhookConfig  `yaml:"webhook"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// WebhookConfig points reminders at an HTTP endpoint.
type WebhookConfig struct {
	URL    string `yaml:"url"`
	Secret string `yaml:"secret"`
}

// TelegramConfig points reminders at a Telegram chat.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// LoadFile reads and validates a YAML config.
func LoadFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields. Exposed for callers that assemble a
// Config without a file.
func (c *Config) ApplyDefaults() {
	if c.DB == "" {
		c.DB = "formwatch.db"
	}
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8737"
	}
	if c.Cycle.Weekday == "" {
		c.Cycle.Weekday = "saturday"
		if c.Cycle.Hour == 0 {
			c.Cycle.Hour = 18
		}
	}
	if c.TrackedForm == "" && len(c.Forms) > 0 {
		c.TrackedForm = c.Forms[0].FormID
	}
	if len(c.ConfirmationMarkers) == 0 {
		c.ConfirmationMarkers = detector.DefaultMarkers
	}
	if len(c.SubmitWords) == 0 {
		c.SubmitWords = detector.DefaultSubmitWords
	}
	if len(c.Reminders) == 0 {
		c.Reminders = []ReminderConfig{
			{
				Weekday: "saturday",
				Hour:    18,
				Title:   "Weekly report",
				Message: "The new reporting cycle started. Submit the form when ready.",
			},
			{
				Weekday: "sunday",
				Hour:    13,
				Title:   "Weekly report due",
				Message: "The form has not been submitted this cycle yet.",
			},
		}
	}
}

// Validate checks weekday names and hour ranges.
func (c *Config) Validate() error {
	if _, err := ParseWeekday(c.Cycle.Weekday); err != nil {
		return fmt.Errorf("config: cycle: %w", err)
	}
	if c.Cycle.Hour < 0 || c.Cycle.Hour > 23 {
		return fmt.Errorf("config: cycle: hour %d out of range", c.Cycle.Hour)
	}
	for i, r := range c.Reminders {
		if _, err := ParseWeekday(r.Weekday); err != nil {
			return fmt.Errorf("config: reminder %d: %w", i, err)
		}
		if r.Hour < 0 || r.Hour > 23 {
			return fmt.Errorf("config: reminder %d: hour %d out of range", i, r.Hour)
		}
	}
	return nil
}

// ParseWeekday maps an english weekday name, case-insensitive.
func ParseWeekday(name string) (time.Weekday, error) {
	switch strings.ToLower(name) {
	case "sunday":
		return time.Sunday, nil
	case "monday":
		return time.Monday, nil
	case "tuesday":
		return time.Tuesday, nil
	case "wednesday":
		return time.Wednesday, nil
	case "thursday":
		return time.Thursday, nil
	case "friday":
		return time.Friday, nil
	case "saturday":
		return time.Saturday, nil
	}
	return 0, fmt.Errorf("unknown weekday %q", name)
}
