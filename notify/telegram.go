package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// TelegramSink delivers notifications through the Telegram bot API
// sendMessage method.
type TelegramSink struct {
	BotToken string
	ChatID   string
	// BaseURL overrides the bot API host, for tests.
	BaseURL string
	Client  *http.Client
}

// NewTelegramSink creates a TelegramSink.
func NewTelegramSink(botToken, chatID string) *TelegramSink {
	return &TelegramSink{
		BotToken: botToken,
		ChatID:   chatID,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Send delivers the notification as one Telegram message.
func (t *TelegramSink) Send(ctx context.Context, n Notification) error {
	base := t.BaseURL
	if base == "" {
		base = "https://api.telegram.org"
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", base, t.BotToken)

	payload, err := json.Marshal(map[string]string{
		"chat_id": t.ChatID,
		"text":    n.Title + "\n" + n.Message,
	})
	if err != nil {
		return fmt.Errorf("notify: marshal telegram payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify: build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: telegram POST: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notify: telegram returned %d", resp.StatusCode)
	}
	return nil
}
