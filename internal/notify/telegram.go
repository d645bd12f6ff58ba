package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultTelegramBase = "https://api.telegram.org"

// Telegram posts messages to a chat through the bot sendMessage endpoint.
type Telegram struct {
	baseURL    string
	token      string
	chatID     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewTelegram validates the bot credentials and constructs the notifier.
func NewTelegram(token, chatID string, logger *slog.Logger) (*Telegram, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("notify: telegram token required")
	}
	if strings.TrimSpace(chatID) == "" {
		return nil, errors.New("notify: telegram chat id required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Telegram{
		baseURL:    defaultTelegramBase,
		token:      token,
		chatID:     chatID,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger.With(slog.String("agent", "telegram")),
	}, nil
}

// Send posts the message. Telegram rejects bodies over 4096 runes, so longer
// messages are truncated with a marker rather than failing the cycle.
func (t *Telegram) Send(ctx context.Context, text string) error {
	const limit = 4096
	if runes := []rune(text); len(runes) > limit {
		text = string(runes[:limit-1]) + "…"
	}
	body, err := json.Marshal(map[string]string{
		"chat_id": t.chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("notify: marshal telegram message: %w", err)
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send telegram message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify: telegram returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	t.logger.Debug("telegram message delivered", slog.Int("length", len(text)))
	return nil
}
