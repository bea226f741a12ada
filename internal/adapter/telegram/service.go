package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"copytrade/internal/domain"
)

const defaultAPIURL = "https://api.telegram.org"

// NotificationService sends copy results to a Telegram chat.
// Unless notifyAll is set only failed copies are sent.
type NotificationService struct {
	apiURL     string
	botToken   string
	chatID     string
	enabled    bool
	notifyAll  bool
	location   *time.Location
	httpClient *http.Client
	now        func() time.Time
}

var _ domain.EventPublisher = (*NotificationService)(nil)

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// NewNotificationService creates a notifier. It is a no-op when botToken or chatID is empty.
func NewNotificationService(botToken, chatID, timezone string, notifyAll bool) *NotificationService {
	location, err := time.LoadLocation(timezone)
	if err != nil || timezone == "" {
		location = time.UTC
	}

	return &NotificationService{
		apiURL:    defaultAPIURL,
		botToken:  botToken,
		chatID:    chatID,
		enabled:   botToken != "" && chatID != "",
		notifyAll: notifyAll,
		location:  location,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		now: time.Now,
	}
}

// Enabled reports whether messages will actually be sent
func (s *NotificationService) Enabled() bool {
	return s.enabled
}

// PublishCopyResult sends a copy result to the chat
func (s *NotificationService) PublishCopyResult(ctx context.Context, brokerID uuid.UUID, r domain.CopyResult) error {
	if !s.enabled || !s.shouldNotify(r) {
		return nil
	}
	return s.sendMessage(ctx, s.format(brokerID, r))
}

// Close is a no-op; every message is sent synchronously
func (s *NotificationService) Close() error {
	return nil
}

func (s *NotificationService) shouldNotify(r domain.CopyResult) bool {
	if s.notifyAll {
		return true
	}
	return r.Status == domain.CopyStatusFailed || r.Unrecorded
}

func (s *NotificationService) format(brokerID uuid.UUID, r domain.CopyResult) string {
	statusEmoji := "✅"
	switch {
	case r.Status == domain.CopyStatusFailed:
		statusEmoji = "❌"
	case r.Unrecorded:
		statusEmoji = "🚨"
	case !r.Success:
		statusEmoji = "⏭️"
	}

	msg := fmt.Sprintf(
		"%s *COPY %s: %s*\n\n"+
			"👤 Follower: `%s`\n"+
			"📊 Trade: `%s`\n"+
			"━━━━━━━━━━━━━━━━━\n"+
			"📈 Side: `%s`\n"+
			"📦 Size: `%.6f`\n"+
			"🏦 Broker: `%s`\n"+
			"🕒 Time: `%s`",
		statusEmoji,
		r.Action,
		r.Status,
		r.Follower,
		r.Trade,
		r.Side,
		r.CopySize,
		brokerID,
		s.now().In(s.location).Format("2006-01-02 15:04:05"),
	)
	if r.Error != "" {
		msg += fmt.Sprintf("\n\n⚠️ *Error:*\n`%s`", r.Error)
	}
	return msg
}

// sendMessage sends a message to Telegram using the Bot API
func (s *NotificationService) sendMessage(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiURL, s.botToken)

	jsonData, err := json.Marshal(telegramMessage{
		ChatID:    s.chatID,
		Text:      text,
		ParseMode: "Markdown",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal telegram message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram API error (status %d): %s", resp.StatusCode, string(body))
	}

	return nil
}
