package delta

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"copytrade/internal/domain"
	"copytrade/internal/utils"
)

// Private channels whose messages mean the account's state changed
var streamChannels = []string{"orders", "positions", "user_trades"}

const (
	streamReadTimeout = 60 * time.Second
	streamJitter      = 0.5
)

type streamMessage struct {
	Type    string `json:"type"`
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

type streamRequest struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Stream keeps an authenticated WebSocket open for one account and calls
// onEvent whenever the exchange pushes an order, position or fill update.
// It only shortens the wait until the next poll; REST stays authoritative.
type Stream struct {
	url        string
	creds      domain.Credentials
	onEvent    func()
	dialer     *websocket.Dialer
	minBackoff time.Duration
	maxBackoff time.Duration
	now        func() time.Time
	log        *logrus.Entry
}

// NewStream creates a stream for one account
func NewStream(url string, creds domain.Credentials, onEvent func(), log *logrus.Entry) *Stream {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Stream{
		url:        url,
		creds:      creds,
		onEvent:    onEvent,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		minBackoff: time.Second,
		maxBackoff: time.Minute,
		now:        time.Now,
		log:        log,
	}
}

// Run connects and reconnects with exponential backoff until ctx is done
func (s *Stream) Run(ctx context.Context) error {
	reconnect := utils.NewBackOff(s.minBackoff, s.maxBackoff, streamJitter)
	for {
		connected, err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			reconnect.Reset()
		}

		delay := reconnect.NextBackOff()
		if errors.Is(err, domain.ErrAuthentication) {
			delay = s.maxBackoff
		}
		s.log.WithError(err).WithField("retry_in", delay).Warn("[WARN] Stream disconnected")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// session runs one connection; connected is true once the subscription was accepted
func (s *Stream) session(ctx context.Context) (connected bool, err error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to dial stream: %w", err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-stop:
		}
	}()

	if err := s.authenticate(conn); err != nil {
		return false, err
	}

	channels := make([]map[string]any, 0, len(streamChannels))
	for _, name := range streamChannels {
		channels = append(channels, map[string]any{"name": name, "symbols": []string{"all"}})
	}
	if err := conn.WriteJSON(streamRequest{Type: "subscribe", Payload: map[string]any{"channels": channels}}); err != nil {
		return false, fmt.Errorf("failed to subscribe: %w", err)
	}
	if err := conn.WriteJSON(streamRequest{Type: "enable_heartbeat"}); err != nil {
		return false, fmt.Errorf("failed to enable heartbeat: %w", err)
	}
	s.log.Info("[OK] Stream subscribed")

	for {
		_ = conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
		var msg streamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return true, fmt.Errorf("stream read failed: %w", err)
		}
		if isStateChange(msg.Type) && s.onEvent != nil {
			s.onEvent()
		}
	}
}

func (s *Stream) authenticate(conn *websocket.Conn) error {
	timestamp, signature := WebSocketAuth(s.creds.APISecret, s.now())
	auth := streamRequest{
		Type: "auth",
		Payload: map[string]string{
			"api-key":   s.creds.APIKey,
			"signature": signature,
			"timestamp": timestamp,
		},
	}
	if err := conn.WriteJSON(auth); err != nil {
		return fmt.Errorf("failed to send auth: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var reply streamMessage
	if err := conn.ReadJSON(&reply); err != nil {
		return fmt.Errorf("failed to read auth reply: %w", err)
	}
	if reply.Type != "auth" || reply.Success == nil || !*reply.Success {
		return &domain.ExchangeError{Op: "stream auth", Kind: domain.ErrAuthentication, Message: reply.Message}
	}
	return nil
}

func isStateChange(msgType string) bool {
	for _, ch := range streamChannels {
		if msgType == ch {
			return true
		}
	}
	return msgType == "v2/user_trades"
}
