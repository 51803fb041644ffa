package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harvest-market/escrow/internal/events"
	"go.uber.org/zap"
)

// NotifyClient delivers notifications to the external notification service.
type NotifyClient struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewNotifyClient(baseURL string, log *zap.Logger) *NotifyClient {
	return &NotifyClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

// Send posts one notification. Non-2xx responses are returned as errors.
func (c *NotifyClient) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/internal/notify", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notification service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("notification service returned %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

// Notify implements Notifier by sending directly; failures are only logged.
func (c *NotifyClient) Notify(ctx context.Context, n Notification) {
	if err := c.Send(ctx, n); err != nil {
		c.log.Warn("failed to send notification", zap.String("title", n.Title), zap.Error(err))
	}
}

// NotificationFromEvent decodes what EventNotifier published.
func NotificationFromEvent(e events.Event) (Notification, bool) {
	if e.Type != events.EventNotification {
		return Notification{}, false
	}
	str := func(k string) string {
		s, _ := e.Payload[k].(string)
		return s
	}
	n := Notification{
		Recipient: str("recipient"),
		Audience:  Audience(str("audience")),
		Title:     str("title"),
		Message:   str("message"),
		Priority:  Priority(str("priority")),
	}
	if id, err := uuid.Parse(str("order_id")); err == nil {
		n.OrderID = &id
	}
	if n.Title == "" && n.Message == "" {
		return Notification{}, false
	}
	return n, true
}
