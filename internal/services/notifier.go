package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/harvest-market/escrow/internal/events"
	"go.uber.org/zap"
)

type Audience string

const (
	AudienceCustomer Audience = "customer"
	AudienceSeller   Audience = "seller"
	AudienceAdmin    Audience = "admin"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Notification is the message content the engine hands to the delivery
// collaborator. Delivery is fire-and-forget.
type Notification struct {
	Recipient string     `json:"recipient,omitempty"`
	Audience  Audience   `json:"audience"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Priority  Priority   `json:"priority"`
	OrderID   *uuid.UUID `json:"order_id,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// EventNotifier publishes notifications on the notify stream for
// cmd/notify-bridge to deliver.
type EventNotifier struct {
	publisher events.Publisher
	log       *zap.Logger
}

func NewEventNotifier(publisher events.Publisher, log *zap.Logger) *EventNotifier {
	return &EventNotifier{publisher: publisher, log: log}
}

func (n *EventNotifier) Notify(ctx context.Context, msg Notification) {
	payload := map[string]any{
		"recipient": msg.Recipient,
		"audience":  string(msg.Audience),
		"title":     msg.Title,
		"message":   msg.Message,
		"priority":  string(msg.Priority),
	}
	if msg.OrderID != nil {
		payload["order_id"] = msg.OrderID.String()
	}
	if err := n.publisher.Publish(ctx, events.StreamNotify, events.Event{Type: events.EventNotification, Payload: payload}); err != nil {
		n.log.Warn("notification dropped", zap.String("title", msg.Title), zap.Error(err))
	}
}
