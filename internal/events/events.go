package events

import "context"

// Streams
const (
	StreamEscrow = "events:escrow"
	StreamNotify = "events:notify"
)

// Event types
const (
	EventWalletChanged        = "wallet_changed"
	EventWalletReleased       = "wallet_released"
	EventOrderCancelled       = "order_cancelled"
	EventRefundProcessed      = "refund_processed"
	EventCompensationCreated  = "compensation_created"
	EventCompensationApplied  = "compensation_applied"
	EventDisputeStatusChanged = "dispute_status_changed"
	EventRiskProfileChanged   = "risk_profile_changed"
	EventNotification         = "notification"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Event) error { return nil }
