package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harvest-market/escrow/internal/events"
	"github.com/harvest-market/escrow/internal/models"
	"go.uber.org/zap"
)

const (
	maxWriteAttempts = 3
	defaultPageSize  = 500
)

// eachActivePreorder feeds every active pre-order to fn one keyset page at a
// time, stopping on the first short page or the first error fn returns.
func eachActivePreorder(ctx context.Context, orders OrderStore, pageSize int, fn func(o *models.Order) error) error {
	var after models.PageCursor
	for {
		page, err := orders.ListActivePreorders(ctx, after, pageSize)
		if err != nil {
			return fmt.Errorf("list active preorders: %w", err)
		}
		for i := range page {
			if err := fn(&page[i]); err != nil {
				return err
			}
		}
		if len(page) < pageSize {
			return nil
		}
		last := page[len(page)-1]
		after = models.CursorAt(last.CreatedAt, last.ID)
	}
}

func eachWalletByStatus(ctx context.Context, wallets WalletStore, statuses []models.WalletStatus, pageSize int, fn func(w *models.Wallet) error) error {
	var after models.PageCursor
	for {
		page, err := wallets.ListWalletsByStatus(ctx, statuses, after, pageSize)
		if err != nil {
			return fmt.Errorf("list wallets: %w", err)
		}
		for i := range page {
			if err := fn(&page[i]); err != nil {
				return err
			}
		}
		if len(page) < pageSize {
			return nil
		}
		last := page[len(page)-1]
		after = models.CursorAt(last.CreatedAt, last.ID)
	}
}

// recorder bundles the audit, event and notification side channels every
// workflow writes to. Failures there are logged and never fail the call.
type recorder struct {
	audit     AuditStore
	publisher events.Publisher
	notifier  Notifier
	log       *zap.Logger
}

func (r recorder) auditLog(ctx context.Context, actor models.Actor, action, entityType string, entityID uuid.UUID, meta map[string]any) {
	id := entityID
	if err := r.audit.Log(ctx, models.AuditLog{
		ActorEmail: actor.Email,
		ActorType:  actor.Type,
		Action:     action,
		EntityType: entityType,
		EntityID:   &id,
		Meta:       meta,
	}); err != nil {
		r.log.Warn("audit log write failed", zap.String("action", action), zap.Error(err))
	}
}

func (r recorder) publish(ctx context.Context, eventType string, payload map[string]any) {
	if err := r.publisher.Publish(ctx, events.StreamEscrow, events.Event{Type: eventType, Payload: payload}); err != nil {
		r.log.Warn("event publish failed", zap.String("type", eventType), zap.Error(err))
	}
}

func (r recorder) notify(ctx context.Context, n Notification) {
	if r.notifier != nil {
		r.notifier.Notify(ctx, n)
	}
}

func timeline(at time.Time, actor models.Actor, action, note string) models.TimelineEntry {
	return models.TimelineEntry{At: at, Actor: actor.Email, Action: action, Note: note}
}

func actorLabel(actor models.Actor) string {
	if actor.Email == "" {
		return actor.Type
	}
	return fmt.Sprintf("%s:%s", actor.Type, actor.Email)
}
