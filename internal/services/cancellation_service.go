package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harvest-market/escrow/internal/apperr"
	"github.com/harvest-market/escrow/internal/events"
	"github.com/harvest-market/escrow/internal/metrics"
	"github.com/harvest-market/escrow/internal/models"
	"github.com/harvest-market/escrow/internal/money"
	"github.com/harvest-market/escrow/internal/policy"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

type CancellationService struct {
	orders        OrderStore
	lots          LotStore
	cancellations CancellationStore
	wallets       *WalletService
	risk          *RiskService
	rec           recorder
	policy        policy.RefundPolicy
	commission    float64
	locks         *keyedMutex
	loc           *time.Location
	log           *zap.Logger
	now           func() time.Time
}

func NewCancellationService(
	orders OrderStore,
	lots LotStore,
	cancellations CancellationStore,
	wallets *WalletService,
	risk *RiskService,
	audit AuditStore,
	publisher events.Publisher,
	notifier Notifier,
	refundPolicy policy.RefundPolicy,
	commissionRate float64,
	loc *time.Location,
	log *zap.Logger,
) *CancellationService {
	if loc == nil {
		loc = time.UTC
	}
	return &CancellationService{
		orders:        orders,
		lots:          lots,
		cancellations: cancellations,
		wallets:       wallets,
		risk:          risk,
		rec:           recorder{audit: audit, publisher: publisher, notifier: notifier, log: log},
		policy:        refundPolicy,
		commission:    commissionRate,
		locks:         newKeyedMutex(),
		loc:           loc,
		log:           log,
		now:           time.Now,
	}
}

type CancelRequest struct {
	OrderID uuid.UUID
	Reasons []models.CancelReason
	Note    string
	Actor   models.Actor
}

// CancellationQuote previews what a cancellation would refund right now.
type CancellationQuote struct {
	OrderID           uuid.UUID          `json:"order_id"`
	DaysBeforeHarvest int                `json:"days_before_harvest"`
	OriginalAmount    int64              `json:"original_amount"`
	Quote             policy.RefundQuote `json:"quote"`
}

func validateReasons(req CancelRequest) error {
	v := &apperr.ValidationError{}
	if len(req.Reasons) == 0 {
		v.Add("reasons", "at least one reason is required")
	}
	for _, r := range req.Reasons {
		if !models.IsValidCancelReason(r) {
			v.Addf("reasons", "unknown reason %q", r)
		}
		if r == models.CancelSellerCancel && req.Actor.Type == models.ActorTypeCustomer {
			v.Add("reasons", "seller_cancel can only be used by the seller or an admin")
		}
	}
	return v.OrNil()
}

// daysBeforeHarvest uses the earliest estimated harvest across the order's
// pre-order lines. Orders without pre-order lines fall in the free window.
func (s *CancellationService) daysBeforeHarvest(ctx context.Context, o *models.Order) (int, error) {
	var ids []uuid.UUID
	for _, it := range o.PreorderItems() {
		ids = append(ids, *it.LotID)
	}
	if len(ids) == 0 {
		return s.policy.FreeCancelDays, nil
	}
	lots, err := s.lots.GetLots(ctx, ids)
	if err != nil {
		return 0, err
	}
	harvest, ok := policy.EarliestHarvest(lots)
	if !ok {
		return s.policy.FreeCancelDays, nil
	}
	return policy.DaysBeforeHarvest(s.now(), harvest, s.loc), nil
}

func (s *CancellationService) heldAmount(ctx context.Context, orderID uuid.UUID) (*models.Wallet, int64, error) {
	w, err := s.wallets.GetWalletByOrder(ctx, orderID)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return w, w.TotalHeld, nil
}

// Preview computes the refund quote without writing anything.
func (s *CancellationService) Preview(ctx context.Context, orderID uuid.UUID, reasons []models.CancelReason) (*CancellationQuote, error) {
	o, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	days, err := s.daysBeforeHarvest(ctx, o)
	if err != nil {
		return nil, err
	}
	_, held, err := s.heldAmount(ctx, orderID)
	if err != nil {
		return nil, err
	}
	q := policy.CalculatePolicyRefund(held, s.policy, days, policy.PrimaryReason(reasons))
	return &CancellationQuote{OrderID: orderID, DaysBeforeHarvest: days, OriginalAmount: held, Quote: q}, nil
}

// RequestCancellation cancels an order and computes its refund. The call is
// resumable: a retry after a partial failure picks up the existing record
// and finishes inventory restoration and the order update. Refunds move in
// ProcessRefund; when no refund is owed the forfeited balance is settled to
// the seller here.
func (s *CancellationService) RequestCancellation(ctx context.Context, req CancelRequest) (*models.CancellationRecord, error) {
	if err := validateReasons(req); err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(req.OrderID)
	defer unlock()

	o, err := s.orders.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	rec, err := s.cancellations.GetCancellationByOrder(ctx, o.ID)
	switch {
	case err == nil:
		s.log.Info("resuming cancellation", zap.String("order_id", o.ID.String()), zap.String("cancellation_id", rec.ID.String()))
	case apperr.KindOf(err) == apperr.KindNotFound:
		rec, err = s.createRecord(ctx, o, req)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	rec, err = s.restoreInventory(ctx, o, rec, req.Actor)
	if err != nil {
		return rec, fmt.Errorf("restore inventory: %w", err)
	}

	payment := models.PaymentCancelled
	if rec.RefundAmount > 0 {
		payment = models.PaymentRefundPending
	}
	if rec.RefundStatus == models.RefundStatusCompleted {
		payment = models.PaymentRefunded
	}
	if o.Status != models.OrderCancelled || o.PaymentStatus != payment {
		if err := s.orders.UpdateOrderStatus(ctx, o.ID, models.OrderCancelled, payment); err != nil {
			return rec, fmt.Errorf("update order status: %w", err)
		}
	}

	if rec.WalletID != nil {
		w, err := s.wallets.GetWallet(ctx, *rec.WalletID)
		if err == nil && w.Status == models.WalletPendingDeposit {
			if _, err := s.wallets.Cancel(ctx, w.ID, req.Actor); err != nil {
				return rec, fmt.Errorf("cancel wallet: %w", err)
			}
		}
		if err == nil && rec.RefundStatus == models.RefundStatusNotRequired && w.TotalHeld > 0 {
			if rec, err = s.settlePenalty(ctx, rec, req.Actor); err != nil {
				return rec, fmt.Errorf("settle penalty: %w", err)
			}
		}
	}
	return rec, nil
}

func (s *CancellationService) createRecord(ctx context.Context, o *models.Order, req CancelRequest) (*models.CancellationRecord, error) {
	if !o.Status.IsCancellable() {
		return nil, &apperr.InvalidStateError{Entity: "order", ID: o.ID.String(), Status: string(o.Status), Operation: "cancel"}
	}
	days, err := s.daysBeforeHarvest(ctx, o)
	if err != nil {
		return nil, err
	}
	w, held, err := s.heldAmount(ctx, o.ID)
	if err != nil {
		return nil, err
	}

	q := policy.CalculatePolicyRefund(held, s.policy, days, policy.PrimaryReason(req.Reasons))
	refundStatus := models.RefundStatusNotRequired
	if q.RefundAmount > 0 {
		refundStatus = models.RefundStatusPending
	}
	now := s.now()
	note := fmt.Sprintf("%s, refund %d%% (%s), penalty %s", q.Tier, q.RefundPercentage,
		money.FormatVND(q.RefundAmount, language.Vietnamese), money.FormatVND(q.PenaltyAmount, language.Vietnamese))
	if req.Note != "" {
		note += ": " + req.Note
	}
	rec := &models.CancellationRecord{
		OrderID:             o.ID,
		CustomerEmail:       o.CustomerEmail,
		RequestedBy:         req.Actor.Email,
		DaysBeforeHarvest:   days,
		CancellationReasons: req.Reasons,
		OriginalDeposit:     held,
		RefundPercentage:    q.RefundPercentage,
		RefundAmount:        q.RefundAmount,
		PenaltyAmount:       q.PenaltyAmount,
		RefundStatus:        refundStatus,
		PolicyTier:          q.Tier,
		Timeline:            []models.TimelineEntry{timeline(now, req.Actor, "cancellation_requested", note)},
	}
	if w != nil {
		rec.WalletID = &w.ID
	}

	if err := s.cancellations.CreateCancellation(ctx, rec); err != nil {
		if errors.Is(err, apperr.ErrDuplicate) {
			return s.cancellations.GetCancellationByOrder(ctx, o.ID)
		}
		return nil, err
	}

	metrics.RecordCancellation(string(q.Tier))
	s.log.Info("order cancelled",
		zap.String("order_id", o.ID.String()),
		zap.String("tier", string(q.Tier)),
		zap.Int("days_before_harvest", days),
		zap.Int64("refund_amount", q.RefundAmount),
		zap.Int64("penalty_amount", q.PenaltyAmount),
	)
	s.rec.auditLog(ctx, req.Actor, "order_cancelled", "cancellation", rec.ID, map[string]any{
		"order_id": o.ID.String(), "tier": string(q.Tier), "refund_amount": q.RefundAmount, "penalty_amount": q.PenaltyAmount,
	})
	s.rec.publish(ctx, events.EventOrderCancelled, map[string]any{
		"order_id": o.ID.String(), "cancellation_id": rec.ID.String(), "tier": string(q.Tier), "refund_amount": q.RefundAmount,
	})
	if _, err := s.risk.RecordCancellation(ctx, o.CustomerEmail); err != nil {
		s.log.Warn("risk profile not updated", zap.String("customer", o.CustomerEmail), zap.Error(err))
	}

	orderID := o.ID
	s.rec.notify(ctx, Notification{
		Recipient: o.CustomerEmail,
		Audience:  AudienceCustomer,
		Title:     "Đơn hàng đã được hủy",
		Message: fmt.Sprintf("Đơn %s đã hủy. Hoàn tiền %s (%d%%), phí hủy %s.", shortID(o.ID),
			money.FormatVND(q.RefundAmount, language.Vietnamese), q.RefundPercentage, money.FormatVND(q.PenaltyAmount, language.Vietnamese)),
		Priority: PriorityNormal,
		OrderID:  &orderID,
	})
	if q.RefundAmount > 0 {
		s.rec.notify(ctx, Notification{
			Audience: AudienceAdmin,
			Title:    "Refund awaiting processing",
			Message:  fmt.Sprintf("Order %s cancelled (%s): refund %s pending review.", shortID(o.ID), q.Tier, money.FormatVND(q.RefundAmount, language.English)),
			Priority: PriorityHigh,
			OrderID:  &orderID,
		})
	}
	return rec, nil
}

// restoreInventory returns each pre-order line's reservation to its lot
// exactly once. The lot store claims every item before it adds stock back,
// so a repeat or a racing caller in another process cannot restore twice.
func (s *CancellationService) restoreInventory(ctx context.Context, o *models.Order, rec *models.CancellationRecord, actor models.Actor) (*models.CancellationRecord, error) {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		if rec.InventoryRestored {
			return rec, nil
		}
		for _, it := range o.PreorderItems() {
			if rec.IsItemRestored(it.ID) {
				continue
			}
			restored, err := s.lots.RestoreLot(ctx, *it.LotID, it.ID, it.Quantity)
			if err != nil {
				return rec, err
			}
			if !restored {
				s.log.Debug("lot line already restored", zap.String("order_item_id", it.ID.String()))
			}
			rec.RestoredItemIDs = append(rec.RestoredItemIDs, it.ID)
		}
		rec.InventoryRestored = true
		rec.Timeline = append(rec.Timeline, timeline(s.now(), actor, "inventory_restored", fmt.Sprintf("%d line(s)", len(rec.RestoredItemIDs))))
		err := s.cancellations.UpdateCancellation(ctx, rec)
		if !errors.Is(err, apperr.ErrConcurrentUpdate) {
			return rec, err
		}
		if rec, err = s.cancellations.GetCancellation(ctx, rec.ID); err != nil {
			return nil, err
		}
	}
	return rec, fmt.Errorf("cancellation %s: %w", rec.ID, apperr.ErrConcurrentUpdate)
}

// settlePenalty pays the balance the customer forfeited to the seller and
// stamps the record. Already settled wallets are left alone.
func (s *CancellationService) settlePenalty(ctx context.Context, rec *models.CancellationRecord, actor models.Actor) (*models.CancellationRecord, error) {
	res, err := s.wallets.SettleForfeit(ctx, *rec.WalletID, s.commission, "cancellation:"+rec.ID.String(), actor)
	if err != nil {
		return rec, err
	}
	if !res.Released {
		return rec, nil
	}
	rec.Timeline = append(rec.Timeline, timeline(s.now(), actor, "penalty_settled",
		fmt.Sprintf("payout %s, commission %s", money.FormatVND(res.Payout, language.Vietnamese), money.FormatVND(res.Commission, language.Vietnamese))))
	if err := s.cancellations.UpdateCancellation(ctx, rec); err != nil {
		s.log.Warn("penalty settlement not stamped on cancellation", zap.String("cancellation_id", rec.ID.String()), zap.Error(err))
	}
	return rec, nil
}

func (s *CancellationService) GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.CancellationRecord, error) {
	return s.cancellations.GetCancellationByOrder(ctx, orderID)
}

func (s *CancellationService) Get(ctx context.Context, id uuid.UUID) (*models.CancellationRecord, error) {
	return s.cancellations.GetCancellation(ctx, id)
}

// ProcessRefund moves the computed refund out of escrow and settles any
// penalty left behind to the seller. Repeating it after completion returns
// the record unchanged.
func (s *CancellationService) ProcessRefund(ctx context.Context, cancellationID uuid.UUID, actor models.Actor) (*models.CancellationRecord, error) {
	rec, err := s.cancellations.GetCancellation(ctx, cancellationID)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(rec.OrderID)
	defer unlock()
	if rec, err = s.cancellations.GetCancellation(ctx, cancellationID); err != nil {
		return nil, err
	}

	switch rec.RefundStatus {
	case models.RefundStatusCompleted:
		if rec.PenaltyAmount > 0 && rec.WalletID != nil {
			return s.settlePenalty(ctx, rec, actor)
		}
		return rec, nil
	case models.RefundStatusNotRequired:
		return nil, &apperr.InvalidStateError{Entity: "cancellation", ID: rec.ID.String(), Status: string(rec.RefundStatus), Operation: "process refund"}
	case models.RefundStatusPending:
	}
	if rec.WalletID == nil {
		return nil, &apperr.InvalidStateError{Entity: "cancellation", ID: rec.ID.String(), Status: "no_wallet", Operation: "process refund"}
	}

	w, err := s.wallets.GetWallet(ctx, *rec.WalletID)
	if err != nil {
		return nil, err
	}
	refundType := models.RefundPartial
	if rec.RefundAmount == w.TotalHeld {
		refundType = models.RefundFull
	}
	_, tx, err := s.wallets.Refund(ctx, RefundRequest{
		WalletID:  w.ID,
		Amount:    rec.RefundAmount,
		Type:      refundType,
		Reason:    fmt.Sprintf("cancellation %s", rec.PolicyTier),
		Reference: "cancellation:" + rec.ID.String(),
		Actor:     actor,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	rec.RefundStatus = models.RefundStatusCompleted
	rec.RefundTransactionID = &tx.ID
	rec.RefundedAt = &now
	rec.Timeline = append(rec.Timeline, timeline(now, actor, "refund_completed", money.FormatVND(rec.RefundAmount, language.Vietnamese)))
	if err := s.cancellations.UpdateCancellation(ctx, rec); err != nil {
		return nil, err
	}
	if err := s.orders.UpdateOrderStatus(ctx, rec.OrderID, models.OrderCancelled, models.PaymentRefunded); err != nil {
		s.log.Warn("order payment status not updated", zap.String("order_id", rec.OrderID.String()), zap.Error(err))
	}
	if rec.PenaltyAmount > 0 {
		if rec, err = s.settlePenalty(ctx, rec, actor); err != nil {
			s.log.Error("cancellation penalty not settled", zap.String("cancellation_id", rec.ID.String()), zap.Error(err))
		}
	}

	s.rec.auditLog(ctx, actor, "cancellation_refund_processed", "cancellation", rec.ID, map[string]any{
		"amount": rec.RefundAmount, "transaction_id": tx.ID.String(),
	})
	s.rec.publish(ctx, events.EventRefundProcessed, map[string]any{
		"order_id": rec.OrderID.String(), "cancellation_id": rec.ID.String(), "amount": rec.RefundAmount,
	})
	orderID := rec.OrderID
	s.rec.notify(ctx, Notification{
		Recipient: rec.CustomerEmail,
		Audience:  AudienceCustomer,
		Title:     "Hoàn tiền thành công",
		Message:   fmt.Sprintf("Đã hoàn %s cho đơn %s.", money.FormatVND(rec.RefundAmount, language.Vietnamese), shortID(rec.OrderID)),
		Priority:  PriorityNormal,
		OrderID:   &orderID,
	})
	return rec, nil
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}
