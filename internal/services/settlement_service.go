package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/harvest-market/escrow/internal/apperr"
	"github.com/harvest-market/escrow/internal/events"
	"github.com/harvest-market/escrow/internal/models"
	"go.uber.org/zap"
)

// Release outcomes reported by RunReleaseChecks.
const (
	OutcomeReleased     = "released"
	OutcomeNotReady     = "not_ready"
	OutcomeManualReview = "manual_review"
	OutcomeInspecting   = "inspecting"
	OutcomeCancelled    = "cancelled"
	OutcomeFailed       = "failed"
)

type SettlementService struct {
	orders     OrderStore
	wallets    *WalletService
	walletRepo WalletStore
	risk       *RiskService
	rec        recorder
	commission float64
	inspection time.Duration
	pageSize   int
	log        *zap.Logger
	now        func() time.Time
}

func NewSettlementService(
	orders OrderStore,
	walletRepo WalletStore,
	wallets *WalletService,
	risk *RiskService,
	audit AuditStore,
	publisher events.Publisher,
	notifier Notifier,
	commissionRate float64,
	inspection time.Duration,
	log *zap.Logger,
) *SettlementService {
	return &SettlementService{
		orders:     orders,
		wallets:    wallets,
		walletRepo: walletRepo,
		risk:       risk,
		rec:        recorder{audit: audit, publisher: publisher, notifier: notifier, log: log},
		commission: commissionRate,
		inspection: inspection,
		pageSize:   defaultPageSize,
		log:        log,
		now:        time.Now,
	}
}

// ConfirmDelivery marks the order delivered and opens the delivery gate.
func (s *SettlementService) ConfirmDelivery(ctx context.Context, orderID uuid.UUID, actor models.Actor) (*models.Wallet, error) {
	o, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	switch o.Status {
	case models.OrderCancelled, models.OrderReturnedRefunded:
		return nil, &apperr.InvalidStateError{Entity: "order", ID: o.ID.String(), Status: string(o.Status), Operation: "confirm delivery"}
	}
	w, err := s.wallets.GetWalletByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.DeliveredAt == nil {
		if err := s.orders.MarkDelivered(ctx, orderID, s.now()); err != nil {
			return nil, err
		}
	}
	w, err = s.wallets.UpdateReleaseCondition(ctx, w.ID, models.ConditionDeliveryConfirmed, true, actor)
	if err != nil {
		return nil, err
	}
	s.rec.auditLog(ctx, actor, "delivery_confirmed", "order", orderID, nil)
	s.rec.notify(ctx, Notification{
		Recipient: o.CustomerEmail,
		Audience:  AudienceCustomer,
		Title:     "Đơn hàng đã được giao",
		Message:   "Vui lòng kiểm tra và xác nhận đơn hàng " + shortID(o.ID),
		Priority:  PriorityNormal,
		OrderID:   &orderID,
	})
	return w, nil
}

// AcceptDelivery records the customer's acceptance of the goods.
func (s *SettlementService) AcceptDelivery(ctx context.Context, orderID uuid.UUID, actor models.Actor) (*models.Wallet, error) {
	w, err := s.wallets.GetWalletByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.wallets.UpdateReleaseCondition(ctx, w.ID, models.ConditionCustomerAccepted, true, actor)
}

// Release pays the seller. Customers under manual release review are only
// released by an admin.
func (s *SettlementService) Release(ctx context.Context, walletID uuid.UUID, actor models.Actor) (*models.ReleaseResult, error) {
	w, err := s.wallets.GetWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if actor.Type != models.ActorTypeAdmin {
		p, err := s.risk.GetProfile(ctx, w.CustomerEmail)
		if err != nil {
			return nil, err
		}
		if p.HasRestriction(models.RestrictManualReleaseCheck) {
			return &models.ReleaseResult{Released: false, Reason: "manual review required", Wallet: w}, nil
		}
	}

	res, err := s.wallets.ReleaseToSeller(ctx, walletID, s.commission, actor)
	if err != nil || !res.Released {
		return res, err
	}
	if err := s.orders.UpdateOrderStatus(ctx, w.OrderID, models.OrderDelivered, models.PaymentPaid); err != nil {
		s.log.Warn("order payment status not updated", zap.String("order_id", w.OrderID.String()), zap.Error(err))
	}
	if _, err := s.risk.RecordCompletion(ctx, w.CustomerEmail); err != nil {
		s.log.Warn("risk completion not recorded", zap.String("customer", w.CustomerEmail), zap.Error(err))
	}
	return res, nil
}

type ReleaseOutcome struct {
	WalletID uuid.UUID                 `json:"wallet_id"`
	OrderID  uuid.UUID                 `json:"order_id"`
	Outcome  string                    `json:"outcome"`
	Unmet    []models.ReleaseCondition `json:"unmet_conditions,omitempty"`
	Payout   int64                     `json:"payout,omitempty"`
	Error    string                    `json:"error,omitempty"`
}

// RunReleaseChecks closes the inspection window for delivered orders and
// attempts release on every held wallet, one keyset page at a time.
// Wallets of cancelled orders are left to the cancellation flow.
func (s *SettlementService) RunReleaseChecks(ctx context.Context, now time.Time) ([]ReleaseOutcome, error) {
	var out []ReleaseOutcome
	statuses := []models.WalletStatus{models.WalletFullyHeld, models.WalletPartialRefunded}
	err := eachWalletByStatus(ctx, s.walletRepo, statuses, s.pageSize, func(w *models.Wallet) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		out = append(out, s.checkRelease(ctx, w, now))
		return nil
	})
	s.log.Info("release checks done", zap.Int("wallets", len(out)))
	return out, err
}

func (s *SettlementService) checkRelease(ctx context.Context, w *models.Wallet, now time.Time) ReleaseOutcome {
	res := ReleaseOutcome{WalletID: w.ID, OrderID: w.OrderID}
	o, err := s.orders.GetOrder(ctx, w.OrderID)
	if err != nil {
		res.Outcome, res.Error = OutcomeFailed, err.Error()
		return res
	}
	switch o.Status {
	case models.OrderCancelled, models.OrderReturnedRefunded:
		res.Outcome = OutcomeCancelled
		return res
	}
	if o.DeliveredAt == nil || now.Sub(*o.DeliveredAt) < s.inspection {
		res.Outcome = OutcomeInspecting
		return res
	}
	if !w.ReleaseConditions.InspectionPeriodPassed {
		if _, err := s.wallets.UpdateReleaseCondition(ctx, w.ID, models.ConditionInspectionPeriodPassed, true, models.SystemActor); err != nil {
			res.Outcome, res.Error = OutcomeFailed, err.Error()
			return res
		}
	}

	rr, err := s.Release(ctx, w.ID, models.SystemActor)
	switch {
	case err != nil:
		res.Outcome, res.Error = OutcomeFailed, err.Error()
	case rr.Released:
		res.Outcome, res.Payout = OutcomeReleased, rr.Payout
	case len(rr.UnmetConditions) == 0:
		res.Outcome = OutcomeManualReview
	default:
		res.Outcome, res.Unmet = OutcomeNotReady, rr.UnmetConditions
	}
	return res
}
