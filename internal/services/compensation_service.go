package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
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

type CompensationService struct {
	orders        OrderStore
	lots          LotStore
	compensations CompensationStore
	loyalty       LoyaltyStore
	wallets       *WalletService
	rec           recorder
	rules         []models.CompensationRule
	voucherTTL    time.Duration
	loc           *time.Location
	locks         *keyedMutex
	pageSize      int
	log           *zap.Logger
	now           func() time.Time
}

func NewCompensationService(
	orders OrderStore,
	lots LotStore,
	compensations CompensationStore,
	loyalty LoyaltyStore,
	wallets *WalletService,
	audit AuditStore,
	publisher events.Publisher,
	notifier Notifier,
	rules []models.CompensationRule,
	voucherValidDays int,
	loc *time.Location,
	log *zap.Logger,
) *CompensationService {
	if len(rules) == 0 {
		rules = policy.DefaultCompensationRules()
	}
	if voucherValidDays <= 0 {
		voucherValidDays = 30
	}
	if loc == nil {
		loc = time.UTC
	}
	return &CompensationService{
		orders:        orders,
		lots:          lots,
		compensations: compensations,
		loyalty:       loyalty,
		wallets:       wallets,
		rec:           recorder{audit: audit, publisher: publisher, notifier: notifier, log: log},
		rules:         rules,
		voucherTTL:    time.Duration(voucherValidDays) * 24 * time.Hour,
		loc:           loc,
		locks:         newKeyedMutex(),
		pageSize:      defaultPageSize,
		log:           log,
		now:           time.Now,
	}
}

func (s *CompensationService) Rules() []models.CompensationRule {
	out := make([]models.CompensationRule, len(s.rules))
	copy(out, s.rules)
	return out
}

// DetectionReport summarizes one detector pass.
type DetectionReport struct {
	Trigger models.TriggerType           `json:"trigger"`
	Scanned int                          `json:"scanned"`
	Created []*models.CompensationRecord `json:"created"`
	Failed  int                          `json:"failed"`
}

// Detect runs one detector over every active pre-order. Re-running it never
// duplicates a tier already recorded for an order.
func (s *CompensationService) Detect(ctx context.Context, trigger models.TriggerType) (*DetectionReport, error) {
	switch trigger {
	case models.TriggerDelay, models.TriggerShortage:
	default:
		return nil, apperr.Invalidf("trigger_type", "unknown trigger %q", trigger)
	}
	report := &DetectionReport{Trigger: trigger, Created: []*models.CompensationRecord{}}
	err := eachActivePreorder(ctx, s.orders, s.pageSize, func(o *models.Order) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		report.Scanned++
		rec, err := s.DetectForOrder(ctx, o, trigger)
		if err != nil {
			report.Failed++
			s.log.Warn("compensation detection failed", zap.String("order_id", o.ID.String()), zap.String("trigger", string(trigger)), zap.Error(err))
			return nil
		}
		if rec != nil {
			report.Created = append(report.Created, rec)
		}
		return nil
	})
	return report, err
}

// DetectForOrder returns the record created for the order, or nil if no new
// tier applies.
func (s *CompensationService) DetectForOrder(ctx context.Context, o *models.Order, trigger models.TriggerType) (*models.CompensationRecord, error) {
	unlock := s.locks.Lock(o.ID)
	defer unlock()

	var (
		measure int
		details models.TriggerDetails
		err     error
	)
	switch trigger {
	case models.TriggerDelay:
		measure, details, err = s.measureDelay(ctx, o)
	case models.TriggerShortage:
		measure = policy.ShortagePercent(o.Items)
		details = models.TriggerDetails{ShortagePercent: measure}
	default:
		return nil, apperr.Invalidf("trigger_type", "unknown trigger %q", trigger)
	}
	if err != nil || measure <= 0 {
		return nil, err
	}

	existing, err := s.compensations.ListCompensationsByOrder(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	recorded := map[string]bool{}
	for _, c := range existing {
		if c.TriggerType == trigger {
			recorded[c.RuleID] = true
		}
	}
	rule, ok := policy.MatchRule(s.rules, trigger, measure, recorded)
	if !ok {
		return nil, nil
	}

	details.Threshold = rule.Threshold
	details.OrderValue = o.TotalAmount
	details.DetectedAt = s.now()
	status := models.CompensationPending
	if rule.AutoApproved {
		status = models.CompensationApproved
	}
	rec := &models.CompensationRecord{
		OrderID:           o.ID,
		CustomerEmail:     o.CustomerEmail,
		TriggerType:       trigger,
		RuleID:            rule.ID,
		TriggerDetails:    details,
		CompensationType:  rule.CompensationType,
		CompensationUnit:  rule.Unit,
		CompensationValue: policy.CompensationValue(rule, o.TotalAmount),
		Status:            status,
		AutoApproved:      rule.AutoApproved,
	}
	if err := s.compensations.CreateCompensation(ctx, rec); err != nil {
		if errors.Is(err, apperr.ErrDuplicate) {
			return nil, nil
		}
		return nil, err
	}

	metrics.RecordCompensation(string(trigger), string(status))
	s.log.Info("compensation detected",
		zap.String("order_id", o.ID.String()),
		zap.String("rule_id", rule.ID),
		zap.Int("measure", measure),
		zap.Int64("value", rec.CompensationValue),
		zap.Bool("auto_approved", rule.AutoApproved),
	)
	s.rec.auditLog(ctx, models.SystemActor, "compensation_detected", "compensation", rec.ID, map[string]any{
		"order_id": o.ID.String(), "rule_id": rule.ID, "measure": measure,
	})
	s.rec.publish(ctx, events.EventCompensationCreated, map[string]any{
		"compensation_id": rec.ID.String(), "order_id": o.ID.String(), "rule_id": rule.ID, "status": string(status),
	})
	if !rule.AutoApproved {
		orderID := o.ID
		s.rec.notify(ctx, Notification{
			Audience: AudienceAdmin,
			Title:    "Compensation awaiting approval",
			Message:  fmt.Sprintf("Order %s matched rule %s (%s %d).", shortID(o.ID), rule.ID, rule.CompensationType, rec.CompensationValue),
			Priority: PriorityNormal,
			OrderID:  &orderID,
		})
	}
	return rec, nil
}

// measureDelay takes the worst delay across the order's pre-order lots.
func (s *CompensationService) measureDelay(ctx context.Context, o *models.Order) (int, models.TriggerDetails, error) {
	var details models.TriggerDetails
	worst := 0
	for _, it := range o.PreorderItems() {
		lot, err := s.lots.GetLot(ctx, *it.LotID)
		if err != nil {
			return 0, details, err
		}
		if d := policy.DelayDays(*lot, s.now(), s.loc); d > worst {
			worst = d
			id := lot.ID
			details.LotID = &id
		}
	}
	details.DelayDays = worst
	return worst, details, nil
}

func (s *CompensationService) Get(ctx context.Context, id uuid.UUID) (*models.CompensationRecord, error) {
	return s.compensations.GetCompensation(ctx, id)
}

func (s *CompensationService) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.CompensationRecord, error) {
	return s.compensations.ListCompensationsByOrder(ctx, orderID)
}

func (s *CompensationService) ListByStatus(ctx context.Context, status models.CompensationStatus, limit int) ([]models.CompensationRecord, error) {
	return s.compensations.ListCompensationsByStatus(ctx, status, limit)
}

func (s *CompensationService) transition(ctx context.Context, rec *models.CompensationRecord, to models.CompensationStatus, actor models.Actor, meta map[string]any) error {
	if !models.IsValidCompensationTransition(rec.Status, to) {
		return &apperr.InvalidStateError{Entity: "compensation", ID: rec.ID.String(), Status: string(rec.Status), Operation: "move to " + string(to)}
	}
	from := rec.Status
	rec.Status = to
	if err := s.compensations.UpdateCompensation(ctx, rec); err != nil {
		rec.Status = from
		return err
	}
	metrics.RecordCompensation(string(rec.TriggerType), string(to))
	if meta == nil {
		meta = map[string]any{}
	}
	meta["old_status"] = string(from)
	meta["new_status"] = string(to)
	s.rec.auditLog(ctx, actor, fmt.Sprintf("compensation_%s_to_%s", from, to), "compensation", rec.ID, meta)
	return nil
}

// Approve releases a manually gated record for ApplyCompensation.
func (s *CompensationService) Approve(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.CompensationRecord, error) {
	unlock := s.locks.Lock(id)
	defer unlock()
	rec, err := s.compensations.GetCompensation(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.ReviewedBy = actor.Email
	if err := s.transition(ctx, rec, models.CompensationApproved, actor, nil); err != nil {
		return nil, err
	}
	return rec, nil
}

// Reject is terminal.
func (s *CompensationService) Reject(ctx context.Context, id uuid.UUID, reason string, actor models.Actor) (*models.CompensationRecord, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperr.Invalid("reason", "required")
	}
	unlock := s.locks.Lock(id)
	defer unlock()
	rec, err := s.compensations.GetCompensation(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.ReviewedBy = actor.Email
	rec.RejectionReason = reason
	if err := s.transition(ctx, rec, models.CompensationRejected, actor, map[string]any{"reason": reason}); err != nil {
		return nil, err
	}
	return rec, nil
}

// Apply performs the payout side effect and marks the record applied.
// Records still awaiting approval come back with Pending == true.
func (s *CompensationService) Apply(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.ApplyResult, error) {
	unlock := s.locks.Lock(id)
	defer unlock()
	rec, err := s.compensations.GetCompensation(ctx, id)
	if err != nil {
		return nil, err
	}

	switch rec.Status {
	case models.CompensationApplied:
		return &models.ApplyResult{Applied: true, Reason: "already applied", Record: rec}, nil
	case models.CompensationPending:
		return &models.ApplyResult{Pending: true, Reason: "awaiting admin approval", Record: rec}, nil
	case models.CompensationRejected:
		return nil, &apperr.InvalidStateError{Entity: "compensation", ID: rec.ID.String(), Status: string(rec.Status), Operation: "apply"}
	case models.CompensationApproved:
	}

	var summary string
	switch rec.CompensationType {
	case models.CompensationVoucher:
		v, err := s.issueVoucher(ctx, rec)
		if err != nil {
			return nil, err
		}
		rec.VoucherCode = &v.Code
		summary = fmt.Sprintf("Mã giảm giá %s trị giá %s, hạn dùng %s.", v.Code, money.FormatVND(v.Amount, language.Vietnamese), v.ExpiresAt.In(s.loc).Format("02/01/2006"))
	case models.CompensationPoints:
		balance, err := s.loyalty.CreditPoints(ctx, rec.CustomerEmail, rec.CompensationValue, "compensation:"+rec.ID.String())
		if err != nil {
			return nil, fmt.Errorf("credit points: %w", err)
		}
		summary = fmt.Sprintf("Cộng %d điểm thưởng, số dư %d điểm.", rec.CompensationValue, balance)
	case models.CompensationPartialRefund, models.CompensationDiscountCurrentOrder:
		tx, err := s.refund(ctx, rec, actor)
		if err != nil {
			return nil, err
		}
		rec.TransactionID = &tx.ID
		summary = fmt.Sprintf("Hoàn %s vào phương thức thanh toán ban đầu.", money.FormatVND(rec.CompensationValue, language.Vietnamese))
	default:
		return nil, fmt.Errorf("compensation %s: unhandled type %q", rec.ID, rec.CompensationType)
	}

	now := s.now()
	rec.AppliedAt = &now
	if err := s.transition(ctx, rec, models.CompensationApplied, actor, map[string]any{"type": string(rec.CompensationType)}); err != nil {
		return nil, err
	}

	s.rec.publish(ctx, events.EventCompensationApplied, map[string]any{
		"compensation_id": rec.ID.String(), "order_id": rec.OrderID.String(), "type": string(rec.CompensationType), "value": rec.CompensationValue,
	})
	orderID := rec.OrderID
	s.rec.notify(ctx, Notification{
		Recipient: rec.CustomerEmail,
		Audience:  AudienceCustomer,
		Title:     "Bạn nhận được bồi thường",
		Message:   fmt.Sprintf("Đơn %s: %s", shortID(rec.OrderID), summary),
		Priority:  PriorityNormal,
		OrderID:   &orderID,
	})
	return &models.ApplyResult{Applied: true, Record: rec}, nil
}

// VoucherCode derives a unique code from the order id and issue time.
func VoucherCode(orderID uuid.UUID, at time.Time) string {
	prefix := strings.ToUpper(strings.ReplaceAll(orderID.String(), "-", "")[:8])
	return "COMP-" + prefix + "-" + strings.ToUpper(strconv.FormatInt(at.UnixMilli(), 36))
}

func (s *CompensationService) issueVoucher(ctx context.Context, rec *models.CompensationRecord) (*models.Voucher, error) {
	if v, err := s.loyalty.GetVoucherByCompensation(ctx, rec.ID); err == nil {
		return v, nil
	}
	now := s.now()
	v := &models.Voucher{
		Code:           VoucherCode(rec.OrderID, now),
		OrderID:        rec.OrderID,
		CustomerEmail:  rec.CustomerEmail,
		Amount:         rec.CompensationValue,
		CompensationID: rec.ID,
		ExpiresAt:      now.Add(s.voucherTTL),
	}
	if err := s.loyalty.CreateVoucher(ctx, v); err != nil {
		if errors.Is(err, apperr.ErrDuplicate) {
			return s.loyalty.GetVoucherByCompensation(ctx, rec.ID)
		}
		return nil, fmt.Errorf("create voucher: %w", err)
	}
	return v, nil
}

func (s *CompensationService) refund(ctx context.Context, rec *models.CompensationRecord, actor models.Actor) (*models.Transaction, error) {
	w, err := s.wallets.GetWalletByOrder(ctx, rec.OrderID)
	if err != nil {
		return nil, err
	}
	refundType := models.RefundPartial
	if rec.CompensationValue == w.TotalHeld {
		refundType = models.RefundFull
	}
	_, tx, err := s.wallets.Refund(ctx, RefundRequest{
		WalletID:  w.ID,
		Amount:    rec.CompensationValue,
		Type:      refundType,
		Reason:    fmt.Sprintf("compensation %s (%s)", rec.RuleID, rec.CompensationType),
		Reference: "compensation:" + rec.ID.String(),
		Actor:     actor,
	})
	return tx, err
}

// ApplyApproved applies every approved record, used after detection so
// auto-approved compensations pay out without an admin call.
func (s *CompensationService) ApplyApproved(ctx context.Context, limit int) (applied, failed int) {
	recs, err := s.compensations.ListCompensationsByStatus(ctx, models.CompensationApproved, limit)
	if err != nil {
		s.log.Error("list approved compensations", zap.Error(err))
		return 0, 0
	}
	for _, rec := range recs {
		res, err := s.Apply(ctx, rec.ID, models.SystemActor)
		if err != nil {
			failed++
			s.log.Warn("apply compensation failed", zap.String("compensation_id", rec.ID.String()), zap.Error(err))
			continue
		}
		if res.Applied {
			applied++
		}
	}
	return applied, failed
}
