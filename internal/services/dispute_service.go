package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/harvest-market/escrow/internal/apperr"
	"github.com/harvest-market/escrow/internal/events"
	"github.com/harvest-market/escrow/internal/metrics"
	"github.com/harvest-market/escrow/internal/models"
	"go.uber.org/zap"
)

const minDescriptionLength = 20

type DisputeService struct {
	disputes DisputeStore
	orders   OrderStore
	wallets  *WalletService
	rec      recorder
	locks    *keyedMutex
	log      *zap.Logger
	now      func() time.Time
}

func NewDisputeService(
	disputes DisputeStore,
	orders OrderStore,
	wallets *WalletService,
	audit AuditStore,
	publisher events.Publisher,
	notifier Notifier,
	log *zap.Logger,
) *DisputeService {
	return &DisputeService{
		disputes: disputes,
		orders:   orders,
		wallets:  wallets,
		rec:      recorder{audit: audit, publisher: publisher, notifier: notifier, log: log},
		locks:    newKeyedMutex(),
		log:      log,
		now:      time.Now,
	}
}

type CreateDisputeInput struct {
	OrderID             uuid.UUID
	DisputeType         models.DisputeType
	CustomerDescription string
	EvidenceURLs        []string
	Actor               models.Actor
}

type ResolutionOptionInput struct {
	Type        models.ResolutionType
	Amount      int64
	Description string
}

// TicketNumber is DSP-<yyyymmdd>-<6 hex of the ticket id>.
func TicketNumber(id uuid.UUID, at time.Time) string {
	return fmt.Sprintf("DSP-%s-%s", at.Format("20060102"), strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:6]))
}

func (s *DisputeService) Create(ctx context.Context, in CreateDisputeInput) (*models.DisputeTicket, error) {
	v := &apperr.ValidationError{}
	if in.DisputeType == "" {
		v.Add("dispute_type", "required")
	} else if !models.IsValidDisputeType(in.DisputeType) {
		v.Addf("dispute_type", "unknown dispute type %q", in.DisputeType)
	}
	desc := strings.TrimSpace(in.CustomerDescription)
	if utf8.RuneCountInString(desc) < minDescriptionLength {
		v.Addf("customer_description", "must be at least %d characters", minDescriptionLength)
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	o, err := s.orders.GetOrder(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	id := uuid.New()
	t := &models.DisputeTicket{
		ID:                  id,
		TicketNumber:        TicketNumber(id, now),
		OrderID:             o.ID,
		CustomerEmail:       o.CustomerEmail,
		DisputeType:         in.DisputeType,
		CustomerDescription: desc,
		EvidenceURLs:        in.EvidenceURLs,
		Status:              models.DisputeOpen,
		ResolutionOptions:   []models.ResolutionOption{},
		Timeline:            []models.TimelineEntry{timeline(now, in.Actor, "dispute_opened", string(in.DisputeType))},
		InternalNotes:       []models.InternalNote{},
	}

	w, err := s.wallets.GetWalletByOrder(ctx, o.ID)
	switch {
	case err == nil:
		t.WalletID = &w.ID
	case apperr.KindOf(err) != apperr.KindNotFound:
		return nil, err
	}

	if err := s.disputes.CreateDispute(ctx, t); err != nil {
		return nil, err
	}
	if t.WalletID != nil {
		s.setDisputeGate(ctx, *t.WalletID, false, in.Actor)
	}

	metrics.RecordDisputeTransition(string(t.Status))
	s.rec.auditLog(ctx, in.Actor, "dispute_opened", "dispute", t.ID, map[string]any{"ticket_number": t.TicketNumber, "order_id": o.ID.String()})
	s.published(ctx, t, "")
	orderID := o.ID
	s.rec.notify(ctx, Notification{
		Audience: AudienceAdmin,
		Title:    "New dispute " + t.TicketNumber,
		Message:  fmt.Sprintf("Order %s: %s", shortID(o.ID), t.DisputeType),
		Priority: PriorityHigh,
		OrderID:  &orderID,
	})
	return t, nil
}

// setDisputeGate keeps the wallet's dispute_resolved gate in step with the
// order's open tickets. Released or cancelled wallets are left alone.
func (s *DisputeService) setDisputeGate(ctx context.Context, walletID uuid.UUID, resolved bool, actor models.Actor) {
	_, err := s.wallets.UpdateReleaseCondition(ctx, walletID, models.ConditionDisputeResolved, resolved, actor)
	var locked *apperr.WalletLockedError
	if err != nil && !errors.As(err, &locked) {
		s.log.Warn("dispute gate not updated", zap.String("wallet_id", walletID.String()), zap.Bool("resolved", resolved), zap.Error(err))
	}
}

func (s *DisputeService) Get(ctx context.Context, id uuid.UUID) (*models.DisputeTicket, error) {
	return s.disputes.GetDispute(ctx, id)
}

func (s *DisputeService) GetByNumber(ctx context.Context, number string) (*models.DisputeTicket, error) {
	return s.disputes.GetDisputeByNumber(ctx, number)
}

func (s *DisputeService) stateError(t *models.DisputeTicket, op string) error {
	return &apperr.InvalidStateError{Entity: "dispute", ID: t.TicketNumber, Status: string(t.Status), Operation: op}
}

// transition appends the timeline entry and persists the ticket.
func (s *DisputeService) transition(ctx context.Context, t *models.DisputeTicket, to models.DisputeStatus, actor models.Actor, action, note string) error {
	if !models.IsValidDisputeTransition(t.Status, to) {
		return s.stateError(t, action)
	}
	from := t.Status
	t.Status = to
	t.Timeline = append(t.Timeline, timeline(s.now(), actor, action, note))
	if err := s.disputes.UpdateDispute(ctx, t); err != nil {
		return err
	}
	metrics.RecordDisputeTransition(string(to))
	s.rec.auditLog(ctx, actor, action, "dispute", t.ID, map[string]any{"old_status": string(from), "new_status": string(to)})
	s.published(ctx, t, from)
	return nil
}

func (s *DisputeService) published(ctx context.Context, t *models.DisputeTicket, from models.DisputeStatus) {
	s.rec.publish(ctx, events.EventDisputeStatusChanged, map[string]any{
		"dispute_id": t.ID.String(), "ticket_number": t.TicketNumber, "order_id": t.OrderID.String(),
		"old_status": string(from), "new_status": string(t.Status),
	})
}

// UpdateStatus handles transitions without a dedicated operation, which
// today means closing an open ticket.
func (s *DisputeService) UpdateStatus(ctx context.Context, id uuid.UUID, to models.DisputeStatus, note string, actor models.Actor) (*models.DisputeTicket, error) {
	switch to {
	case models.DisputeClosed:
	case models.DisputeResolutionProposed:
		return nil, apperr.Invalid("status", "propose a resolution option instead")
	case models.DisputeResolved:
		return nil, apperr.Invalid("status", "use resolve with a chosen option")
	case models.DisputeOpen:
		return nil, apperr.Invalid("status", "tickets cannot be reopened")
	default:
		return nil, apperr.Invalidf("status", "unknown status %q", to)
	}

	unlock := s.locks.Lock(id)
	defer unlock()
	t, err := s.disputes.GetDispute(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, t, to, actor, "dispute_closed", note); err != nil {
		return nil, err
	}
	s.reopenGateIfClear(ctx, t, actor)
	return t, nil
}

// AddResolutionOption proposes a remedy without applying it.
func (s *DisputeService) AddResolutionOption(ctx context.Context, id uuid.UUID, in ResolutionOptionInput, actor models.Actor) (*models.DisputeTicket, error) {
	v := &apperr.ValidationError{}
	if !models.IsValidResolutionType(in.Type) {
		v.Addf("type", "unknown resolution type %q", in.Type)
	}
	if in.Type == models.ResolutionRefundPartial && in.Amount <= 0 {
		v.Add("amount", "partial refund requires a positive amount")
	}
	if in.Amount < 0 {
		v.Add("amount", "must not be negative")
	}
	if strings.TrimSpace(in.Description) == "" {
		v.Add("description", "required")
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(id)
	defer unlock()
	t, err := s.disputes.GetDispute(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status.IsTerminal() {
		return nil, s.stateError(t, "add resolution option")
	}
	opt := models.ResolutionOption{
		ID:          uuid.New(),
		Type:        in.Type,
		Amount:      in.Amount,
		Description: in.Description,
		ProposedBy:  actor.Email,
		ProposedAt:  s.now(),
	}
	t.ResolutionOptions = append(t.ResolutionOptions, opt)
	if err := s.transition(ctx, t, models.DisputeResolutionProposed, actor, "resolution_proposed", fmt.Sprintf("%s: %s", opt.Type, opt.Description)); err != nil {
		return nil, err
	}
	orderID := t.OrderID
	s.rec.notify(ctx, Notification{
		Recipient: t.CustomerEmail,
		Audience:  AudienceCustomer,
		Title:     "Khiếu nại " + t.TicketNumber + " có phương án xử lý",
		Message:   opt.Description,
		Priority:  PriorityNormal,
		OrderID:   &orderID,
	})
	return t, nil
}

// Resolve applies one proposed option. Resolved tickets are terminal.
func (s *DisputeService) Resolve(ctx context.Context, id, optionID uuid.UUID, note string, actor models.Actor) (*models.DisputeTicket, error) {
	unlock := s.locks.Lock(id)
	defer unlock()
	t, err := s.disputes.GetDispute(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.IsValidDisputeTransition(t.Status, models.DisputeResolved) {
		return nil, s.stateError(t, "resolve")
	}
	opt, ok := t.Option(optionID)
	if !ok {
		return nil, apperr.Invalid("option_id", "not a proposed option of this ticket")
	}

	now := s.now()
	applied := &models.AppliedResolution{Option: opt, AppliedBy: actor.Email, AppliedAt: now, Note: note}
	if opt.Type.MovesMoney() {
		tx, err := s.refund(ctx, t, opt, actor)
		if err != nil {
			return nil, err
		}
		applied.TransactionID = &tx.ID
	}

	t.ResolutionApplied = applied
	t.ResolvedAt = &now
	if err := s.transition(ctx, t, models.DisputeResolved, actor, "dispute_resolved", fmt.Sprintf("%s: %s", opt.Type, note)); err != nil {
		return nil, err
	}
	s.reopenGateIfClear(ctx, t, actor)

	orderID := t.OrderID
	s.rec.notify(ctx, Notification{
		Recipient: t.CustomerEmail,
		Audience:  AudienceCustomer,
		Title:     "Khiếu nại " + t.TicketNumber + " đã được giải quyết",
		Message:   opt.Description,
		Priority:  PriorityNormal,
		OrderID:   &orderID,
	})
	return t, nil
}

func (s *DisputeService) refund(ctx context.Context, t *models.DisputeTicket, opt models.ResolutionOption, actor models.Actor) (*models.Transaction, error) {
	if t.WalletID == nil {
		return nil, s.stateError(t, "refund without an escrow wallet")
	}
	w, err := s.wallets.GetWallet(ctx, *t.WalletID)
	if err != nil {
		return nil, err
	}
	req := RefundRequest{
		WalletID:  w.ID,
		Reason:    fmt.Sprintf("dispute %s: %s", t.TicketNumber, opt.Type),
		Reference: "dispute:" + t.TicketNumber,
		Actor:     actor,
	}
	switch opt.Type {
	case models.ResolutionRefundFull:
		req.Amount, req.Type = w.TotalHeld, models.RefundFull
	case models.ResolutionRefundPartial:
		req.Amount, req.Type = opt.Amount, models.RefundPartial
		if opt.Amount == w.TotalHeld {
			req.Type = models.RefundFull
		}
	default:
		return nil, fmt.Errorf("resolution %s does not move money", opt.Type)
	}
	_, tx, err := s.wallets.Refund(ctx, req)
	return tx, err
}

// reopenGateIfClear marks the dispute gate resolved once the order has no
// open tickets left.
func (s *DisputeService) reopenGateIfClear(ctx context.Context, t *models.DisputeTicket, actor models.Actor) {
	if t.WalletID == nil {
		return
	}
	open, err := s.disputes.ListOpenDisputesByOrder(ctx, t.OrderID)
	if err != nil {
		s.log.Warn("list open disputes", zap.String("order_id", t.OrderID.String()), zap.Error(err))
		return
	}
	if len(open) == 0 {
		s.setDisputeGate(ctx, *t.WalletID, true, actor)
	}
}

// AddInternalNote never changes status; it is allowed on closed tickets too.
func (s *DisputeService) AddInternalNote(ctx context.Context, id uuid.UUID, note string, actor models.Actor) (*models.DisputeTicket, error) {
	if strings.TrimSpace(note) == "" {
		return nil, apperr.Invalid("note", "required")
	}
	unlock := s.locks.Lock(id)
	defer unlock()
	t, err := s.disputes.GetDispute(ctx, id)
	if err != nil {
		return nil, err
	}
	t.InternalNotes = append(t.InternalNotes, models.InternalNote{Author: actor.Email, Note: note, At: s.now()})
	if err := s.disputes.UpdateDispute(ctx, t); err != nil {
		return nil, err
	}
	s.rec.auditLog(ctx, actor, "dispute_note_added", "dispute", t.ID, nil)
	return t, nil
}
