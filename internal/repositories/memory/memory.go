// Package memory is an in-process implementation of the service stores,
// used by tests and by escrowctl dry runs. Values are copied on the way in
// and out so callers never share state with the store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harvest-market/escrow/internal/apperr"
	"github.com/harvest-market/escrow/internal/models"
)

type Store struct {
	mu sync.Mutex

	wallets       map[uuid.UUID]*models.Wallet
	transactions  map[uuid.UUID][]models.Transaction
	orders        map[uuid.UUID]*models.Order
	lots          map[uuid.UUID]*models.Lot
	restored      map[uuid.UUID]bool
	cancellations map[uuid.UUID]*models.CancellationRecord
	compensations map[uuid.UUID]*models.CompensationRecord
	vouchers      map[uuid.UUID]*models.Voucher
	points        map[string]int64
	pointRefs     map[string]bool
	disputes      map[uuid.UUID]*models.DisputeTicket
	profiles      map[string]*models.CustomerRiskProfile
	audit         []models.AuditLog

	now func() time.Time
}

func New() *Store {
	return &Store{
		wallets:       map[uuid.UUID]*models.Wallet{},
		transactions:  map[uuid.UUID][]models.Transaction{},
		orders:        map[uuid.UUID]*models.Order{},
		lots:          map[uuid.UUID]*models.Lot{},
		restored:      map[uuid.UUID]bool{},
		cancellations: map[uuid.UUID]*models.CancellationRecord{},
		compensations: map[uuid.UUID]*models.CompensationRecord{},
		vouchers:      map[uuid.UUID]*models.Voucher{},
		points:        map[string]int64{},
		pointRefs:     map[string]bool{},
		disputes:      map[uuid.UUID]*models.DisputeTicket{},
		profiles:      map[string]*models.CustomerRiskProfile{},
		now:           time.Now,
	}
}

// --- Wallets ---

func (s *Store) CreateWallet(_ context.Context, w *models.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.wallets {
		if existing.OrderID == w.OrderID {
			return apperr.ErrDuplicate
		}
	}
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	w.CreatedAt = s.now()
	w.UpdatedAt = w.CreatedAt
	cp := *w
	s.wallets[w.ID] = &cp
	return nil
}

func (s *Store) GetWallet(_ context.Context, id uuid.UUID) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[id]
	if !ok {
		return nil, apperr.NotFound("wallet", id.String())
	}
	cp := *w
	return &cp, nil
}

func (s *Store) GetWalletByOrder(_ context.Context, orderID uuid.UUID) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.wallets {
		if w.OrderID == orderID {
			cp := *w
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("wallet", "order "+orderID.String())
}

func (s *Store) SaveWallet(_ context.Context, w *models.Wallet, txs []models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.wallets[w.ID]
	if !ok {
		return apperr.NotFound("wallet", w.ID.String())
	}
	if stored.Version != w.Version {
		return apperr.ErrConcurrentUpdate
	}
	log := s.transactions[w.ID]
	for i := range txs {
		if txs[i].Reference != "" {
			for _, t := range log {
				if t.Reference == txs[i].Reference {
					return apperr.ErrDuplicate
				}
			}
		}
	}
	now := s.now()
	for i := range txs {
		if txs[i].ID == uuid.Nil {
			txs[i].ID = uuid.New()
		}
		txs[i].Sequence = int64(len(log) + 1)
		txs[i].CreatedAt = now
		log = append(log, txs[i])
	}
	s.transactions[w.ID] = log
	w.Version++
	w.UpdatedAt = now
	cp := *w
	s.wallets[w.ID] = &cp
	return nil
}

func (s *Store) ListTransactions(_ context.Context, walletID uuid.UUID) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Transaction, len(s.transactions[walletID]))
	copy(out, s.transactions[walletID])
	return out, nil
}

func (s *Store) FindTransactionByReference(_ context.Context, walletID uuid.UUID, reference string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.transactions[walletID] {
		if t.Reference == reference {
			cp := t
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("transaction", reference)
}

func (s *Store) ListWalletsByStatus(_ context.Context, statuses []models.WalletStatus, after models.PageCursor, limit int) ([]models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := map[models.WalletStatus]bool{}
	for _, st := range statuses {
		want[st] = true
	}
	var out []models.Wallet
	for _, w := range s.wallets {
		if want[w.Status] && after.Precedes(w.CreatedAt, w.ID) {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return models.KeysetLess(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- Orders ---

func cloneOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Items = make([]models.OrderItem, len(o.Items))
	for i, it := range o.Items {
		if it.FulfilledQuantity != nil {
			q := *it.FulfilledQuantity
			it.FulfilledQuantity = &q
		}
		cp.Items[i] = it
	}
	return &cp
}

func (s *Store) CreateOrder(_ context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	for i := range o.Items {
		if o.Items[i].ID == uuid.Nil {
			o.Items[i].ID = uuid.New()
		}
		o.Items[i].OrderID = o.ID
	}
	o.CreatedAt = s.now()
	o.UpdatedAt = o.CreatedAt
	s.orders[o.ID] = cloneOrder(o)
	return nil
}

func (s *Store) GetOrder(_ context.Context, id uuid.UUID) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, apperr.NotFound("order", id.String())
	}
	return cloneOrder(o), nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, id uuid.UUID, status models.OrderStatus, payment models.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return apperr.NotFound("order", id.String())
	}
	o.Status = status
	o.PaymentStatus = payment
	o.UpdatedAt = s.now()
	return nil
}

func (s *Store) MarkDelivered(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return apperr.NotFound("order", id.String())
	}
	o.Status = models.OrderDelivered
	o.DeliveredAt = &at
	o.UpdatedAt = s.now()
	return nil
}

func (s *Store) SetFulfilledQuantity(_ context.Context, orderID, itemID uuid.UUID, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return apperr.NotFound("order", orderID.String())
	}
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			q := qty
			o.Items[i].FulfilledQuantity = &q
			return nil
		}
	}
	return apperr.NotFound("order item", itemID.String())
}

func (s *Store) ListActivePreorders(_ context.Context, after models.PageCursor, limit int) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, o := range s.orders {
		switch o.Status {
		case models.OrderCancelled, models.OrderReturnedRefunded, models.OrderDelivered:
			continue
		}
		if o.DeliveredAt != nil || len(o.PreorderItems()) == 0 || !after.Precedes(o.CreatedAt, o.ID) {
			continue
		}
		out = append(out, *cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool {
		return models.KeysetLess(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- Lots ---

func cloneLot(l *models.Lot) *models.Lot {
	cp := *l
	cp.PriceCurve = append([]models.PricePoint(nil), l.PriceCurve...)
	if l.ActualHarvestDate != nil {
		d := *l.ActualHarvestDate
		cp.ActualHarvestDate = &d
	}
	return &cp
}

func (s *Store) CreateLot(_ context.Context, l *models.Lot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	l.UpdatedAt = s.now()
	s.lots[l.ID] = cloneLot(l)
	return nil
}

func (s *Store) GetLot(_ context.Context, id uuid.UUID) (*models.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lots[id]
	if !ok {
		return nil, apperr.NotFound("lot", id.String())
	}
	return cloneLot(l), nil
}

func (s *Store) GetLots(_ context.Context, ids []uuid.UUID) ([]models.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Lot, 0, len(ids))
	for _, id := range ids {
		l, ok := s.lots[id]
		if !ok {
			return nil, apperr.NotFound("lot", id.String())
		}
		out = append(out, *cloneLot(l))
	}
	return out, nil
}

func (s *Store) ReserveLot(_ context.Context, id uuid.UUID, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lots[id]
	if !ok {
		return apperr.NotFound("lot", id.String())
	}
	if l.AvailableQuantity < qty {
		return apperr.ErrInsufficientInventory
	}
	l.AvailableQuantity -= qty
	l.SoldQuantity += qty
	l.UpdatedAt = s.now()
	return nil
}

func (s *Store) RestoreLot(_ context.Context, id, itemID uuid.UUID, qty int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lots[id]
	if !ok {
		return false, apperr.NotFound("lot", id.String())
	}
	if s.restored[itemID] {
		return false, nil
	}
	s.restored[itemID] = true
	l.AvailableQuantity += qty
	l.SoldQuantity -= qty
	if l.SoldQuantity < 0 {
		l.SoldQuantity = 0
	}
	l.UpdatedAt = s.now()
	return true, nil
}

func (s *Store) RecordHarvest(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lots[id]
	if !ok {
		return apperr.NotFound("lot", id.String())
	}
	l.ActualHarvestDate = &at
	l.UpdatedAt = s.now()
	return nil
}

// --- Cancellations ---

func cloneCancellation(c *models.CancellationRecord) *models.CancellationRecord {
	cp := *c
	cp.CancellationReasons = append([]models.CancelReason(nil), c.CancellationReasons...)
	cp.RestoredItemIDs = append([]uuid.UUID(nil), c.RestoredItemIDs...)
	cp.Timeline = append([]models.TimelineEntry(nil), c.Timeline...)
	return &cp
}

func (s *Store) CreateCancellation(_ context.Context, c *models.CancellationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.cancellations {
		if existing.OrderID == c.OrderID {
			return apperr.ErrDuplicate
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = s.now()
	c.UpdatedAt = c.CreatedAt
	s.cancellations[c.ID] = cloneCancellation(c)
	return nil
}

func (s *Store) GetCancellation(_ context.Context, id uuid.UUID) (*models.CancellationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cancellations[id]
	if !ok {
		return nil, apperr.NotFound("cancellation", id.String())
	}
	return cloneCancellation(c), nil
}

func (s *Store) GetCancellationByOrder(_ context.Context, orderID uuid.UUID) (*models.CancellationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.cancellations {
		if c.OrderID == orderID {
			return cloneCancellation(c), nil
		}
	}
	return nil, apperr.NotFound("cancellation", "order "+orderID.String())
}

func (s *Store) UpdateCancellation(_ context.Context, c *models.CancellationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.cancellations[c.ID]
	if !ok {
		return apperr.NotFound("cancellation", c.ID.String())
	}
	if stored.Version != c.Version {
		return apperr.ErrConcurrentUpdate
	}
	c.Version++
	c.UpdatedAt = s.now()
	s.cancellations[c.ID] = cloneCancellation(c)
	return nil
}

// --- Compensations ---

func (s *Store) CreateCompensation(_ context.Context, c *models.CompensationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.compensations {
		if existing.OrderID == c.OrderID && existing.TriggerType == c.TriggerType && existing.RuleID == c.RuleID {
			return apperr.ErrDuplicate
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = s.now()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	s.compensations[c.ID] = &cp
	return nil
}

func (s *Store) GetCompensation(_ context.Context, id uuid.UUID) (*models.CompensationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.compensations[id]
	if !ok {
		return nil, apperr.NotFound("compensation", id.String())
	}
	cp := *c
	return &cp, nil
}

func (s *Store) ListCompensationsByOrder(_ context.Context, orderID uuid.UUID) ([]models.CompensationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CompensationRecord
	for _, c := range s.compensations {
		if c.OrderID == orderID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListCompensationsByStatus(_ context.Context, status models.CompensationStatus, limit int) ([]models.CompensationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CompensationRecord
	for _, c := range s.compensations {
		if c.Status == status {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UpdateCompensation(_ context.Context, c *models.CompensationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.compensations[c.ID]
	if !ok {
		return apperr.NotFound("compensation", c.ID.String())
	}
	if stored.Version != c.Version {
		return apperr.ErrConcurrentUpdate
	}
	c.Version++
	c.UpdatedAt = s.now()
	cp := *c
	s.compensations[c.ID] = &cp
	return nil
}

// --- Loyalty ---

func (s *Store) CreateVoucher(_ context.Context, v *models.Voucher) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.vouchers {
		if existing.Code == v.Code || existing.CompensationID == v.CompensationID {
			return apperr.ErrDuplicate
		}
	}
	v.CreatedAt = s.now()
	cp := *v
	s.vouchers[v.CompensationID] = &cp
	return nil
}

func (s *Store) GetVoucherByCompensation(_ context.Context, compensationID uuid.UUID) (*models.Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vouchers[compensationID]
	if !ok {
		return nil, apperr.NotFound("voucher", compensationID.String())
	}
	cp := *v
	return &cp, nil
}

func (s *Store) CreditPoints(_ context.Context, email string, points int64, reference string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pointRefs[reference] {
		s.pointRefs[reference] = true
		s.points[email] += points
	}
	return s.points[email], nil
}

func (s *Store) PointsBalance(_ context.Context, email string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.points[email], nil
}

// --- Disputes ---

func cloneDispute(t *models.DisputeTicket) *models.DisputeTicket {
	cp := *t
	cp.EvidenceURLs = append([]string(nil), t.EvidenceURLs...)
	cp.ResolutionOptions = append([]models.ResolutionOption(nil), t.ResolutionOptions...)
	cp.Timeline = append([]models.TimelineEntry(nil), t.Timeline...)
	cp.InternalNotes = append([]models.InternalNote(nil), t.InternalNotes...)
	if t.ResolutionApplied != nil {
		r := *t.ResolutionApplied
		cp.ResolutionApplied = &r
	}
	return &cp
}

func (s *Store) CreateDispute(_ context.Context, t *models.DisputeTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.disputes {
		if existing.TicketNumber == t.TicketNumber {
			return apperr.ErrDuplicate
		}
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = s.now()
	t.UpdatedAt = t.CreatedAt
	s.disputes[t.ID] = cloneDispute(t)
	return nil
}

func (s *Store) GetDispute(_ context.Context, id uuid.UUID) (*models.DisputeTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.disputes[id]
	if !ok {
		return nil, apperr.NotFound("dispute", id.String())
	}
	return cloneDispute(t), nil
}

func (s *Store) GetDisputeByNumber(_ context.Context, number string) (*models.DisputeTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.disputes {
		if t.TicketNumber == number {
			return cloneDispute(t), nil
		}
	}
	return nil, apperr.NotFound("dispute", number)
}

func (s *Store) ListOpenDisputesByOrder(_ context.Context, orderID uuid.UUID) ([]models.DisputeTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DisputeTicket
	for _, t := range s.disputes {
		if t.OrderID == orderID && !t.Status.IsTerminal() {
			out = append(out, *cloneDispute(t))
		}
	}
	return out, nil
}

func (s *Store) UpdateDispute(_ context.Context, t *models.DisputeTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.disputes[t.ID]
	if !ok {
		return apperr.NotFound("dispute", t.ID.String())
	}
	if stored.Version != t.Version {
		return apperr.ErrConcurrentUpdate
	}
	t.Version++
	t.UpdatedAt = s.now()
	s.disputes[t.ID] = cloneDispute(t)
	return nil
}

// --- Risk ---

func cloneProfile(p *models.CustomerRiskProfile) *models.CustomerRiskProfile {
	cp := *p
	cp.DeviceFingerprints = append([]string(nil), p.DeviceFingerprints...)
	cp.ShippingAddresses = append([]string(nil), p.ShippingAddresses...)
	cp.Restrictions = append([]models.Restriction(nil), p.Restrictions...)
	return &cp
}

func (s *Store) GetProfile(_ context.Context, email string) (*models.CustomerRiskProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[email]
	if !ok {
		return nil, apperr.NotFound("risk profile", email)
	}
	return cloneProfile(p), nil
}

func (s *Store) SaveProfile(_ context.Context, p *models.CustomerRiskProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if stored, ok := s.profiles[p.CustomerEmail]; ok {
		if stored.Version != p.Version {
			return apperr.ErrConcurrentUpdate
		}
	} else {
		p.CreatedAt = now
	}
	p.Version++
	p.UpdatedAt = now
	s.profiles[p.CustomerEmail] = cloneProfile(p)
	return nil
}

// --- Audit ---

func (s *Store) Log(_ context.Context, entry models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = s.now()
	s.audit = append(s.audit, entry)
	return nil
}

// AuditEntries returns a copy of the audit trail in write order.
func (s *Store) AuditEntries() []models.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AuditLog(nil), s.audit...)
}

// GetByEntity pages the trail for one entity, newest first.
func (s *Store) GetByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	return s.Search(ctx, models.AuditQuery{EntityType: entityType, EntityID: &entityID, Limit: limit, Offset: offset})
}

// Search pages the trail matching q, newest first.
func (s *Store) Search(_ context.Context, q models.AuditQuery) ([]models.AuditLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit, offset := q.Limit, q.Offset
	if limit <= 0 {
		limit = 50
	}
	var out []models.AuditLog
	for i := len(s.audit) - 1; i >= 0; i-- {
		e := s.audit[i]
		if !q.Matches(e) {
			continue
		}
		if offset > 0 {
			offset--
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
