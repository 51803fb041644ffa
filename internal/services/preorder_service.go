package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harvest-market/escrow/internal/apperr"
	"github.com/harvest-market/escrow/internal/events"
	"github.com/harvest-market/escrow/internal/models"
	"github.com/harvest-market/escrow/internal/policy"
	"go.uber.org/zap"
)

type PreorderService struct {
	lots           LotStore
	orders         OrderStore
	wallets        *WalletService
	risk           *RiskService
	rec            recorder
	depositPercent int
	pageSize       int
	log            *zap.Logger
	now            func() time.Time
}

func NewPreorderService(
	lots LotStore,
	orders OrderStore,
	wallets *WalletService,
	risk *RiskService,
	audit AuditStore,
	publisher events.Publisher,
	defaultDepositPercent int,
	log *zap.Logger,
) *PreorderService {
	return &PreorderService{
		lots:           lots,
		orders:         orders,
		wallets:        wallets,
		risk:           risk,
		rec:            recorder{audit: audit, publisher: publisher, log: log},
		depositPercent: defaultDepositPercent,
		pageSize:       defaultPageSize,
		log:            log,
		now:            time.Now,
	}
}

type CreateLotInput struct {
	ProductName          string
	EstimatedHarvestDate time.Time
	BasePrice            int64
	PriceCurve           []models.PricePoint
	DepositPercent       int
	AvailableQuantity    int
}

func (s *PreorderService) CreateLot(ctx context.Context, in CreateLotInput, actor models.Actor) (*models.Lot, error) {
	if in.DepositPercent == 0 {
		in.DepositPercent = s.depositPercent
	}
	v := &apperr.ValidationError{}
	if strings.TrimSpace(in.ProductName) == "" {
		v.Add("product_name", "required")
	}
	if in.EstimatedHarvestDate.IsZero() {
		v.Add("estimated_harvest_date", "required")
	}
	if in.BasePrice <= 0 {
		v.Add("base_price", "must be positive")
	}
	if in.DepositPercent <= 0 || in.DepositPercent > 100 {
		v.Add("deposit_percent", "must be between 1 and 100")
	}
	if in.AvailableQuantity < 0 {
		v.Add("available_quantity", "must not be negative")
	}
	for i, p := range in.PriceCurve {
		if p.MinSold < 0 || p.UnitPrice <= 0 {
			v.Add(fmt.Sprintf("price_curve[%d]", i), "min_sold must be >= 0 and unit_price positive")
		}
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	l := &models.Lot{
		ID:                   uuid.New(),
		ProductName:          strings.TrimSpace(in.ProductName),
		EstimatedHarvestDate: in.EstimatedHarvestDate,
		BasePrice:            in.BasePrice,
		PriceCurve:           in.PriceCurve,
		DepositPercent:       in.DepositPercent,
		AvailableQuantity:    in.AvailableQuantity,
	}
	if err := s.lots.CreateLot(ctx, l); err != nil {
		return nil, fmt.Errorf("create lot: %w", err)
	}
	s.rec.auditLog(ctx, actor, "lot_created", "lot", l.ID, map[string]any{"product": l.ProductName, "available": l.AvailableQuantity})
	return l, nil
}

func (s *PreorderService) GetLot(ctx context.Context, id uuid.UUID) (*models.Lot, error) {
	return s.lots.GetLot(ctx, id)
}

// Quote prices a pre-order line at the lot's current curve step.
func (s *PreorderService) Quote(ctx context.Context, lotID uuid.UUID, quantity, depositPercent int) (*policy.PreorderQuote, error) {
	lot, err := s.lots.GetLot(ctx, lotID)
	if err != nil {
		return nil, err
	}
	return policy.QuotePreorder(*lot, quantity, depositPercent)
}

type PlaceItem struct {
	LotID       *uuid.UUID
	ProductName string
	Quantity    int
	UnitPrice   int64 // in-stock lines only; pre-order lines are priced from the lot
}

type PlaceOrderInput struct {
	CustomerEmail     string
	SellerEmail       string
	Items             []PlaceItem
	DepositPercent    int
	DeviceFingerprint string
	ShippingAddress   string
	Actor             models.Actor
}

type PlaceResult struct {
	Order  *models.Order          `json:"order"`
	Wallet *models.Wallet         `json:"wallet"`
	Quotes []policy.PreorderQuote `json:"quotes"`
	Check  models.OrderCheck      `json:"risk_check"`
}

// Place risk-checks the order, reserves every pre-order line, records the
// order and opens its wallet. A failed reservation releases the lines
// already reserved.
func (s *PreorderService) Place(ctx context.Context, in PlaceOrderInput) (*PlaceResult, error) {
	email := normalizeEmail(in.CustomerEmail)
	v := &apperr.ValidationError{}
	if email == "" {
		v.Add("customer_email", "required")
	}
	if len(in.Items) == 0 {
		v.Add("items", "at least one item is required")
	}
	preorderQty := 0
	for i, it := range in.Items {
		if it.Quantity <= 0 {
			v.Add(fmt.Sprintf("items[%d].quantity", i), "must be positive")
		}
		if it.LotID == nil && it.UnitPrice <= 0 {
			v.Add(fmt.Sprintf("items[%d].unit_price", i), "required for in-stock items")
		}
		if it.LotID != nil {
			preorderQty += it.Quantity
		}
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	profile, err := s.risk.GetProfile(ctx, email)
	if err != nil {
		return nil, err
	}
	depositPercent := in.DepositPercent
	if preorderQty > 0 && profile.HasRestriction(models.RestrictFullDeposit) {
		depositPercent = 100
	}
	check, err := s.risk.ValidateOrder(ctx, email, policy.OrderRequest{PreorderQuantity: preorderQty, DepositPercent: effectiveDeposit(depositPercent, s.depositPercent)})
	if err != nil {
		return nil, err
	}
	if !check.Passed {
		rej := &apperr.ValidationError{}
		for _, r := range check.Reasons {
			rej.Add("risk", r)
		}
		return nil, rej
	}

	o := &models.Order{
		ID:                uuid.New(),
		CustomerEmail:     email,
		SellerEmail:       normalizeEmail(in.SellerEmail),
		Status:            models.OrderPending,
		PaymentStatus:     models.PaymentUnpaid,
		DeviceFingerprint: in.DeviceFingerprint,
		ShippingAddress:   in.ShippingAddress,
	}
	var (
		quotes   []policy.PreorderQuote
		reserved []models.OrderItem
	)
	rollback := func() {
		for _, it := range reserved {
			if _, err := s.lots.RestoreLot(ctx, *it.LotID, it.ID, it.Quantity); err != nil {
				s.log.Error("release reserved lot", zap.String("lot_id", it.LotID.String()), zap.Int("qty", it.Quantity), zap.Error(err))
			}
		}
	}

	for i, it := range in.Items {
		item := models.OrderItem{ID: uuid.New(), OrderID: o.ID, ProductName: it.ProductName, Quantity: it.Quantity, UnitPrice: it.UnitPrice}
		if it.LotID == nil {
			o.TotalAmount += it.UnitPrice * int64(it.Quantity)
			o.DepositAmount += it.UnitPrice * int64(it.Quantity)
			o.Items = append(o.Items, item)
			continue
		}
		lot, err := s.lots.GetLot(ctx, *it.LotID)
		if err != nil {
			rollback()
			return nil, err
		}
		q, err := policy.QuotePreorder(*lot, it.Quantity, effectiveDeposit(depositPercent, lot.DepositPercent))
		if err != nil {
			rollback()
			return nil, fmt.Errorf("items[%d]: %w", i, err)
		}
		if err := s.lots.ReserveLot(ctx, lot.ID, it.Quantity); err != nil {
			rollback()
			return nil, fmt.Errorf("reserve lot %s: %w", lot.ID, err)
		}
		quotes = append(quotes, *q)

		lotID := lot.ID
		item.LotID = &lotID
		item.IsPreorder = true
		reserved = append(reserved, item)
		item.UnitPrice = q.UnitPrice
		if item.ProductName == "" {
			item.ProductName = lot.ProductName
		}
		o.TotalAmount += q.Subtotal
		o.DepositAmount += q.Deposit
		o.Items = append(o.Items, item)
	}

	if err := s.orders.CreateOrder(ctx, o); err != nil {
		rollback()
		return nil, fmt.Errorf("create order: %w", err)
	}
	w, err := s.wallets.OpenWallet(ctx, o.ID, o.CustomerEmail)
	if err != nil {
		rollback()
		if uerr := s.orders.UpdateOrderStatus(ctx, o.ID, models.OrderCancelled, models.PaymentCancelled); uerr != nil {
			s.log.Error("cancel order without wallet", zap.String("order_id", o.ID.String()), zap.Error(uerr))
		}
		return nil, fmt.Errorf("open wallet: %w", err)
	}
	if _, err := s.risk.RecordOrder(ctx, email, in.DeviceFingerprint, in.ShippingAddress); err != nil {
		s.log.Warn("risk profile not updated", zap.String("customer", email), zap.Error(err))
	}

	s.log.Info("order placed",
		zap.String("order_id", o.ID.String()),
		zap.Int64("total", o.TotalAmount),
		zap.Int64("deposit", o.DepositAmount),
	)
	s.rec.auditLog(ctx, in.Actor, "order_placed", "order", o.ID, map[string]any{"total": o.TotalAmount, "deposit": o.DepositAmount})
	return &PlaceResult{Order: o, Wallet: w, Quotes: quotes, Check: check}, nil
}

func effectiveDeposit(requested, fallback int) int {
	if requested > 0 {
		return requested
	}
	return fallback
}

// RecordHarvest stamps the lot's actual harvest date and flips
// harvest_confirmed on active orders whose pre-order lots are all harvested.
func (s *PreorderService) RecordHarvest(ctx context.Context, lotID uuid.UUID, at time.Time, actor models.Actor) (int, error) {
	if at.IsZero() {
		at = s.now()
	}
	if err := s.lots.RecordHarvest(ctx, lotID, at); err != nil {
		return 0, err
	}
	s.rec.auditLog(ctx, actor, "lot_harvested", "lot", lotID, map[string]any{"at": at})

	confirmed := 0
	err := eachActivePreorder(ctx, s.orders, s.pageSize, func(o *models.Order) error {
		if !orderUsesLot(o, lotID) {
			return nil
		}
		ready, err := s.allHarvested(ctx, o)
		if err != nil || !ready {
			return nil
		}
		w, err := s.wallets.GetWalletByOrder(ctx, o.ID)
		if err != nil {
			return nil
		}
		if _, err := s.wallets.UpdateReleaseCondition(ctx, w.ID, models.ConditionHarvestConfirmed, true, actor); err != nil {
			s.log.Warn("harvest condition not set", zap.String("order_id", o.ID.String()), zap.Error(err))
			return nil
		}
		confirmed++
		return nil
	})
	return confirmed, err
}

func orderUsesLot(o *models.Order, lotID uuid.UUID) bool {
	for _, it := range o.PreorderItems() {
		if *it.LotID == lotID {
			return true
		}
	}
	return false
}

func (s *PreorderService) allHarvested(ctx context.Context, o *models.Order) (bool, error) {
	var ids []uuid.UUID
	for _, it := range o.PreorderItems() {
		ids = append(ids, *it.LotID)
	}
	lots, err := s.lots.GetLots(ctx, ids)
	if err != nil {
		return false, err
	}
	for _, l := range lots {
		if l.ActualHarvestDate == nil {
			return false, nil
		}
	}
	return true, nil
}

// RecordFulfilment stores how many units of a pre-order line the harvest
// actually covered. Shortage detection reads it.
func (s *PreorderService) RecordFulfilment(ctx context.Context, orderID, itemID uuid.UUID, qty int, actor models.Actor) error {
	o, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	var item *models.OrderItem
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			item = &o.Items[i]
		}
	}
	if item == nil {
		return apperr.NotFound("order item", itemID.String())
	}
	if !item.IsPreorder {
		return apperr.Invalid("item_id", "not a pre-order line")
	}
	if qty < 0 || qty > item.Quantity {
		return apperr.Invalidf("fulfilled_quantity", "must be between 0 and %d", item.Quantity)
	}
	if err := s.orders.SetFulfilledQuantity(ctx, orderID, itemID, qty); err != nil {
		return err
	}
	s.rec.auditLog(ctx, actor, "fulfilment_recorded", "order", orderID, map[string]any{"item_id": itemID.String(), "fulfilled": qty, "ordered": item.Quantity})
	return nil
}
