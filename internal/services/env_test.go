package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harvest-market/escrow/internal/events"
	"github.com/harvest-market/escrow/internal/models"
	"github.com/harvest-market/escrow/internal/policy"
	"github.com/harvest-market/escrow/internal/repositories/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var ict = time.FixedZone("ICT", 7*3600)

var (
	customer = models.Actor{Email: "lan@example.vn", Type: models.ActorTypeCustomer}
	seller   = models.Actor{Email: "farm@example.vn", Type: models.ActorTypeSeller}
	admin    = models.Actor{Email: "ops@example.vn", Type: models.ActorTypeAdmin}
)

type captureNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (c *captureNotifier) Notify(_ context.Context, n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
}

func (c *captureNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type testEnv struct {
	store         *memory.Store
	notifier      *captureNotifier
	now           time.Time
	wallets       *WalletService
	risk          *RiskService
	cancellations *CancellationService
	compensations *CompensationService
	disputes      *DisputeService
	preorders     *PreorderService
	settlement    *SettlementService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zap.NewNop()
	store := memory.New()
	pub := events.NopPublisher{}
	n := &captureNotifier{}
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, ict)
	clock := func() time.Time { return now }

	env := &testEnv{store: store, notifier: n, now: now}
	env.wallets = NewWalletService(store, store, pub, log)
	env.wallets.now = clock
	env.risk = NewRiskService(store, store, pub, policy.DefaultRestrictedMaxQuantity, log)
	env.risk.now = clock
	env.cancellations = NewCancellationService(store, store, store, env.wallets, env.risk, store, pub, n, policy.DefaultRefundPolicy(), 3, ict, log)
	env.cancellations.now = clock
	env.compensations = NewCompensationService(store, store, store, store, env.wallets, store, pub, n, nil, 30, ict, log)
	env.compensations.now = clock
	env.disputes = NewDisputeService(store, store, env.wallets, store, pub, n, log)
	env.disputes.now = clock
	env.preorders = NewPreorderService(store, store, env.wallets, env.risk, store, pub, 30, log)
	env.preorders.now = clock
	env.settlement = NewSettlementService(store, store, env.wallets, env.risk, store, pub, n, 3, 72*time.Hour, log)
	env.settlement.now = clock
	return env
}

// seedLot creates a lot whose estimated harvest is harvestIn days from now.
func (e *testEnv) seedLot(t *testing.T, harvestIn, available int) *models.Lot {
	t.Helper()
	l := &models.Lot{
		ID:                   uuid.New(),
		ProductName:          "Vải thiều Lục Ngạn",
		EstimatedHarvestDate: e.now.AddDate(0, 0, harvestIn),
		BasePrice:            100000,
		DepositPercent:       30,
		AvailableQuantity:    available,
	}
	require.NoError(t, e.store.CreateLot(context.Background(), l))
	return l
}

// seedOrder creates a pending pre-order of qty units against lot with an
// open wallet for it.
func (e *testEnv) seedOrder(t *testing.T, lot *models.Lot, qty int, total int64) (*models.Order, *models.Wallet) {
	t.Helper()
	ctx := context.Background()
	lotID := lot.ID
	o := &models.Order{
		ID:            uuid.New(),
		CustomerEmail: customer.Email,
		SellerEmail:   seller.Email,
		Status:        models.OrderPending,
		PaymentStatus: models.PaymentUnpaid,
		TotalAmount:   total,
		Items: []models.OrderItem{{
			ID: uuid.New(), LotID: &lotID, ProductName: lot.ProductName,
			IsPreorder: true, Quantity: qty, UnitPrice: total / int64(qty),
		}},
	}
	o.Items[0].OrderID = o.ID
	require.NoError(t, e.store.CreateOrder(ctx, o))
	require.NoError(t, e.store.ReserveLot(ctx, lot.ID, qty))
	w, err := e.wallets.OpenWallet(ctx, o.ID, o.CustomerEmail)
	require.NoError(t, err)
	return o, w
}
