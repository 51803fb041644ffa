package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/harvest-market/escrow/internal/apperr"
	"github.com/harvest-market/escrow/internal/events"
	"github.com/harvest-market/escrow/internal/models"
	"github.com/harvest-market/escrow/internal/policy"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func saveHighRisk(t *testing.T, env *testEnv, email string) {
	t.Helper()
	p := policy.NewRiskProfile(email)
	p.TotalOrders, p.CancelledOrders = 10, 9
	policy.Recalculate(p)
	require.Equal(t, models.RiskHigh, p.RiskLevel)
	require.NoError(t, env.store.SaveProfile(context.Background(), p))
}

func TestPlacePreorder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lot := env.seedLot(t, 14, 10)

	res, err := env.preorders.Place(ctx, PlaceOrderInput{
		CustomerEmail:     " Lan@Example.vn ",
		SellerEmail:       seller.Email,
		Items:             []PlaceItem{{LotID: &lot.ID, Quantity: 4}},
		DeviceFingerprint: "dev-1",
		ShippingAddress:   "12 Hàng Bạc, Hoàn Kiếm, Hà Nội",
		Actor:             customer,
	})
	require.NoError(t, err)
	require.True(t, res.Check.Passed)
	require.Equal(t, customer.Email, res.Order.CustomerEmail)
	require.EqualValues(t, 400000, res.Order.TotalAmount)
	require.EqualValues(t, 120000, res.Order.DepositAmount)
	require.Len(t, res.Quotes, 1)
	require.Equal(t, models.WalletPendingDeposit, res.Wallet.Status)

	got, err := env.store.GetLot(ctx, lot.ID)
	require.NoError(t, err)
	require.Equal(t, 6, got.AvailableQuantity)
	require.Equal(t, 4, got.SoldQuantity)

	p, err := env.risk.GetProfile(ctx, customer.Email)
	require.NoError(t, err)
	require.Equal(t, 1, p.TotalOrders)
	require.Equal(t, []string{"dev-1"}, p.DeviceFingerprints)
	require.Len(t, p.ShippingAddresses, 1)
}

func TestPlaceRollsBackReservations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	plenty := env.seedLot(t, 14, 10)
	scarce := env.seedLot(t, 14, 1)

	_, err := env.preorders.Place(ctx, PlaceOrderInput{
		CustomerEmail: customer.Email,
		Items: []PlaceItem{
			{LotID: &plenty.ID, Quantity: 3},
			{LotID: &scarce.ID, Quantity: 2},
		},
		Actor: customer,
	})
	require.Error(t, err)

	got, err := env.store.GetLot(ctx, plenty.ID)
	require.NoError(t, err)
	require.Equal(t, 10, got.AvailableQuantity)
	require.Equal(t, 0, got.SoldQuantity)
}

// brokenWallets refuses to open wallets and remembers which order asked.
type brokenWallets struct {
	WalletStore
	orderID uuid.UUID
}

func (b *brokenWallets) CreateWallet(_ context.Context, w *models.Wallet) error {
	b.orderID = w.OrderID
	return errors.New("connection reset")
}

func TestPlaceWalletFailureReleasesLots(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lot := env.seedLot(t, 14, 10)
	broken := &brokenWallets{WalletStore: env.store}
	env.preorders.wallets = NewWalletService(broken, env.store, events.NopPublisher{}, zap.NewNop())

	_, err := env.preorders.Place(ctx, PlaceOrderInput{
		CustomerEmail: customer.Email,
		Items:         []PlaceItem{{LotID: &lot.ID, Quantity: 4}},
		Actor:         customer,
	})
	require.ErrorContains(t, err, "open wallet")

	got, err := env.store.GetLot(ctx, lot.ID)
	require.NoError(t, err)
	require.Equal(t, 10, got.AvailableQuantity)
	require.Equal(t, 0, got.SoldQuantity)

	o, err := env.store.GetOrder(ctx, broken.orderID)
	require.NoError(t, err)
	require.Equal(t, models.OrderCancelled, o.Status)
	require.Equal(t, models.PaymentCancelled, o.PaymentStatus)
}

func TestPlaceRiskGate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lot := env.seedLot(t, 14, 100)

	saveHighRisk(t, env, customer.Email)
	res, err := env.preorders.Place(ctx, PlaceOrderInput{
		CustomerEmail: customer.Email,
		Items:         []PlaceItem{{LotID: &lot.ID, Quantity: 2}},
		Actor:         customer,
	})
	require.NoError(t, err)
	require.EqualValues(t, 200000, res.Order.DepositAmount, "full deposit is enforced")

	_, err = env.preorders.Place(ctx, PlaceOrderInput{
		CustomerEmail: customer.Email,
		Items:         []PlaceItem{{LotID: &lot.ID, Quantity: 11}},
		Actor:         customer,
	})
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	require.Equal(t, "risk", apperr.FieldsOf(err)[0].Field)

	_, err = env.risk.Blacklist(ctx, "khach@example.vn", "chargeback fraud", admin)
	require.NoError(t, err)
	_, err = env.preorders.Place(ctx, PlaceOrderInput{
		CustomerEmail: "khach@example.vn",
		Items:         []PlaceItem{{LotID: &lot.ID, Quantity: 1}},
		Actor:         customer,
	})
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCreateLotValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.preorders.CreateLot(context.Background(), CreateLotInput{BasePrice: -1, DepositPercent: 120}, seller)
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	require.Len(t, apperr.FieldsOf(err), 4)
}

func TestRecordHarvestConfirmsWallets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lot := env.seedLot(t, 0, 10)
	_, w := env.seedOrder(t, lot, 1, 100000)

	n, err := env.preorders.RecordHarvest(ctx, lot.ID, env.now, seller)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := env.wallets.GetWallet(ctx, w.ID)
	require.NoError(t, err)
	require.True(t, got.ReleaseConditions.HarvestConfirmed)
}

func TestRecordFulfilmentBounds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o, _ := env.seedOrder(t, env.seedLot(t, 0, 10), 5, 500000)

	err := env.preorders.RecordFulfilment(ctx, o.ID, o.Items[0].ID, 6, seller)
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	require.NoError(t, env.preorders.RecordFulfilment(ctx, o.ID, o.Items[0].ID, 5, seller))
}
