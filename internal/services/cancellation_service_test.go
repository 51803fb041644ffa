package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/harvest-market/escrow/internal/apperr"
	"github.com/harvest-market/escrow/internal/models"
	"github.com/stretchr/testify/require"
)

func TestCancellationTierTwoRefund(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lot := env.seedLot(t, 5, 100)
	o, w := env.seedOrder(t, lot, 10, 3000000)
	_, err := env.wallets.HoldDeposit(ctx, w.ID, 1000000, "pay-1", customer)
	require.NoError(t, err)

	preview, err := env.cancellations.Preview(ctx, o.ID, []models.CancelReason{models.CancelChangedMind})
	require.NoError(t, err)
	require.Equal(t, 5, preview.DaysBeforeHarvest)
	require.Equal(t, models.Tier2, preview.Quote.Tier)

	rec, err := env.cancellations.RequestCancellation(ctx, CancelRequest{
		OrderID: o.ID, Reasons: []models.CancelReason{models.CancelChangedMind}, Actor: customer,
	})
	require.NoError(t, err)
	require.Equal(t, models.Tier2, rec.PolicyTier)
	require.EqualValues(t, 800000, rec.RefundAmount)
	require.EqualValues(t, 200000, rec.PenaltyAmount)
	require.Equal(t, models.RefundStatusPending, rec.RefundStatus)
	require.True(t, rec.InventoryRestored)

	gotLot, err := env.store.GetLot(ctx, lot.ID)
	require.NoError(t, err)
	require.Equal(t, 100, gotLot.AvailableQuantity)

	gotOrder, err := env.store.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderCancelled, gotOrder.Status)
	require.Equal(t, models.PaymentRefundPending, gotOrder.PaymentStatus)

	// wallet untouched until the refund is processed
	got, err := env.wallets.GetWallet(ctx, w.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1000000, got.TotalHeld)

	rec, err = env.cancellations.ProcessRefund(ctx, rec.ID, admin)
	require.NoError(t, err)
	require.Equal(t, models.RefundStatusCompleted, rec.RefundStatus)
	require.NotNil(t, rec.RefundTransactionID)

	// the penalty leaves escrow to the seller once the refund is out
	got, err = env.wallets.GetWallet(ctx, w.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, got.TotalHeld)
	require.Equal(t, models.WalletReleasedToSeller, got.Status)
	require.EqualValues(t, 6000, got.PlatformCommission)
	require.EqualValues(t, 194000, got.SellerPayoutAmount)
	require.Equal(t, "penalty_settled", rec.Timeline[len(rec.Timeline)-1].Action)

	// a second call does not move money again
	again, err := env.cancellations.ProcessRefund(ctx, rec.ID, admin)
	require.NoError(t, err)
	require.Equal(t, *rec.RefundTransactionID, *again.RefundTransactionID)
	txs, err := env.wallets.ListTransactions(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, txs, 4)
	require.True(t, ReconcileLedger(got, txs).Consistent)

	profile, err := env.risk.GetProfile(ctx, customer.Email)
	require.NoError(t, err)
	require.Equal(t, 1, profile.CancelledOrders)
}

func TestCancellationRepeatIsResumed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lot := env.seedLot(t, 10, 50)
	o, w := env.seedOrder(t, lot, 5, 500000)
	_, err := env.wallets.HoldDeposit(ctx, w.ID, 150000, "", customer)
	require.NoError(t, err)

	req := CancelRequest{OrderID: o.ID, Reasons: []models.CancelReason{models.CancelFoundBetterPrice}, Actor: customer}
	first, err := env.cancellations.RequestCancellation(ctx, req)
	require.NoError(t, err)
	require.Equal(t, models.Tier1, first.PolicyTier)
	require.EqualValues(t, 150000, first.RefundAmount)

	second, err := env.cancellations.RequestCancellation(ctx, req)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	gotLot, err := env.store.GetLot(ctx, lot.ID)
	require.NoError(t, err)
	require.Equal(t, 50, gotLot.AvailableQuantity, "inventory restored exactly once")

	rec, err := env.cancellations.ProcessRefund(ctx, first.ID, admin)
	require.NoError(t, err)
	got, err := env.wallets.GetWallet(ctx, *rec.WalletID)
	require.NoError(t, err)
	require.Equal(t, models.WalletRefunded, got.Status)
	require.EqualValues(t, 0, got.TotalHeld)
}

func TestCancellationUnfundedWalletIsCancelled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o, w := env.seedOrder(t, env.seedLot(t, 10, 50), 5, 500000)

	rec, err := env.cancellations.RequestCancellation(ctx, CancelRequest{
		OrderID: o.ID, Reasons: []models.CancelReason{models.CancelOrderedByMistake}, Actor: customer,
	})
	require.NoError(t, err)
	require.Equal(t, models.RefundStatusNotRequired, rec.RefundStatus)

	got, err := env.wallets.GetWallet(ctx, w.ID)
	require.NoError(t, err)
	require.Equal(t, models.WalletCancelled, got.Status)

	_, err = env.cancellations.ProcessRefund(ctx, rec.ID, admin)
	require.Equal(t, apperr.KindState, apperr.KindOf(err))
}

func TestCancellationRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o, _ := env.seedOrder(t, env.seedLot(t, 10, 50), 5, 500000)

	tests := []struct {
		name string
		req  CancelRequest
	}{
		{"no reasons", CancelRequest{OrderID: o.ID, Actor: customer}},
		{"unknown reason", CancelRequest{OrderID: o.ID, Reasons: []models.CancelReason{"bored"}, Actor: customer}},
		{"customer seller_cancel", CancelRequest{OrderID: o.ID, Reasons: []models.CancelReason{models.CancelSellerCancel}, Actor: customer}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.cancellations.RequestCancellation(ctx, tt.req)
			require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}

	require.NoError(t, env.store.UpdateOrderStatus(ctx, o.ID, models.OrderShipping, models.PaymentPaid))
	_, err := env.cancellations.RequestCancellation(ctx, CancelRequest{
		OrderID: o.ID, Reasons: []models.CancelReason{models.CancelChangedMind}, Actor: customer,
	})
	require.Equal(t, apperr.KindState, apperr.KindOf(err))
}

func TestSellerCancelRefundsInFull(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o, w := env.seedOrder(t, env.seedLot(t, 0, 50), 5, 500000)
	_, err := env.wallets.HoldDeposit(ctx, w.ID, 150000, "", customer)
	require.NoError(t, err)

	rec, err := env.cancellations.RequestCancellation(ctx, CancelRequest{
		OrderID: o.ID, Reasons: []models.CancelReason{models.CancelChangedMind, models.CancelSellerCancel}, Actor: seller,
	})
	require.NoError(t, err)
	require.Equal(t, models.TierSellerCancel, rec.PolicyTier)
	require.EqualValues(t, 150000, rec.RefundAmount)
	require.EqualValues(t, 0, rec.PenaltyAmount)
}

func TestCancellationWithoutRefundSettlesPenalty(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o, w := env.seedOrder(t, env.seedLot(t, 0, 50), 5, 500000)
	_, err := env.wallets.HoldDeposit(ctx, w.ID, 150000, "", customer)
	require.NoError(t, err)

	rec, err := env.cancellations.RequestCancellation(ctx, CancelRequest{
		OrderID: o.ID, Reasons: []models.CancelReason{models.CancelChangedMind}, Actor: customer,
	})
	require.NoError(t, err)
	require.Equal(t, models.Tier4, rec.PolicyTier)
	require.Equal(t, models.RefundStatusNotRequired, rec.RefundStatus)
	require.EqualValues(t, 150000, rec.PenaltyAmount)

	got, err := env.wallets.GetWallet(ctx, w.ID)
	require.NoError(t, err)
	require.Equal(t, models.WalletReleasedToSeller, got.Status)
	require.EqualValues(t, 0, got.TotalHeld)
	require.EqualValues(t, 150000, got.PlatformCommission+got.SellerPayoutAmount)

	// a retry finds the wallet settled and books nothing new
	_, err = env.cancellations.RequestCancellation(ctx, CancelRequest{
		OrderID: o.ID, Reasons: []models.CancelReason{models.CancelChangedMind}, Actor: customer,
	})
	require.NoError(t, err)
	txs, err := env.wallets.ListTransactions(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, txs, 3)

	out, err := env.settlement.RunReleaseChecks(ctx, env.now)
	require.NoError(t, err)
	require.Empty(t, out)
}

// slowLots widens the window between reading a cancellation record and
// restoring its inventory.
type slowLots struct {
	LotStore
}

func (s slowLots) RestoreLot(ctx context.Context, id, itemID uuid.UUID, qty int) (bool, error) {
	time.Sleep(5 * time.Millisecond)
	return s.LotStore.RestoreLot(ctx, id, itemID, qty)
}

func TestConcurrentCancellationRestoresOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lot := env.seedLot(t, 10, 100)
	o, _ := env.seedOrder(t, lot, 10, 1000000)
	env.cancellations.lots = slowLots{LotStore: env.store}

	// a second service stands in for another process sharing the store
	other := *env.cancellations
	other.locks = newKeyedMutex()

	req := CancelRequest{OrderID: o.ID, Reasons: []models.CancelReason{models.CancelChangedMind}, Actor: customer}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		svc := env.cancellations
		if i%2 == 1 {
			svc = &other
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.RequestCancellation(ctx, req)
		}()
	}
	wg.Wait()

	gotLot, err := env.store.GetLot(ctx, lot.ID)
	require.NoError(t, err)
	require.Equal(t, 100, gotLot.AvailableQuantity)

	rec, err := env.cancellations.GetByOrder(ctx, o.ID)
	require.NoError(t, err)
	require.True(t, rec.InventoryRestored)
}

func TestRestoreLotIsIdempotentPerItem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lot := env.seedLot(t, 10, 100)
	require.NoError(t, env.store.ReserveLot(ctx, lot.ID, 10))

	item := uuid.New()
	first, err := env.store.RestoreLot(ctx, lot.ID, item, 10)
	require.NoError(t, err)
	require.True(t, first)
	again, err := env.store.RestoreLot(ctx, lot.ID, item, 10)
	require.NoError(t, err)
	require.False(t, again)

	got, err := env.store.GetLot(ctx, lot.ID)
	require.NoError(t, err)
	require.Equal(t, 100, got.AvailableQuantity)
}
