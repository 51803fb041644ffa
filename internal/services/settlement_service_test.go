package services

import (
	"context"
	"testing"
	"time"

	"github.com/harvest-market/escrow/internal/models"
	"github.com/stretchr/testify/require"
)

// fundAndDeliver brings a wallet to fully_held with the harvest and
// acceptance gates set and the order delivered at deliveredAt.
func fundAndDeliver(t *testing.T, env *testEnv, o *models.Order, w *models.Wallet, deliveredAt time.Time) {
	t.Helper()
	ctx := context.Background()
	_, err := env.wallets.HoldDeposit(ctx, w.ID, o.TotalAmount/4, "", customer)
	require.NoError(t, err)
	_, err = env.wallets.HoldFinalPayment(ctx, w.ID, o.TotalAmount-o.TotalAmount/4, "", customer)
	require.NoError(t, err)
	_, err = env.wallets.UpdateReleaseCondition(ctx, w.ID, models.ConditionHarvestConfirmed, true, seller)
	require.NoError(t, err)
	_, err = env.settlement.AcceptDelivery(ctx, o.ID, customer)
	require.NoError(t, err)
	env.settlement.now = func() time.Time { return deliveredAt }
	_, err = env.settlement.ConfirmDelivery(ctx, o.ID, seller)
	require.NoError(t, err)
	env.settlement.now = func() time.Time { return env.now }
}

func TestRunReleaseChecks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lot := env.seedLot(t, -2, 100)

	due, dueWallet := env.seedOrder(t, lot, 10, 1000000)
	fundAndDeliver(t, env, due, dueWallet, env.now.Add(-96*time.Hour))
	fresh, freshWallet := env.seedOrder(t, lot, 10, 1000000)
	fundAndDeliver(t, env, fresh, freshWallet, env.now.Add(-24*time.Hour))

	out, err := env.settlement.RunReleaseChecks(ctx, env.now)
	require.NoError(t, err)
	require.Len(t, out, 2)
	byWallet := map[string]ReleaseOutcome{}
	for _, o := range out {
		byWallet[o.WalletID.String()] = o
	}
	require.Equal(t, OutcomeReleased, byWallet[dueWallet.ID.String()].Outcome)
	require.EqualValues(t, 970000, byWallet[dueWallet.ID.String()].Payout)
	require.Equal(t, OutcomeInspecting, byWallet[freshWallet.ID.String()].Outcome)

	o, err := env.store.GetOrder(ctx, due.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentPaid, o.PaymentStatus)

	p, err := env.risk.GetProfile(ctx, customer.Email)
	require.NoError(t, err)
	require.Equal(t, 1, p.CompletedOrders)
}

func TestManualReviewRelease(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o, w := env.seedOrder(t, env.seedLot(t, -2, 100), 10, 1000000)
	fundAndDeliver(t, env, o, w, env.now.Add(-96*time.Hour))
	saveHighRisk(t, env, customer.Email)

	out, err := env.settlement.RunReleaseChecks(ctx, env.now)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, OutcomeManualReview, out[0].Outcome)

	res, err := env.settlement.Release(ctx, w.ID, admin)
	require.NoError(t, err)
	require.True(t, res.Released)
	require.EqualValues(t, 30000, res.Commission)
}

func TestReleaseWaitsForOpenDispute(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o, w := env.seedOrder(t, env.seedLot(t, -2, 100), 10, 1000000)
	fundAndDeliver(t, env, o, w, env.now.Add(-96*time.Hour))
	_, err := env.disputes.Create(ctx, CreateDisputeInput{
		OrderID: o.ID, DisputeType: models.DisputeDamaged, CustomerDescription: goodDescription, Actor: customer,
	})
	require.NoError(t, err)

	out, err := env.settlement.RunReleaseChecks(ctx, env.now)
	require.NoError(t, err)
	require.Equal(t, OutcomeNotReady, out[0].Outcome)
	require.Equal(t, []models.ReleaseCondition{models.ConditionDisputeResolved}, out[0].Unmet)
}

func TestRunReleaseChecksPagesPastFirstBatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.settlement.pageSize = 10
	lot := env.seedLot(t, -2, 1000)
	for i := 0; i < 25; i++ {
		_, w := env.seedOrder(t, lot, 1, 100000)
		_, err := env.wallets.HoldDeposit(ctx, w.ID, 25000, "", customer)
		require.NoError(t, err)
		_, err = env.wallets.HoldFinalPayment(ctx, w.ID, 75000, "", customer)
		require.NoError(t, err)
	}
	ready, readyWallet := env.seedOrder(t, lot, 10, 1000000)
	fundAndDeliver(t, env, ready, readyWallet, env.now.Add(-96*time.Hour))

	out, err := env.settlement.RunReleaseChecks(ctx, env.now)
	require.NoError(t, err)
	require.Len(t, out, 26)

	got, err := env.wallets.GetWallet(ctx, readyWallet.ID)
	require.NoError(t, err)
	require.Equal(t, models.WalletReleasedToSeller, got.Status)
}

func TestRunReleaseChecksSkipsCancelledOrders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o, w := env.seedOrder(t, env.seedLot(t, 5, 100), 10, 3000000)
	_, err := env.wallets.HoldDeposit(ctx, w.ID, 1000000, "", customer)
	require.NoError(t, err)
	rec, err := env.cancellations.RequestCancellation(ctx, CancelRequest{
		OrderID: o.ID, Reasons: []models.CancelReason{models.CancelChangedMind}, Actor: customer,
	})
	require.NoError(t, err)
	_, _, err = env.wallets.Refund(ctx, RefundRequest{
		WalletID: w.ID, Amount: rec.RefundAmount, Type: models.RefundPartial, Reason: "manual", Actor: admin,
	})
	require.NoError(t, err)

	out, err := env.settlement.RunReleaseChecks(ctx, env.now)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, OutcomeCancelled, out[0].Outcome)
}
