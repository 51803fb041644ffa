package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/harvest-market/escrow/internal/apperr"
	"github.com/harvest-market/escrow/internal/models"
	"github.com/stretchr/testify/require"
)

func TestDelayCompensationVoucher(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lot := env.seedLot(t, -10, 100)
	o, _ := env.seedOrder(t, lot, 20, 2000000)

	report, err := env.compensations.Detect(ctx, models.TriggerDelay)
	require.NoError(t, err)
	require.Equal(t, 1, report.Scanned)
	require.Len(t, report.Created, 1)

	rec := report.Created[0]
	require.Equal(t, "delay_7d", rec.RuleID)
	require.Equal(t, models.CompensationVoucher, rec.CompensationType)
	require.EqualValues(t, 200000, rec.CompensationValue)
	require.True(t, rec.AutoApproved)
	require.Equal(t, models.CompensationApproved, rec.Status)
	require.Equal(t, 10, rec.TriggerDetails.DelayDays)

	// re-running the detector creates nothing new
	report, err = env.compensations.Detect(ctx, models.TriggerDelay)
	require.NoError(t, err)
	require.Empty(t, report.Created)
	all, err := env.compensations.ListByOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)

	res, err := env.compensations.Apply(ctx, rec.ID, models.SystemActor)
	require.NoError(t, err)
	require.True(t, res.Applied)
	require.Equal(t, models.CompensationApplied, res.Record.Status)
	require.NotNil(t, res.Record.VoucherCode)
	require.True(t, strings.HasPrefix(*res.Record.VoucherCode, "COMP-"))

	v, err := env.store.GetVoucherByCompensation(ctx, rec.ID)
	require.NoError(t, err)
	require.EqualValues(t, 200000, v.Amount)
	require.Equal(t, env.now.Add(30*24*time.Hour), v.ExpiresAt)

	again, err := env.compensations.Apply(ctx, rec.ID, models.SystemActor)
	require.NoError(t, err)
	require.True(t, again.Applied)
	require.Equal(t, "already applied", again.Reason)
}

func TestDelayEscalatesOneTierAtATime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lot := env.seedLot(t, -4, 100)
	o, _ := env.seedOrder(t, lot, 2, 200000)

	rec, err := env.compensations.DetectForOrder(ctx, o, models.TriggerDelay)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "delay_3d", rec.RuleID)
	require.Equal(t, models.CompensationPoints, rec.CompensationType)
	require.EqualValues(t, 500, rec.CompensationValue)

	res, err := env.compensations.Apply(ctx, rec.ID, models.SystemActor)
	require.NoError(t, err)
	require.True(t, res.Applied)
	balance, err := env.store.PointsBalance(ctx, customer.Email)
	require.NoError(t, err)
	require.EqualValues(t, 500, balance)

	later := env.now.AddDate(0, 0, 4)
	env.compensations.now = func() time.Time { return later }
	rec, err = env.compensations.DetectForOrder(ctx, o, models.TriggerDelay)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "delay_7d", rec.RuleID)

	rec, err = env.compensations.DetectForOrder(ctx, o, models.TriggerDelay)
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestShortageCompensationNeedsApproval(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lot := env.seedLot(t, 0, 100)
	o, w := env.seedOrder(t, lot, 10, 1000000)
	_, err := env.wallets.HoldDeposit(ctx, w.ID, 300000, "", customer)
	require.NoError(t, err)
	require.NoError(t, env.preorders.RecordFulfilment(ctx, o.ID, o.Items[0].ID, 6, seller))

	report, err := env.compensations.Detect(ctx, models.TriggerShortage)
	require.NoError(t, err)
	require.Len(t, report.Created, 1)
	rec := report.Created[0]
	require.Equal(t, "shortage_30p", rec.RuleID)
	require.Equal(t, models.CompensationPending, rec.Status)
	require.EqualValues(t, 150000, rec.CompensationValue)
	require.Equal(t, 40, rec.TriggerDetails.ShortagePercent)

	res, err := env.compensations.Apply(ctx, rec.ID, admin)
	require.NoError(t, err)
	require.True(t, res.Pending)
	require.False(t, res.Applied)

	_, err = env.compensations.Approve(ctx, rec.ID, admin)
	require.NoError(t, err)
	applied, failed := env.compensations.ApplyApproved(ctx, 10)
	require.Equal(t, 1, applied)
	require.Equal(t, 0, failed)

	got, err := env.compensations.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, models.CompensationApplied, got.Status)
	require.NotNil(t, got.TransactionID)

	wallet, err := env.wallets.GetWallet(ctx, w.ID)
	require.NoError(t, err)
	require.EqualValues(t, 150000, wallet.TotalHeld)
	require.EqualValues(t, 150000, wallet.RefundedAmount)
}

func TestRejectedCompensationIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o, _ := env.seedOrder(t, env.seedLot(t, -15, 100), 1, 100000)

	rec, err := env.compensations.DetectForOrder(ctx, o, models.TriggerDelay)
	require.NoError(t, err)
	require.Equal(t, "delay_14d", rec.RuleID)
	require.Equal(t, models.CompensationPending, rec.Status)

	_, err = env.compensations.Reject(ctx, rec.ID, "", admin)
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	rec, err = env.compensations.Reject(ctx, rec.ID, "customer already compensated offline", admin)
	require.NoError(t, err)
	require.Equal(t, models.CompensationRejected, rec.Status)

	_, err = env.compensations.Approve(ctx, rec.ID, admin)
	require.Equal(t, apperr.KindState, apperr.KindOf(err))
	_, err = env.compensations.Apply(ctx, rec.ID, admin)
	require.Equal(t, apperr.KindState, apperr.KindOf(err))
}

func TestDetectUnknownTrigger(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.compensations.Detect(context.Background(), "weather")
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestDetectPagesPastFirstBatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.compensations.pageSize = 10
	onTime := env.seedLot(t, 20, 1000)
	for i := 0; i < 25; i++ {
		env.seedOrder(t, onTime, 1, 100000)
	}
	delivered, _ := env.seedOrder(t, env.seedLot(t, -10, 10), 1, 100000)
	require.NoError(t, env.store.MarkDelivered(ctx, delivered.ID, env.now))
	late, _ := env.seedOrder(t, env.seedLot(t, -10, 10), 2, 200000)

	report, err := env.compensations.Detect(ctx, models.TriggerDelay)
	require.NoError(t, err)
	require.Equal(t, 26, report.Scanned)
	require.Len(t, report.Created, 1)
	require.Equal(t, late.ID, report.Created[0].OrderID)
}
