package services

import (
	"context"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/harvest-market/escrow/internal/apperr"
	"github.com/harvest-market/escrow/internal/models"
	"github.com/stretchr/testify/require"
)

const goodDescription = "Một nửa số vải bị dập và có mùi lạ khi nhận hàng"

func TestDisputeValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o, _ := env.seedOrder(t, env.seedLot(t, 5, 10), 1, 100000)

	tests := []struct {
		name  string
		in    CreateDisputeInput
		field string
	}{
		{"short description", CreateDisputeInput{OrderID: o.ID, DisputeType: models.DisputeQualityIssue, CustomerDescription: "   hỏng rồi      "}, "customer_description"},
		{"missing type", CreateDisputeInput{OrderID: o.ID, CustomerDescription: goodDescription}, "dispute_type"},
		{"unknown type", CreateDisputeInput{OrderID: o.ID, DisputeType: "too_sweet", CustomerDescription: goodDescription}, "dispute_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.Actor = customer
			_, err := env.disputes.Create(ctx, tt.in)
			require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			require.Equal(t, tt.field, apperr.FieldsOf(err)[0].Field)
		})
	}
}

func TestDisputePartialRefundResolution(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o, w := env.seedOrder(t, env.seedLot(t, 5, 10), 2, 400000)
	_, err := env.wallets.HoldDeposit(ctx, w.ID, 120000, "", customer)
	require.NoError(t, err)
	_, err = env.wallets.HoldFinalPayment(ctx, w.ID, 280000, "", customer)
	require.NoError(t, err)

	ticket, err := env.disputes.Create(ctx, CreateDisputeInput{
		OrderID: o.ID, DisputeType: models.DisputeQualityIssue, CustomerDescription: goodDescription, Actor: customer,
	})
	require.NoError(t, err)
	require.Equal(t, models.DisputeOpen, ticket.Status)
	require.Regexp(t, regexp.MustCompile(`^DSP-20260310-[0-9A-F]{6}$`), ticket.TicketNumber)
	require.Equal(t, w.ID, *ticket.WalletID)
	require.Len(t, ticket.Timeline, 1)

	got, err := env.wallets.GetWallet(ctx, w.ID)
	require.NoError(t, err)
	require.False(t, got.ReleaseConditions.DisputeResolved)

	byNumber, err := env.disputes.GetByNumber(ctx, ticket.TicketNumber)
	require.NoError(t, err)
	require.Equal(t, ticket.ID, byNumber.ID)

	_, err = env.disputes.AddResolutionOption(ctx, ticket.ID, ResolutionOptionInput{Type: models.ResolutionRefundPartial, Description: "Hoàn một phần"}, admin)
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	ticket, err = env.disputes.AddResolutionOption(ctx, ticket.ID, ResolutionOptionInput{
		Type: models.ResolutionRefundPartial, Amount: 100000, Description: "Hoàn 100.000đ cho phần hàng hỏng",
	}, admin)
	require.NoError(t, err)
	require.Equal(t, models.DisputeResolutionProposed, ticket.Status)
	ticket, err = env.disputes.AddResolutionOption(ctx, ticket.ID, ResolutionOptionInput{
		Type: models.ResolutionReplacement, Description: "Gửi lại 1kg vải",
	}, admin)
	require.NoError(t, err)
	require.Len(t, ticket.ResolutionOptions, 2)

	ticket, err = env.disputes.AddInternalNote(ctx, ticket.ID, "Ảnh chụp khớp với lô hàng", admin)
	require.NoError(t, err)
	require.Len(t, ticket.InternalNotes, 1)

	ticket, err = env.disputes.Resolve(ctx, ticket.ID, ticket.ResolutionOptions[0].ID, "khách đồng ý", admin)
	require.NoError(t, err)
	require.Equal(t, models.DisputeResolved, ticket.Status)
	require.NotNil(t, ticket.ResolvedAt)
	require.NotNil(t, ticket.ResolutionApplied.TransactionID)

	got, err = env.wallets.GetWallet(ctx, w.ID)
	require.NoError(t, err)
	require.EqualValues(t, 300000, got.TotalHeld)
	require.Equal(t, models.WalletPartialRefunded, got.Status)
	require.True(t, got.ReleaseConditions.DisputeResolved)

	txs, err := env.wallets.ListTransactions(ctx, w.ID)
	require.NoError(t, err)
	require.Equal(t, "dispute:"+ticket.TicketNumber, txs[len(txs)-1].Reference)
}

func TestResolvedDisputeIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o, _ := env.seedOrder(t, env.seedLot(t, 5, 10), 1, 100000)
	ticket, err := env.disputes.Create(ctx, CreateDisputeInput{
		OrderID: o.ID, DisputeType: models.DisputeLateDelivery, CustomerDescription: goodDescription, Actor: customer,
	})
	require.NoError(t, err)
	ticket, err = env.disputes.AddResolutionOption(ctx, ticket.ID, ResolutionOptionInput{Type: models.ResolutionNoAction, Description: "Giao đúng hẹn"}, admin)
	require.NoError(t, err)
	optionID := ticket.ResolutionOptions[0].ID

	ticket, err = env.disputes.Resolve(ctx, ticket.ID, optionID, "", admin)
	require.NoError(t, err)
	require.Nil(t, ticket.ResolutionApplied.TransactionID)

	_, err = env.disputes.Resolve(ctx, ticket.ID, optionID, "", admin)
	require.Equal(t, apperr.KindState, apperr.KindOf(err))
	_, err = env.disputes.AddResolutionOption(ctx, ticket.ID, ResolutionOptionInput{Type: models.ResolutionNoAction, Description: "again"}, admin)
	require.Equal(t, apperr.KindState, apperr.KindOf(err))
	_, err = env.disputes.UpdateStatus(ctx, ticket.ID, models.DisputeClosed, "", admin)
	require.Equal(t, apperr.KindState, apperr.KindOf(err))
}

func TestDisputeStatusRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o, w := env.seedOrder(t, env.seedLot(t, 5, 10), 1, 100000)
	first, err := env.disputes.Create(ctx, CreateDisputeInput{
		OrderID: o.ID, DisputeType: models.DisputeWrongItem, CustomerDescription: goodDescription, Actor: customer,
	})
	require.NoError(t, err)
	second, err := env.disputes.Create(ctx, CreateDisputeInput{
		OrderID: o.ID, DisputeType: models.DisputeMissingItem, CustomerDescription: goodDescription, Actor: customer,
	})
	require.NoError(t, err)

	_, err = env.disputes.Resolve(ctx, first.ID, first.ID, "", admin)
	require.Equal(t, apperr.KindState, apperr.KindOf(err), "open tickets need a proposed option first")
	_, err = env.disputes.UpdateStatus(ctx, first.ID, models.DisputeResolved, "", admin)
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = env.disputes.UpdateStatus(ctx, first.ID, models.DisputeClosed, "duplicate", admin)
	require.NoError(t, err)
	got, err := env.wallets.GetWallet(ctx, w.ID)
	require.NoError(t, err)
	require.False(t, got.ReleaseConditions.DisputeResolved, "second ticket still open")

	_, err = env.disputes.UpdateStatus(ctx, second.ID, models.DisputeClosed, "withdrawn", customer)
	require.NoError(t, err)
	got, err = env.wallets.GetWallet(ctx, w.ID)
	require.NoError(t, err)
	require.True(t, got.ReleaseConditions.DisputeResolved)
}

func TestDisputeUnknownOrder(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.disputes.Create(context.Background(), CreateDisputeInput{
		OrderID: uuid.New(), DisputeType: models.DisputeOther, CustomerDescription: goodDescription, Actor: customer,
	})
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
