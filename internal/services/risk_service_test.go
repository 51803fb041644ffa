package services

import (
	"context"
	"testing"

	"github.com/harvest-market/escrow/internal/apperr"
	"github.com/harvest-market/escrow/internal/models"
	"github.com/harvest-market/escrow/internal/policy"
	"github.com/stretchr/testify/require"
)

func TestRiskProfileLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	email := "Minh@Example.vn"

	p, err := env.risk.GetProfile(ctx, email)
	require.NoError(t, err)
	require.Equal(t, "minh@example.vn", p.CustomerEmail)
	require.Equal(t, models.RiskLow, p.RiskLevel)
	require.Equal(t, models.TrustNew, p.TrustTier)

	for i := 0; i < 4; i++ {
		_, err = env.risk.RecordOrder(ctx, email, "dev-1", "1 Lê Lợi, Quận 1")
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		p, err = env.risk.RecordCompletion(ctx, email)
		require.NoError(t, err)
	}
	p, err = env.risk.RecordCancellation(ctx, email)
	require.NoError(t, err)
	require.Equal(t, 15.0, p.RiskScore)
	require.Equal(t, models.RiskLow, p.RiskLevel)
	require.Equal(t, models.TrustRegular, p.TrustTier)
	require.Len(t, p.DeviceFingerprints, 1)

	_, err = env.risk.RecordDevice(ctx, email, "dev-2")
	require.NoError(t, err)
	p, err = env.risk.RecordOrder(ctx, email, "dev-3", " 1 lê lợi,  quận 1 ")
	require.NoError(t, err)
	require.Len(t, p.DeviceFingerprints, 3)
	require.Len(t, p.ShippingAddresses, 1, "addresses are normalized before hashing")
}

func TestBlacklistOverridesScore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	email := "spam@example.vn"

	_, err := env.risk.Blacklist(ctx, email, " ", admin)
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	p, err := env.risk.Blacklist(ctx, email, "fake payment receipts", admin)
	require.NoError(t, err)
	require.True(t, p.Blacklisted)
	require.Equal(t, admin.Email, p.BlacklistedBy)

	check, err := env.risk.ValidateOrder(ctx, email, policy.OrderRequest{PreorderQuantity: 1, DepositPercent: 100})
	require.NoError(t, err)
	require.False(t, check.Passed)
	require.NotEmpty(t, check.Reasons)

	_, err = env.risk.RemoveBlacklist(ctx, email, admin)
	require.NoError(t, err)
	check, err = env.risk.ValidateOrder(ctx, email, policy.OrderRequest{PreorderQuantity: 1, DepositPercent: 30})
	require.NoError(t, err)
	require.True(t, check.Passed)

	var actions []string
	for _, e := range env.store.AuditEntries() {
		actions = append(actions, e.Action)
	}
	require.Contains(t, actions, "customer_blacklisted")
	require.Contains(t, actions, "customer_unblacklisted")
}
