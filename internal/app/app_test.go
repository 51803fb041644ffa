package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harvest-market/escrow/internal/config"
	"github.com/harvest-market/escrow/internal/events"
	"github.com/harvest-market/escrow/internal/models"
	"github.com/harvest-market/escrow/internal/repositories/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	return &config.Config{
		FreeCancelDays:        5,
		CancelFeePercent:      25,
		DefaultDepositPercent: 30,
		CommissionRatePercent: 3,
		InspectionPeriod:      72 * time.Hour,
		VoucherValidDays:      30,
		RestrictedMaxQuantity: 10,
		Location:              time.UTC,
	}
}

func TestNewServicesUsesConfiguredPolicy(t *testing.T) {
	svc, err := NewServices(testConfig(), MemoryStores(memory.New()), events.NopPublisher{}, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, 5, svc.RefundPolicy.FreeCancelDays)
	require.Equal(t, 25, svc.RefundPolicy.CancelFeePercent)
	require.NotEmpty(t, svc.Compensations.Rules())
}

func TestNewServicesLoadsRuleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rules:
  - id: delay_3d
    trigger_type: delay_threshold
    threshold: 3
    compensation_type: points
    compensation_unit: points
    value: 500
    auto_approved: true
`), 0o644))

	cfg := testConfig()
	cfg.CompensationRulesFile = path
	svc, err := NewServices(cfg, MemoryStores(memory.New()), events.NopPublisher{}, zap.NewNop())
	require.NoError(t, err)

	rules := svc.Compensations.Rules()
	require.Len(t, rules, 1)
	require.Equal(t, "delay_3d", rules[0].ID)
	require.Equal(t, models.TriggerDelay, rules[0].TriggerType)
}

func TestNewServicesRejectsMissingRuleFile(t *testing.T) {
	cfg := testConfig()
	cfg.CompensationRulesFile = filepath.Join(t.TempDir(), "absent.yaml")
	_, err := NewServices(cfg, MemoryStores(memory.New()), events.NopPublisher{}, zap.NewNop())
	require.Error(t, err)
}

func TestMemoryStoresShareAuditTrail(t *testing.T) {
	st := MemoryStores(memory.New())
	svc, err := NewServices(testConfig(), st, events.NopPublisher{}, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	p, err := svc.Risk.Blacklist(ctx, "lan@example.vn", "chargeback", models.Actor{Email: "ops@example.vn", Type: models.ActorTypeAdmin})
	require.NoError(t, err)

	entries, err := st.Audit.GetByEntity(ctx, "risk_profile", models.ProfileEntityID(p.CustomerEmail), 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	require.Equal(t, "customer_blacklisted", entries[0].Action)
}
