// Package app wires repositories and services for the binaries under cmd/.
package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/harvest-market/escrow/internal/config"
	"github.com/harvest-market/escrow/internal/events"
	"github.com/harvest-market/escrow/internal/models"
	"github.com/harvest-market/escrow/internal/policy"
	"github.com/harvest-market/escrow/internal/repositories"
	"github.com/harvest-market/escrow/internal/repositories/memory"
	"github.com/harvest-market/escrow/internal/services"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// AuditLog is written by every service and read by the audit endpoint.
type AuditLog interface {
	services.AuditStore
	GetByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit, offset int) ([]models.AuditLog, error)
	Search(ctx context.Context, q models.AuditQuery) ([]models.AuditLog, error)
}

type Stores struct {
	Wallets       services.WalletStore
	Orders        services.OrderStore
	Lots          services.LotStore
	Cancellations services.CancellationStore
	Compensations services.CompensationStore
	Loyalty       services.LoyaltyStore
	Disputes      services.DisputeStore
	Risk          services.RiskStore
	Audit         AuditLog
}

// MemoryStores backs every store with one in-process store.
func MemoryStores(m *memory.Store) Stores {
	return Stores{
		Wallets:       m,
		Orders:        m,
		Lots:          m,
		Cancellations: m,
		Compensations: m,
		Loyalty:       m,
		Disputes:      m,
		Risk:          m,
		Audit:         m,
	}
}

func PostgresStores(pool *pgxpool.Pool) Stores {
	return Stores{
		Wallets:       repositories.NewWalletRepo(pool),
		Orders:        repositories.NewOrderRepo(pool),
		Lots:          repositories.NewLotRepo(pool),
		Cancellations: repositories.NewCancellationRepo(pool),
		Compensations: repositories.NewCompensationRepo(pool),
		Loyalty:       repositories.NewLoyaltyRepo(pool),
		Disputes:      repositories.NewDisputeRepo(pool),
		Risk:          repositories.NewRiskRepo(pool),
		Audit:         repositories.NewAuditRepo(pool),
	}
}

type Services struct {
	RefundPolicy  policy.RefundPolicy
	Wallets       *services.WalletService
	Risk          *services.RiskService
	Cancellations *services.CancellationService
	Compensations *services.CompensationService
	Disputes      *services.DisputeService
	Preorders     *services.PreorderService
	Settlement    *services.SettlementService
}

// NewServices builds the service graph. Notifications go out as events on
// the notify stream; cmd/notify-bridge delivers them.
func NewServices(cfg *config.Config, st Stores, publisher events.Publisher, log *zap.Logger) (*Services, error) {
	var rules []models.CompensationRule
	if cfg.CompensationRulesFile != "" {
		var err error
		rules, err = policy.LoadCompensationRules(cfg.CompensationRulesFile)
		if err != nil {
			return nil, fmt.Errorf("compensation rules: %w", err)
		}
		log.Info("compensation rules loaded", zap.String("file", cfg.CompensationRulesFile), zap.Int("rules", len(rules)))
	}

	refundPolicy := policy.RefundPolicy{FreeCancelDays: cfg.FreeCancelDays, CancelFeePercent: cfg.CancelFeePercent}
	notifier := services.NewEventNotifier(publisher, log)

	wallets := services.NewWalletService(st.Wallets, st.Audit, publisher, log)
	risk := services.NewRiskService(st.Risk, st.Audit, publisher, cfg.RestrictedMaxQuantity, log)

	return &Services{
		RefundPolicy:  refundPolicy,
		Wallets:       wallets,
		Risk:          risk,
		Cancellations: services.NewCancellationService(st.Orders, st.Lots, st.Cancellations, wallets, risk, st.Audit, publisher, notifier, refundPolicy, cfg.CommissionRatePercent, cfg.Location, log),
		Compensations: services.NewCompensationService(st.Orders, st.Lots, st.Compensations, st.Loyalty, wallets, st.Audit, publisher, notifier, rules, cfg.VoucherValidDays, cfg.Location, log),
		Disputes:      services.NewDisputeService(st.Disputes, st.Orders, wallets, st.Audit, publisher, notifier, log),
		Preorders:     services.NewPreorderService(st.Lots, st.Orders, wallets, risk, st.Audit, publisher, cfg.DefaultDepositPercent, log),
		Settlement:    services.NewSettlementService(st.Orders, st.Wallets, wallets, risk, st.Audit, publisher, notifier, cfg.CommissionRatePercent, cfg.InspectionPeriod, log),
	}, nil
}
