package repositories

import (
	"context"

	"github.com/harvest-market/escrow/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RiskRepo struct {
	pool *pgxpool.Pool
}

func NewRiskRepo(pool *pgxpool.Pool) *RiskRepo {
	return &RiskRepo{pool: pool}
}

func (r *RiskRepo) GetProfile(ctx context.Context, email string) (*models.CustomerRiskProfile, error) {
	var p models.CustomerRiskProfile
	err := r.pool.QueryRow(ctx, `
		SELECT customer_email, total_orders, completed_orders, cancelled_orders,
		       device_fingerprints, shipping_addresses, risk_score, risk_level, trust_tier,
		       restrictions, blacklisted, blacklist_reason, blacklisted_by, blacklisted_at,
		       version, created_at, updated_at
		FROM customer_risk_profiles WHERE customer_email = $1
	`, email).Scan(&p.CustomerEmail, &p.TotalOrders, &p.CompletedOrders, &p.CancelledOrders,
		&p.DeviceFingerprints, &p.ShippingAddresses, &p.RiskScore, &p.RiskLevel, &p.TrustTier,
		&p.Restrictions, &p.Blacklisted, &p.BlacklistReason, &p.BlacklistedBy, &p.BlacklistedAt,
		&p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, wrapErr(err, "risk profile", email)
	}
	return &p, nil
}

// SaveProfile inserts a first-seen customer at version 1; an existing row is
// only overwritten while its version still equals p.Version.
func (r *RiskRepo) SaveProfile(ctx context.Context, p *models.CustomerRiskProfile) error {
	if p.DeviceFingerprints == nil {
		p.DeviceFingerprints = []string{}
	}
	if p.ShippingAddresses == nil {
		p.ShippingAddresses = []string{}
	}
	if p.Restrictions == nil {
		p.Restrictions = []models.Restriction{}
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO customer_risk_profiles (
			customer_email, total_orders, completed_orders, cancelled_orders,
			device_fingerprints, shipping_addresses, risk_score, risk_level, trust_tier,
			restrictions, blacklisted, blacklist_reason, blacklisted_by, blacklisted_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 1)
		ON CONFLICT (customer_email) DO UPDATE SET
			total_orders = EXCLUDED.total_orders,
			completed_orders = EXCLUDED.completed_orders,
			cancelled_orders = EXCLUDED.cancelled_orders,
			device_fingerprints = EXCLUDED.device_fingerprints,
			shipping_addresses = EXCLUDED.shipping_addresses,
			risk_score = EXCLUDED.risk_score,
			risk_level = EXCLUDED.risk_level,
			trust_tier = EXCLUDED.trust_tier,
			restrictions = EXCLUDED.restrictions,
			blacklisted = EXCLUDED.blacklisted,
			blacklist_reason = EXCLUDED.blacklist_reason,
			blacklisted_by = EXCLUDED.blacklisted_by,
			blacklisted_at = EXCLUDED.blacklisted_at,
			version = customer_risk_profiles.version + 1,
			updated_at = now()
		WHERE customer_risk_profiles.version = $15
		RETURNING version, created_at, updated_at
	`, p.CustomerEmail, p.TotalOrders, p.CompletedOrders, p.CancelledOrders,
		p.DeviceFingerprints, p.ShippingAddresses, p.RiskScore, p.RiskLevel, p.TrustTier,
		p.Restrictions, p.Blacklisted, p.BlacklistReason, p.BlacklistedBy, p.BlacklistedAt, p.Version,
	).Scan(&p.Version, &p.CreatedAt, &p.UpdatedAt)
	return versionConflict(err)
}
