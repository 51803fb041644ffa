package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harvest-market/escrow/internal/apperr"
	"github.com/harvest-market/escrow/internal/events"
	"github.com/harvest-market/escrow/internal/metrics"
	"github.com/harvest-market/escrow/internal/models"
	"github.com/harvest-market/escrow/internal/policy"
	"go.uber.org/zap"
)

type RiskService struct {
	profiles      RiskStore
	rec           recorder
	maxRestricted int
	log           *zap.Logger
	now           func() time.Time
}

func NewRiskService(profiles RiskStore, audit AuditStore, publisher events.Publisher, maxRestrictedQuantity int, log *zap.Logger) *RiskService {
	return &RiskService{
		profiles:      profiles,
		rec:           recorder{audit: audit, publisher: publisher, log: log},
		maxRestricted: maxRestrictedQuantity,
		log:           log,
		now:           time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HashAddress reduces a shipping address to a stable fingerprint so
// formatting differences do not count as churn.
func HashAddress(address string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(address)), " ")
	if norm == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:8])
}

// GetProfile returns the stored profile or a fresh one for unseen customers.
func (s *RiskService) GetProfile(ctx context.Context, email string) (*models.CustomerRiskProfile, error) {
	email = normalizeEmail(email)
	p, err := s.profiles.GetProfile(ctx, email)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return policy.NewRiskProfile(email), nil
	}
	return p, err
}

func (s *RiskService) update(ctx context.Context, email string, fn func(p *models.CustomerRiskProfile)) (*models.CustomerRiskProfile, error) {
	if normalizeEmail(email) == "" {
		return nil, apperr.Invalid("customer_email", "required")
	}
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		p, err := s.GetProfile(ctx, email)
		if err != nil {
			return nil, err
		}
		oldLevel := p.RiskLevel
		fn(p)
		policy.Recalculate(p)
		err = s.profiles.SaveProfile(ctx, p)
		if errors.Is(err, apperr.ErrConcurrentUpdate) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if oldLevel != p.RiskLevel {
			s.log.Info("risk level changed",
				zap.String("customer", p.CustomerEmail),
				zap.String("old_level", string(oldLevel)),
				zap.String("new_level", string(p.RiskLevel)),
				zap.Float64("score", p.RiskScore),
			)
			s.rec.publish(ctx, events.EventRiskProfileChanged, map[string]any{
				"customer_email": p.CustomerEmail, "risk_level": string(p.RiskLevel), "risk_score": p.RiskScore,
			})
		}
		return p, nil
	}
	return nil, fmt.Errorf("risk profile %s: %w", email, apperr.ErrConcurrentUpdate)
}

// RecordOrder counts a placed order and the device/address it came from.
func (s *RiskService) RecordOrder(ctx context.Context, email, deviceFingerprint, shippingAddress string) (*models.CustomerRiskProfile, error) {
	return s.update(ctx, email, func(p *models.CustomerRiskProfile) {
		p.TotalOrders++
		p.DeviceFingerprints = policy.AddDistinct(p.DeviceFingerprints, deviceFingerprint)
		p.ShippingAddresses = policy.AddDistinct(p.ShippingAddresses, HashAddress(shippingAddress))
	})
}

func (s *RiskService) RecordCancellation(ctx context.Context, email string) (*models.CustomerRiskProfile, error) {
	return s.update(ctx, email, func(p *models.CustomerRiskProfile) {
		p.CancelledOrders++
	})
}

func (s *RiskService) RecordCompletion(ctx context.Context, email string) (*models.CustomerRiskProfile, error) {
	return s.update(ctx, email, func(p *models.CustomerRiskProfile) {
		p.CompletedOrders++
	})
}

// RecordDevice notes a fingerprint seen outside order placement (login, checkout).
func (s *RiskService) RecordDevice(ctx context.Context, email, deviceFingerprint string) (*models.CustomerRiskProfile, error) {
	return s.update(ctx, email, func(p *models.CustomerRiskProfile) {
		p.DeviceFingerprints = policy.AddDistinct(p.DeviceFingerprints, deviceFingerprint)
	})
}

// Blacklist is an admin override that takes precedence over the score.
func (s *RiskService) Blacklist(ctx context.Context, email, reason string, actor models.Actor) (*models.CustomerRiskProfile, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperr.Invalid("reason", "required")
	}
	p, err := s.update(ctx, email, func(p *models.CustomerRiskProfile) {
		now := s.now()
		p.Blacklisted = true
		p.BlacklistReason = reason
		p.BlacklistedBy = actor.Email
		p.BlacklistedAt = &now
	})
	if err != nil {
		return nil, err
	}
	s.rec.auditLog(ctx, actor, "customer_blacklisted", "risk_profile", models.ProfileEntityID(p.CustomerEmail), map[string]any{"reason": reason})
	return p, nil
}

func (s *RiskService) RemoveBlacklist(ctx context.Context, email string, actor models.Actor) (*models.CustomerRiskProfile, error) {
	p, err := s.update(ctx, email, func(p *models.CustomerRiskProfile) {
		p.Blacklisted = false
		p.BlacklistReason = ""
		p.BlacklistedBy = ""
		p.BlacklistedAt = nil
	})
	if err != nil {
		return nil, err
	}
	s.rec.auditLog(ctx, actor, "customer_unblacklisted", "risk_profile", models.ProfileEntityID(p.CustomerEmail), nil)
	return p, nil
}

// ValidateOrder checks an order against the customer's restrictions. A
// failed check is reported in the result; only store failures are errors.
func (s *RiskService) ValidateOrder(ctx context.Context, email string, req policy.OrderRequest) (models.OrderCheck, error) {
	p, err := s.GetProfile(ctx, email)
	if err != nil {
		return models.OrderCheck{}, err
	}
	check := policy.CheckOrder(p, req, s.maxRestricted)
	metrics.RecordRiskCheck(check.Passed, string(check.RiskLevel))
	if !check.Passed {
		s.log.Info("order failed risk check", zap.String("customer", p.CustomerEmail), zap.Strings("reasons", check.Reasons))
	}
	return check, nil
}
