package policy

import (
	"fmt"
	"math"

	"github.com/harvest-market/escrow/internal/models"
)

const (
	cancelRateWeight   = 0.6
	deviceChurnWeight  = 0.2
	addressChurnWeight = 0.2

	// churn saturates once this many extra devices or addresses are seen
	churnSaturation = 4

	regularMinCompleted = 3
	trustedMinCompleted = 10
	vipMinCompleted     = 30

	DefaultRestrictedMaxQuantity = 10
)

// RiskScore is a 0-100 weighted blend of cancellation rate and
// device/address churn.
func RiskScore(p *models.CustomerRiskProfile) float64 {
	var cancelRate float64
	if p.TotalOrders > 0 {
		cancelRate = float64(p.CancelledOrders) / float64(p.TotalOrders)
	}
	score := 100 * (cancelRateWeight*clamp01(cancelRate) +
		deviceChurnWeight*churn(len(p.DeviceFingerprints)) +
		addressChurnWeight*churn(len(p.ShippingAddresses)))
	return math.Round(score*100) / 100
}

func churn(distinct int) float64 {
	if distinct <= 1 {
		return 0
	}
	return clamp01(float64(distinct-1) / churnSaturation)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func RiskLevelFor(score float64) models.RiskLevel {
	switch {
	case score >= 75:
		return models.RiskCritical
	case score >= 50:
		return models.RiskHigh
	case score >= 25:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// TrustTierFor grades completed-order history. Higher tiers also require a
// clean enough risk level.
func TrustTierFor(completed int, level models.RiskLevel) models.TrustTier {
	switch {
	case completed >= vipMinCompleted && level == models.RiskLow:
		return models.TrustVIP
	case completed >= trustedMinCompleted && (level == models.RiskLow || level == models.RiskMedium):
		return models.TrustTrusted
	case completed >= regularMinCompleted:
		return models.TrustRegular
	default:
		return models.TrustNew
	}
}

// RestrictionsFor derives restrictions from the level alone. A blacklist
// overrides the computed level.
func RestrictionsFor(level models.RiskLevel, blacklisted bool) []models.Restriction {
	if blacklisted {
		return []models.Restriction{models.RestrictBlockPreorders, models.RestrictBlacklisted}
	}
	switch level {
	case models.RiskLow:
		return []models.Restriction{}
	case models.RiskMedium:
		return []models.Restriction{models.RestrictLimitQuantity}
	case models.RiskHigh:
		return []models.Restriction{models.RestrictLimitQuantity, models.RestrictManualReleaseCheck, models.RestrictFullDeposit}
	case models.RiskCritical:
		return []models.Restriction{models.RestrictBlockPreorders}
	}
	panic(fmt.Sprintf("policy: unhandled risk level %q", level))
}

// Recalculate refreshes every derived field of the profile in place.
func Recalculate(p *models.CustomerRiskProfile) {
	p.RiskScore = RiskScore(p)
	p.RiskLevel = RiskLevelFor(p.RiskScore)
	p.TrustTier = TrustTierFor(p.CompletedOrders, p.RiskLevel)
	p.Restrictions = RestrictionsFor(p.RiskLevel, p.Blacklisted)
}

// OrderRequest is what the risk gate needs to know about an incoming order.
type OrderRequest struct {
	PreorderQuantity int
	DepositPercent   int
}

// CheckOrder validates an order against the profile. A failed check is a
// result, never an error.
func CheckOrder(p *models.CustomerRiskProfile, req OrderRequest, maxRestrictedQuantity int) models.OrderCheck {
	if maxRestrictedQuantity <= 0 {
		maxRestrictedQuantity = DefaultRestrictedMaxQuantity
	}
	check := models.OrderCheck{Passed: true, RiskLevel: p.RiskLevel, Restrictions: p.Restrictions}
	fail := func(reason string) {
		check.Passed = false
		check.Reasons = append(check.Reasons, reason)
	}

	if p.Blacklisted || p.HasRestriction(models.RestrictBlacklisted) {
		fail("customer is blacklisted")
	}
	if req.PreorderQuantity > 0 && p.HasRestriction(models.RestrictBlockPreorders) {
		fail("pre-orders are blocked for this customer")
	}
	if p.HasRestriction(models.RestrictLimitQuantity) && req.PreorderQuantity > maxRestrictedQuantity {
		fail(fmt.Sprintf("pre-order quantity %d exceeds limit %d", req.PreorderQuantity, maxRestrictedQuantity))
	}
	if req.PreorderQuantity > 0 && p.HasRestriction(models.RestrictFullDeposit) && req.DepositPercent < 100 {
		fail("full deposit required")
	}
	return check
}

// NewRiskProfile is the profile of a customer with no history.
func NewRiskProfile(email string) *models.CustomerRiskProfile {
	p := &models.CustomerRiskProfile{
		CustomerEmail:      email,
		DeviceFingerprints: []string{},
		ShippingAddresses:  []string{},
	}
	Recalculate(p)
	return p
}

// AddDistinct appends v if it is non-empty and not already present.
func AddDistinct(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
