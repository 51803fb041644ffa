package models

import (
	"time"

	"github.com/google/uuid"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

type TrustTier string

const (
	TrustNew     TrustTier = "new"
	TrustRegular TrustTier = "regular"
	TrustTrusted TrustTier = "trusted"
	TrustVIP     TrustTier = "vip"
)

type Restriction string

const (
	RestrictLimitQuantity      Restriction = "limit_preorder_quantity"
	RestrictFullDeposit        Restriction = "require_full_deposit"
	RestrictManualReleaseCheck Restriction = "manual_review_release"
	RestrictBlockPreorders     Restriction = "block_preorders"
	RestrictBlacklisted        Restriction = "blacklisted"
)

type CustomerRiskProfile struct {
	CustomerEmail      string        `json:"customer_email"`
	TotalOrders        int           `json:"total_orders"`
	CompletedOrders    int           `json:"completed_orders"`
	CancelledOrders    int           `json:"cancelled_orders"`
	DeviceFingerprints []string      `json:"device_fingerprints"`
	ShippingAddresses  []string      `json:"shipping_addresses"` // normalized address hashes
	RiskScore          float64       `json:"risk_score"`
	RiskLevel          RiskLevel     `json:"risk_level"`
	TrustTier          TrustTier     `json:"trust_tier"`
	Restrictions       []Restriction `json:"restrictions"`
	Blacklisted        bool          `json:"blacklisted"`
	BlacklistReason    string        `json:"blacklist_reason,omitempty"`
	BlacklistedBy      string        `json:"blacklisted_by,omitempty"`
	BlacklistedAt      *time.Time    `json:"blacklisted_at,omitempty"`
	Version            int64         `json:"version"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// HasRestriction reports whether r applies to the customer.
func (p *CustomerRiskProfile) HasRestriction(r Restriction) bool {
	for _, v := range p.Restrictions {
		if v == r {
			return true
		}
	}
	return false
}

// OrderCheck is the pass/fail outcome of validating an order against risk rules.
type OrderCheck struct {
	Passed       bool          `json:"passed"`
	Reasons      []string      `json:"reasons,omitempty"`
	RiskLevel    RiskLevel     `json:"risk_level"`
	Restrictions []Restriction `json:"restrictions,omitempty"`
}

// ProfileEntityID derives a stable audit entity id from a customer email.
func ProfileEntityID(email string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+email))
}
