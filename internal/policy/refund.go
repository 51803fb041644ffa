// Package policy holds the pure calculators of the escrow engine: refund
// tiers, pre-order pricing, compensation-rule matching and risk scoring.
// Nothing here performs I/O.
package policy

import (
	"time"

	"github.com/harvest-market/escrow/internal/apperr"
	"github.com/harvest-market/escrow/internal/models"
	"github.com/harvest-market/escrow/internal/money"
)

const (
	DefaultFreeCancelDays   = 7
	DefaultCancelFeePercent = 20

	tier2MinDays       = 3
	tier3MinDays       = 1
	tier3RefundPercent = 50
)

type RefundPolicy struct {
	FreeCancelDays   int `json:"free_cancel_days"`
	CancelFeePercent int `json:"cancel_fee_percent"`
}

func DefaultRefundPolicy() RefundPolicy {
	return RefundPolicy{FreeCancelDays: DefaultFreeCancelDays, CancelFeePercent: DefaultCancelFeePercent}
}

// normalized fills zero values with defaults and clamps the fee to [0,100].
func (p RefundPolicy) normalized() RefundPolicy {
	if p.FreeCancelDays <= 0 {
		p.FreeCancelDays = DefaultFreeCancelDays
	}
	if p.CancelFeePercent < 0 {
		p.CancelFeePercent = 0
	}
	if p.CancelFeePercent > 100 {
		p.CancelFeePercent = 100
	}
	return p
}

type RefundQuote struct {
	RefundPercentage int               `json:"refund_percentage"`
	RefundAmount     int64             `json:"refund_amount"`
	PenaltyAmount    int64             `json:"penalty_amount"`
	Tier             models.RefundTier `json:"tier"`
}

// CalculatePolicyRefund applies the tiered cancellation policy.
// RefundAmount + PenaltyAmount == originalAmount for every input.
func CalculatePolicyRefund(originalAmount int64, policy RefundPolicy, daysBeforeHarvest int, reason models.CancelReason) RefundQuote {
	policy = policy.normalized()

	var pct int
	var tier models.RefundTier
	switch {
	case reason == models.CancelSellerCancel:
		pct, tier = 100, models.TierSellerCancel
	case daysBeforeHarvest >= policy.FreeCancelDays:
		pct, tier = 100, models.Tier1
	case daysBeforeHarvest >= tier2MinDays:
		pct, tier = 100-policy.CancelFeePercent, models.Tier2
	case daysBeforeHarvest >= tier3MinDays:
		pct, tier = tier3RefundPercent, models.Tier3
	default:
		pct, tier = 0, models.Tier4
	}

	if originalAmount < 0 {
		originalAmount = 0
	}
	refund, penalty := money.Split(originalAmount, pct)
	return RefundQuote{RefundPercentage: pct, RefundAmount: refund, PenaltyAmount: penalty, Tier: tier}
}

// TierRule is one row of the refund table. MinDays is the inclusive lower
// bound on days before harvest; the seller row applies at any distance.
type TierRule struct {
	Tier          models.RefundTier `json:"tier"`
	RefundPercent int               `json:"refund_percent"`
	MinDays       int               `json:"min_days"`
}

// Tiers lists the table CalculatePolicyRefund applies, most generous first.
func (p RefundPolicy) Tiers() []TierRule {
	p = p.normalized()
	return []TierRule{
		{Tier: models.TierSellerCancel, RefundPercent: 100},
		{Tier: models.Tier1, RefundPercent: 100, MinDays: p.FreeCancelDays},
		{Tier: models.Tier2, RefundPercent: 100 - p.CancelFeePercent, MinDays: tier2MinDays},
		{Tier: models.Tier3, RefundPercent: tier3RefundPercent, MinDays: tier3MinDays},
		{Tier: models.Tier4, RefundPercent: 0},
	}
}

// PrimaryReason picks the reason that drives the policy: a seller
// cancellation anywhere in the list wins, otherwise the first reason.
func PrimaryReason(reasons []models.CancelReason) models.CancelReason {
	for _, r := range reasons {
		if r == models.CancelSellerCancel {
			return r
		}
	}
	if len(reasons) == 0 {
		return models.CancelOther
	}
	return reasons[0]
}

// DaysBeforeHarvest counts calendar days from now to harvest in loc.
// Harvest day is 0, past harvests are negative.
func DaysBeforeHarvest(now, harvest time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	n := now.In(loc)
	h := harvest.In(loc)
	today := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
	day := time.Date(h.Year(), h.Month(), h.Day(), 0, 0, 0, 0, time.UTC)
	return int(day.Sub(today).Hours() / 24)
}

// EarliestHarvest returns the earliest estimated harvest date among lots.
func EarliestHarvest(lots []models.Lot) (time.Time, bool) {
	var earliest time.Time
	for i, l := range lots {
		if i == 0 || l.EstimatedHarvestDate.Before(earliest) {
			earliest = l.EstimatedHarvestDate
		}
	}
	return earliest, len(lots) > 0
}

// ValidateRefundAmount fails if amount <= 0 or amount > totalHeld.
func ValidateRefundAmount(amount, totalHeld int64) error {
	if amount <= 0 {
		return &apperr.InvalidAmountError{Amount: amount, Limit: totalHeld, Reason: "amount must be positive"}
	}
	if amount > totalHeld {
		return &apperr.InvalidAmountError{Amount: amount, Limit: totalHeld, Reason: "amount exceeds total held"}
	}
	return nil
}

// CanProcessRefund fails for locked wallets and wallets holding nothing.
func CanProcessRefund(w *models.Wallet) error {
	if w.Status.IsLocked() {
		return &apperr.WalletLockedError{WalletID: w.ID.String(), Status: string(w.Status)}
	}
	if w.TotalHeld <= 0 {
		return &apperr.InvalidAmountError{Amount: 0, Limit: w.TotalHeld, Reason: "wallet holds no funds"}
	}
	return nil
}
