package policy

import (
	"errors"
	"testing"
	"time"

	"github.com/harvest-market/escrow/internal/apperr"
	"github.com/harvest-market/escrow/internal/models"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestCalculatePolicyRefund(t *testing.T) {
	policy := DefaultRefundPolicy()
	tests := []struct {
		name    string
		amount  int64
		days    int
		reason  models.CancelReason
		pct     int
		refund  int64
		penalty int64
		tier    models.RefundTier
	}{
		{"seller cancel on harvest day", 1000000, 0, models.CancelSellerCancel, 100, 1000000, 0, models.TierSellerCancel},
		{"seller cancel after harvest", 1000000, -5, models.CancelSellerCancel, 100, 1000000, 0, models.TierSellerCancel},
		{"free window", 1000000, 7, models.CancelChangedMind, 100, 1000000, 0, models.Tier1},
		{"fee window five days", 1000000, 5, models.CancelChangedMind, 80, 800000, 200000, models.Tier2},
		{"fee window lower bound", 1000000, 3, models.CancelFinancialReason, 80, 800000, 200000, models.Tier2},
		{"half refund", 1000000, 2, models.CancelOther, 50, 500000, 500000, models.Tier3},
		{"half refund odd amount", 999, 1, models.CancelOther, 50, 500, 499, models.Tier3},
		{"harvest day", 1000000, 0, models.CancelChangedMind, 0, 0, 1000000, models.Tier4},
		{"past harvest", 1000000, -2, models.CancelChangedMind, 0, 0, 1000000, models.Tier4},
		{"zero amount", 0, 10, models.CancelChangedMind, 100, 0, 0, models.Tier1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := CalculatePolicyRefund(tt.amount, policy, tt.days, tt.reason)
			if q.RefundPercentage != tt.pct || q.RefundAmount != tt.refund || q.PenaltyAmount != tt.penalty || q.Tier != tt.tier {
				t.Errorf("got %+v, want pct=%d refund=%d penalty=%d tier=%s", q, tt.pct, tt.refund, tt.penalty, tt.tier)
			}
		})
	}
}

func TestCalculatePolicyRefundCustomPolicy(t *testing.T) {
	q := CalculatePolicyRefund(1000000, RefundPolicy{FreeCancelDays: 14, CancelFeePercent: 30}, 10, models.CancelChangedMind)
	if q.Tier != models.Tier2 || q.RefundPercentage != 70 || q.RefundAmount != 700000 {
		t.Errorf("custom policy quote = %+v", q)
	}
}

func TestTiersAgreeWithCalculator(t *testing.T) {
	policy := RefundPolicy{FreeCancelDays: 10, CancelFeePercent: 25}
	for _, rule := range policy.Tiers() {
		if rule.Tier == models.TierSellerCancel {
			continue
		}
		q := CalculatePolicyRefund(1000000, policy, rule.MinDays, models.CancelChangedMind)
		if q.Tier != rule.Tier || q.RefundPercentage != rule.RefundPercent {
			t.Errorf("tier %s at %d days: calculator gave %s/%d%%", rule.Tier, rule.MinDays, q.Tier, q.RefundPercentage)
		}
	}
}

func TestCalculatePolicyRefundProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)
	policy := DefaultRefundPolicy()

	amounts := gen.Int64Range(0, 5_000_000_000)
	days := gen.IntRange(-60, 120)

	properties.Property("seller cancel always refunds in full", prop.ForAll(
		func(amount int64, d int) bool {
			q := CalculatePolicyRefund(amount, policy, d, models.CancelSellerCancel)
			return q.RefundPercentage == 100 && q.RefundAmount == amount && q.PenaltyAmount == 0
		},
		amounts, days,
	))

	properties.Property("refund + penalty == original", prop.ForAll(
		func(amount int64, d int) bool {
			q := CalculatePolicyRefund(amount, policy, d, models.CancelChangedMind)
			return q.RefundAmount+q.PenaltyAmount == amount
		},
		amounts, days,
	))

	properties.Property("tier percentages follow the day bands", prop.ForAll(
		func(amount int64, d int) bool {
			q := CalculatePolicyRefund(amount, policy, d, models.CancelFoundBetterPrice)
			switch {
			case d >= 7:
				return q.RefundPercentage == 100 && q.PenaltyAmount == 0
			case d >= 3:
				return q.RefundPercentage == 100-policy.CancelFeePercent
			case d >= 1:
				return q.RefundPercentage == 50
			default:
				return q.RefundPercentage == 0 && q.PenaltyAmount == amount
			}
		},
		amounts, days,
	))

	properties.TestingRun(t)
}

func TestPrimaryReason(t *testing.T) {
	if got := PrimaryReason(nil); got != models.CancelOther {
		t.Errorf("empty = %s", got)
	}
	if got := PrimaryReason([]models.CancelReason{models.CancelChangedMind, models.CancelSellerCancel}); got != models.CancelSellerCancel {
		t.Errorf("seller cancel should win, got %s", got)
	}
	if got := PrimaryReason([]models.CancelReason{models.CancelHarvestTooLate, models.CancelChangedMind}); got != models.CancelHarvestTooLate {
		t.Errorf("first reason should win, got %s", got)
	}
}

func TestDaysBeforeHarvest(t *testing.T) {
	loc, _ := time.LoadLocation("Asia/Ho_Chi_Minh")
	if loc == nil {
		loc = time.FixedZone("ICT", 7*3600)
	}
	now := time.Date(2026, 3, 1, 23, 30, 0, 0, loc)
	tests := []struct {
		harvest time.Time
		want    int
	}{
		{time.Date(2026, 3, 6, 0, 5, 0, 0, loc), 5},
		{time.Date(2026, 3, 1, 8, 0, 0, 0, loc), 0},
		{time.Date(2026, 2, 27, 8, 0, 0, 0, loc), -2},
		// 17:00 UTC on Mar 1 is already Mar 2 in ICT
		{time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC), 1},
	}
	for _, tt := range tests {
		if got := DaysBeforeHarvest(now, tt.harvest, loc); got != tt.want {
			t.Errorf("DaysBeforeHarvest(%s) = %d, want %d", tt.harvest, got, tt.want)
		}
	}
}

func TestEarliestHarvest(t *testing.T) {
	if _, ok := EarliestHarvest(nil); ok {
		t.Error("no lots should report false")
	}
	a := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	b := time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC)
	got, ok := EarliestHarvest([]models.Lot{{EstimatedHarvestDate: a}, {EstimatedHarvestDate: b}})
	if !ok || !got.Equal(b) {
		t.Errorf("EarliestHarvest = %s, %v", got, ok)
	}
}

func TestValidateRefundAmount(t *testing.T) {
	tests := []struct {
		amount, held int64
		ok           bool
	}{
		{100, 100, true},
		{1, 100, true},
		{0, 100, false},
		{-5, 100, false},
		{101, 100, false},
	}
	for _, tt := range tests {
		err := ValidateRefundAmount(tt.amount, tt.held)
		if (err == nil) != tt.ok {
			t.Errorf("ValidateRefundAmount(%d, %d) = %v", tt.amount, tt.held, err)
		}
		if err != nil && apperr.KindOf(err) != apperr.KindValidation {
			t.Errorf("expected validation kind, got %s", apperr.KindOf(err))
		}
	}
}

func TestCanProcessRefund(t *testing.T) {
	var locked *apperr.WalletLockedError
	for _, s := range []models.WalletStatus{models.WalletReleasedToSeller, models.WalletCancelled} {
		err := CanProcessRefund(&models.Wallet{Status: s, TotalHeld: 1000})
		if !errors.As(err, &locked) {
			t.Errorf("status %s: expected WalletLockedError, got %v", s, err)
		}
	}
	if err := CanProcessRefund(&models.Wallet{Status: models.WalletDepositHeld, TotalHeld: 0}); err == nil {
		t.Error("empty wallet must not be refundable")
	}
	if err := CanProcessRefund(&models.Wallet{Status: models.WalletFullyHeld, TotalHeld: 10}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
