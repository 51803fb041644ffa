package policy

import (
	"reflect"
	"testing"

	"github.com/harvest-market/escrow/internal/models"
)

func TestRiskScore(t *testing.T) {
	tests := []struct {
		name    string
		profile models.CustomerRiskProfile
		want    float64
	}{
		{"no history", models.CustomerRiskProfile{}, 0},
		{"half cancelled", models.CustomerRiskProfile{TotalOrders: 10, CancelledOrders: 5}, 30},
		{"all cancelled, many devices", models.CustomerRiskProfile{
			TotalOrders: 4, CancelledOrders: 4,
			DeviceFingerprints: []string{"a", "b", "c", "d", "e", "f"},
		}, 80},
		{"address churn", models.CustomerRiskProfile{ShippingAddresses: []string{"a", "b", "c"}}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RiskScore(&tt.profile); got != tt.want {
				t.Errorf("RiskScore = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRiskLevelFor(t *testing.T) {
	tests := []struct {
		score float64
		want  models.RiskLevel
	}{
		{0, models.RiskLow},
		{24.99, models.RiskLow},
		{25, models.RiskMedium},
		{50, models.RiskHigh},
		{75, models.RiskCritical},
		{100, models.RiskCritical},
	}
	for _, tt := range tests {
		if got := RiskLevelFor(tt.score); got != tt.want {
			t.Errorf("RiskLevelFor(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestTrustTierFor(t *testing.T) {
	tests := []struct {
		completed int
		level     models.RiskLevel
		want      models.TrustTier
	}{
		{0, models.RiskLow, models.TrustNew},
		{3, models.RiskHigh, models.TrustRegular},
		{10, models.RiskMedium, models.TrustTrusted},
		{10, models.RiskHigh, models.TrustRegular},
		{30, models.RiskLow, models.TrustVIP},
		{30, models.RiskMedium, models.TrustTrusted},
	}
	for _, tt := range tests {
		if got := TrustTierFor(tt.completed, tt.level); got != tt.want {
			t.Errorf("TrustTierFor(%d, %s) = %s, want %s", tt.completed, tt.level, got, tt.want)
		}
	}
}

func TestRestrictionsFor(t *testing.T) {
	if got := RestrictionsFor(models.RiskLow, false); len(got) != 0 {
		t.Errorf("low = %v", got)
	}
	if got := RestrictionsFor(models.RiskHigh, false); !reflect.DeepEqual(got, []models.Restriction{
		models.RestrictLimitQuantity, models.RestrictManualReleaseCheck, models.RestrictFullDeposit,
	}) {
		t.Errorf("high = %v", got)
	}
	if got := RestrictionsFor(models.RiskCritical, false); !reflect.DeepEqual(got, []models.Restriction{models.RestrictBlockPreorders}) {
		t.Errorf("critical = %v", got)
	}
	if got := RestrictionsFor(models.RiskLow, true); !reflect.DeepEqual(got, []models.Restriction{models.RestrictBlockPreorders, models.RestrictBlacklisted}) {
		t.Errorf("blacklist should override, got %v", got)
	}
}

func TestCheckOrder(t *testing.T) {
	clean := NewRiskProfile("a@example.com")
	if c := CheckOrder(clean, OrderRequest{PreorderQuantity: 50, DepositPercent: 30}, 10); !c.Passed {
		t.Errorf("clean profile should pass: %+v", c)
	}

	high := &models.CustomerRiskProfile{RiskLevel: models.RiskHigh, Restrictions: RestrictionsFor(models.RiskHigh, false)}
	c := CheckOrder(high, OrderRequest{PreorderQuantity: 12, DepositPercent: 30}, 10)
	if c.Passed || len(c.Reasons) != 2 {
		t.Errorf("high risk check = %+v, want two reasons", c)
	}
	if c := CheckOrder(high, OrderRequest{PreorderQuantity: 5, DepositPercent: 100}, 10); !c.Passed {
		t.Errorf("restricted but compliant order should pass: %+v", c)
	}

	black := &models.CustomerRiskProfile{Blacklisted: true}
	Recalculate(black)
	if c := CheckOrder(black, OrderRequest{}, 10); c.Passed {
		t.Error("blacklisted customer must fail")
	}
}

func TestAddDistinct(t *testing.T) {
	list := AddDistinct(nil, "x")
	list = AddDistinct(list, "x")
	list = AddDistinct(list, "")
	list = AddDistinct(list, "y")
	if !reflect.DeepEqual(list, []string{"x", "y"}) {
		t.Errorf("AddDistinct = %v", list)
	}
}
