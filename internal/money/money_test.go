package money

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
)

func TestPercent(t *testing.T) {
	tests := []struct {
		name     string
		amount   int64
		pct      decimal.Decimal
		expected int64
	}{
		{"commission 3%", 2000000, decimal.NewFromInt(3), 60000},
		{"voucher 10%", 2000000, decimal.NewFromInt(10), 200000},
		{"half rounds up", 5, decimal.NewFromInt(50), 3},
		{"below half rounds down", 1, decimal.NewFromInt(40), 0},
		{"fractional rate", 1000, decimal.NewFromFloat(2.5), 25},
		{"zero", 0, decimal.NewFromInt(20), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Percent(tt.amount, tt.pct); got != tt.expected {
				t.Errorf("Percent(%d, %s) = %d, want %d", tt.amount, tt.pct, got, tt.expected)
			}
		})
	}
}

func TestSplitBounds(t *testing.T) {
	if r, p := Split(1000, 100); r != 1000 || p != 0 {
		t.Errorf("Split 100%% = %d/%d", r, p)
	}
	if r, p := Split(1000, 0); r != 0 || p != 1000 {
		t.Errorf("Split 0%% = %d/%d", r, p)
	}
	if r, p := Split(999, 80); r != 799 || p != 200 {
		t.Errorf("Split(999, 80) = %d/%d, want 799/200", r, p)
	}
}

func TestSplitSumsToTotal(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("refund + penalty == total", prop.ForAll(
		func(total int64, pct int) bool {
			refund, penalty := Split(total, pct)
			return refund+penalty == total && refund >= 0 && penalty >= 0
		},
		gen.Int64Range(0, 10_000_000_000),
		gen.IntRange(-10, 110),
	))

	properties.TestingRun(t)
}

func TestFormatVND(t *testing.T) {
	if got := FormatVND(1500000, language.Vietnamese); got != "1.500.000đ" {
		t.Errorf("FormatVND vi = %q", got)
	}
	if got := FormatVND(1500000, language.English); got != "1,500,000đ" {
		t.Errorf("FormatVND en = %q", got)
	}
}
