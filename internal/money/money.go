// Package money holds the single rounding policy for currency amounts.
// All amounts are whole VND units stored as int64.
package money

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var hundred = decimal.NewFromInt(100)

// Percent returns amount*pct/100 rounded half-up to a whole currency unit.
func Percent(amount int64, pct decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(pct).Div(hundred).Round(0).IntPart()
}

// PercentInt is Percent for integral percentages.
func PercentInt(amount int64, pct int) int64 {
	return Percent(amount, decimal.NewFromInt(int64(pct)))
}

// PercentFloat is Percent for configuration-supplied rates such as a 2.5% commission.
func PercentFloat(amount int64, pct float64) int64 {
	return Percent(amount, decimal.NewFromFloat(pct))
}

// Split divides total into a refund share of refundPct percent and the penalty remainder.
// refund+penalty == total always holds; the rounding remainder lands in penalty.
func Split(total int64, refundPct int) (refund, penalty int64) {
	switch {
	case refundPct >= 100:
		return total, 0
	case refundPct <= 0:
		return 0, total
	}
	refund = PercentInt(total, refundPct)
	if refund > total {
		refund = total
	}
	return refund, total - refund
}

var printers = map[language.Tag]*message.Printer{
	language.Vietnamese: message.NewPrinter(language.Vietnamese),
	language.English:    message.NewPrinter(language.English),
}

// FormatVND renders 1500000 as "1.500.000đ" (vi) or "1,500,000đ" (en).
func FormatVND(amount int64, lang language.Tag) string {
	p, ok := printers[lang]
	if !ok {
		p = printers[language.Vietnamese]
	}
	return p.Sprintf("%dđ", amount)
}
