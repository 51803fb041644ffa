package policy

import (
	"sort"

	"github.com/harvest-market/escrow/internal/apperr"
	"github.com/harvest-market/escrow/internal/models"
	"github.com/harvest-market/escrow/internal/money"
)

type PreorderQuote struct {
	LotID          string `json:"lot_id"`
	Quantity       int    `json:"quantity"`
	UnitPrice      int64  `json:"unit_price"`
	Subtotal       int64  `json:"subtotal"`
	DepositPercent int    `json:"deposit_percent"`
	Deposit        int64  `json:"deposit"`
	FinalPayment   int64  `json:"final_payment"`
}

// UnitPrice returns the price-curve step reached by the lot's sold quantity,
// falling back to the base price below the first step.
func UnitPrice(lot models.Lot) int64 {
	if len(lot.PriceCurve) == 0 {
		return lot.BasePrice
	}
	curve := make([]models.PricePoint, len(lot.PriceCurve))
	copy(curve, lot.PriceCurve)
	sort.Slice(curve, func(i, j int) bool { return curve[i].MinSold < curve[j].MinSold })

	price := lot.BasePrice
	for _, p := range curve {
		if lot.SoldQuantity >= p.MinSold {
			price = p.UnitPrice
		}
	}
	return price
}

// QuotePreorder prices quantity units of a lot and splits deposit/final payment.
// depositPercent <= 0 uses the lot's own deposit percent.
func QuotePreorder(lot models.Lot, quantity, depositPercent int) (*PreorderQuote, error) {
	if depositPercent <= 0 {
		depositPercent = lot.DepositPercent
	}

	v := &apperr.ValidationError{}
	if quantity <= 0 {
		v.Add("quantity", "must be positive")
	} else if quantity > lot.AvailableQuantity {
		v.Add("quantity", "exceeds available lot quantity")
	}
	if depositPercent <= 0 || depositPercent > 100 {
		v.Add("deposit_percent", "must be between 1 and 100")
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	unit := UnitPrice(lot)
	subtotal := unit * int64(quantity)
	deposit := money.PercentInt(subtotal, depositPercent)
	return &PreorderQuote{
		LotID:          lot.ID.String(),
		Quantity:       quantity,
		UnitPrice:      unit,
		Subtotal:       subtotal,
		DepositPercent: depositPercent,
		Deposit:        deposit,
		FinalPayment:   subtotal - deposit,
	}, nil
}
