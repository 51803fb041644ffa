package policy

import (
	"testing"

	"github.com/google/uuid"
	"github.com/harvest-market/escrow/internal/apperr"
	"github.com/harvest-market/escrow/internal/models"
)

func testLot() models.Lot {
	return models.Lot{
		ID:                uuid.New(),
		BasePrice:         100000,
		DepositPercent:    30,
		AvailableQuantity: 20,
		PriceCurve: []models.PricePoint{
			{MinSold: 100, UnitPrice: 80000},
			{MinSold: 50, UnitPrice: 90000},
		},
	}
}

func TestUnitPrice(t *testing.T) {
	tests := []struct {
		sold int
		want int64
	}{
		{0, 100000},
		{49, 100000},
		{50, 90000},
		{150, 80000},
	}
	for _, tt := range tests {
		lot := testLot()
		lot.SoldQuantity = tt.sold
		if got := UnitPrice(lot); got != tt.want {
			t.Errorf("UnitPrice(sold=%d) = %d, want %d", tt.sold, got, tt.want)
		}
	}
}

func TestQuotePreorder(t *testing.T) {
	q, err := QuotePreorder(testLot(), 3, 0)
	if err != nil {
		t.Fatalf("QuotePreorder: %v", err)
	}
	if q.Subtotal != 300000 || q.DepositPercent != 30 || q.Deposit != 90000 || q.FinalPayment != 210000 {
		t.Errorf("quote = %+v", q)
	}

	_, err = QuotePreorder(testLot(), 25, 150)
	fields := apperr.FieldsOf(err)
	if len(fields) != 2 {
		t.Fatalf("expected 2 field errors, got %v", fields)
	}
}
