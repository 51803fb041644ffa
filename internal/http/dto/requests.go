package dto

import "time"

type HoldPaymentRequest struct {
	Amount     int64  `json:"amount"`
	PaymentRef string `json:"payment_ref"`
}

type SetConditionRequest struct {
	Condition string `json:"condition"`
	Value     bool   `json:"value"`
}

type CancelOrderRequest struct {
	Reasons []string `json:"reasons"`
	Note    string   `json:"note,omitempty"`
}

type CreateLotRequest struct {
	ProductName          string            `json:"product_name"`
	EstimatedHarvestDate time.Time         `json:"estimated_harvest_date"`
	BasePrice            int64             `json:"base_price"`
	PriceCurve           []PriceCurvePoint `json:"price_curve,omitempty"`
	DepositPercent       int               `json:"deposit_percent,omitempty"`
	AvailableQuantity    int               `json:"available_quantity"`
}

type PriceCurvePoint struct {
	MinSold   int   `json:"min_sold"`
	UnitPrice int64 `json:"unit_price"`
}

type RecordHarvestRequest struct {
	HarvestedAt *time.Time `json:"harvested_at,omitempty"` // defaults to now
}

type RecordFulfilmentRequest struct {
	FulfilledQuantity int `json:"fulfilled_quantity"`
}

type QuoteRequest struct {
	LotID          string `json:"lot_id"`
	Quantity       int    `json:"quantity"`
	DepositPercent int    `json:"deposit_percent,omitempty"`
}

type PlaceOrderItem struct {
	LotID       *string `json:"lot_id,omitempty"` // nil for in-stock lines
	ProductName string  `json:"product_name,omitempty"`
	Quantity    int     `json:"quantity"`
	UnitPrice   int64   `json:"unit_price,omitempty"`
}

type PlaceOrderRequest struct {
	CustomerEmail     string           `json:"customer_email,omitempty"` // admin only; otherwise the caller
	SellerEmail       string           `json:"seller_email"`
	Items             []PlaceOrderItem `json:"items"`
	DepositPercent    int              `json:"deposit_percent,omitempty"`
	DeviceFingerprint string           `json:"device_fingerprint,omitempty"`
	ShippingAddress   string           `json:"shipping_address,omitempty"`
}

type DetectRequest struct {
	Trigger string `json:"trigger"` // delay_threshold / shortage_threshold
}

type RejectCompensationRequest struct {
	Reason string `json:"reason"`
}

type CreateDisputeRequest struct {
	OrderID      string   `json:"order_id"`
	DisputeType  string   `json:"dispute_type"`
	Description  string   `json:"description"`
	EvidenceURLs []string `json:"evidence_urls,omitempty"`
}

type DisputeStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

type ResolutionOptionRequest struct {
	Type        string `json:"type"`
	Amount      int64  `json:"amount,omitempty"`
	Description string `json:"description"`
}

type ResolveDisputeRequest struct {
	OptionID string `json:"option_id"`
	Note     string `json:"note,omitempty"`
}

type InternalNoteRequest struct {
	Note string `json:"note"`
}

type BlacklistRequest struct {
	Reason string `json:"reason"`
}

type ValidateOrderRequest struct {
	CustomerEmail    string `json:"customer_email"`
	PreorderQuantity int    `json:"preorder_quantity"`
	DepositPercent   int    `json:"deposit_percent"`
}
