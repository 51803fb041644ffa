package models

import (
	"time"

	"github.com/google/uuid"
)

// Order and lot records are owned by the storefront; the engine reads them
// and updates only the fields listed in the collaborator contract.

type OrderStatus string

const (
	OrderPending          OrderStatus = "pending"
	OrderConfirmed        OrderStatus = "confirmed"
	OrderProcessing       OrderStatus = "processing"
	OrderShipping         OrderStatus = "shipping"
	OrderDelivered        OrderStatus = "delivered"
	OrderCancelled        OrderStatus = "cancelled"
	OrderReturnedRefunded OrderStatus = "returned_refunded"
)

// IsCancellable reports whether a customer or seller may still cancel.
func (s OrderStatus) IsCancellable() bool {
	switch s {
	case OrderPending, OrderConfirmed, OrderProcessing:
		return true
	case OrderShipping, OrderDelivered, OrderCancelled, OrderReturnedRefunded:
		return false
	}
	return false
}

type PaymentStatus string

const (
	PaymentUnpaid        PaymentStatus = "unpaid"
	PaymentDepositPaid   PaymentStatus = "deposit_paid"
	PaymentPaid          PaymentStatus = "paid"
	PaymentRefundPending PaymentStatus = "refund_pending"
	PaymentRefunded      PaymentStatus = "refunded"
	PaymentCancelled     PaymentStatus = "cancelled"
)

type Order struct {
	ID                uuid.UUID     `json:"id"`
	CustomerEmail     string        `json:"customer_email"`
	SellerEmail       string        `json:"seller_email"`
	Status            OrderStatus   `json:"order_status"`
	PaymentStatus     PaymentStatus `json:"payment_status"`
	TotalAmount       int64         `json:"total_amount"`
	DepositAmount     int64         `json:"deposit_amount"`
	DeviceFingerprint string        `json:"device_fingerprint,omitempty"`
	ShippingAddress   string        `json:"shipping_address,omitempty"`
	Items             []OrderItem   `json:"items"`
	DeliveredAt       *time.Time    `json:"delivered_at,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

type OrderItem struct {
	ID                uuid.UUID  `json:"id"`
	OrderID           uuid.UUID  `json:"order_id"`
	LotID             *uuid.UUID `json:"lot_id,omitempty"`
	ProductName       string     `json:"product_name"`
	IsPreorder        bool       `json:"is_preorder"`
	Quantity          int        `json:"quantity"`
	UnitPrice         int64      `json:"unit_price"`
	FulfilledQuantity *int       `json:"fulfilled_quantity,omitempty"` // set once the harvest is allocated
}

// PreorderItems returns the lines reserved against a lot.
func (o *Order) PreorderItems() []OrderItem {
	var items []OrderItem
	for _, it := range o.Items {
		if it.IsPreorder && it.LotID != nil {
			items = append(items, it)
		}
	}
	return items
}

// PricePoint is one step of a lot's price curve: once SoldQuantity reaches
// MinSold the unit price becomes UnitPrice.
type PricePoint struct {
	MinSold   int   `json:"min_sold" yaml:"min_sold"`
	UnitPrice int64 `json:"unit_price" yaml:"unit_price"`
}

type Lot struct {
	ID                   uuid.UUID    `json:"id"`
	ProductName          string       `json:"product_name"`
	EstimatedHarvestDate time.Time    `json:"estimated_harvest_date"`
	ActualHarvestDate    *time.Time   `json:"actual_harvest_date,omitempty"`
	BasePrice            int64        `json:"base_price"`
	PriceCurve           []PricePoint `json:"price_curve,omitempty"`
	DepositPercent       int          `json:"deposit_percent"`
	AvailableQuantity    int          `json:"available_quantity"`
	SoldQuantity         int          `json:"sold_quantity"`
	UpdatedAt            time.Time    `json:"updated_at"`
}
