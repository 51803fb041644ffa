package models

import (
	"time"

	"github.com/google/uuid"
)

type CancelReason string

const (
	CancelChangedMind      CancelReason = "changed_mind"
	CancelFoundBetterPrice CancelReason = "found_better_price"
	CancelOrderedByMistake CancelReason = "ordered_by_mistake"
	CancelHarvestTooLate   CancelReason = "harvest_too_late"
	CancelFinancialReason  CancelReason = "financial_reason"
	CancelSellerCancel     CancelReason = "seller_cancel"
	CancelOther            CancelReason = "other"
)

var AllCancelReasons = []CancelReason{
	CancelChangedMind, CancelFoundBetterPrice, CancelOrderedByMistake,
	CancelHarvestTooLate, CancelFinancialReason, CancelSellerCancel, CancelOther,
}

func IsValidCancelReason(r CancelReason) bool {
	for _, v := range AllCancelReasons {
		if v == r {
			return true
		}
	}
	return false
}

type RefundTier string

const (
	TierSellerCancel RefundTier = "seller_cancel"
	Tier1            RefundTier = "tier_1"
	Tier2            RefundTier = "tier_2"
	Tier3            RefundTier = "tier_3"
	Tier4            RefundTier = "tier_4"
)

type RefundStatus string

const (
	RefundStatusPending     RefundStatus = "pending"
	RefundStatusCompleted   RefundStatus = "completed"
	RefundStatusNotRequired RefundStatus = "not_required"
)

type CancellationRecord struct {
	ID                  uuid.UUID       `json:"id"`
	OrderID             uuid.UUID       `json:"order_id"`
	WalletID            *uuid.UUID      `json:"wallet_id,omitempty"`
	CustomerEmail       string          `json:"customer_email"`
	RequestedBy         string          `json:"requested_by"`
	DaysBeforeHarvest   int             `json:"days_before_harvest"`
	CancellationReasons []CancelReason  `json:"cancellation_reasons"`
	OriginalDeposit     int64           `json:"original_deposit"`
	RefundPercentage    int             `json:"refund_percentage"`
	RefundAmount        int64           `json:"refund_amount"`
	PenaltyAmount       int64           `json:"penalty_amount"`
	RefundStatus        RefundStatus    `json:"refund_status"`
	PolicyTier          RefundTier      `json:"policy_tier"`
	RestoredItemIDs     []uuid.UUID     `json:"restored_item_ids,omitempty"`
	InventoryRestored   bool            `json:"inventory_restored"`
	RefundTransactionID *uuid.UUID      `json:"refund_transaction_id,omitempty"`
	Timeline            []TimelineEntry `json:"timeline"`
	Version             int64           `json:"version"`
	RefundedAt          *time.Time      `json:"refunded_at,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// IsItemRestored reports whether the line's reservation was already returned to its lot.
func (c *CancellationRecord) IsItemRestored(itemID uuid.UUID) bool {
	for _, id := range c.RestoredItemIDs {
		if id == itemID {
			return true
		}
	}
	return false
}
