package models

import (
	"time"

	"github.com/google/uuid"
)

type TriggerType string

const (
	TriggerDelay    TriggerType = "delay_threshold"
	TriggerShortage TriggerType = "shortage_threshold"
)

type CompensationType string

const (
	CompensationVoucher              CompensationType = "voucher"
	CompensationPoints               CompensationType = "points"
	CompensationPartialRefund        CompensationType = "partial_refund"
	CompensationDiscountCurrentOrder CompensationType = "discount_current_order"
)

type CompensationUnit string

const (
	UnitPercent CompensationUnit = "percent"
	UnitFixed   CompensationUnit = "fixed"
	UnitPoints  CompensationUnit = "points"
)

type CompensationStatus string

const (
	CompensationPending  CompensationStatus = "pending"
	CompensationApproved CompensationStatus = "approved"
	CompensationRejected CompensationStatus = "rejected"
	CompensationApplied  CompensationStatus = "applied"
)

var ValidCompensationTransitions = map[CompensationStatus][]CompensationStatus{
	CompensationPending:  {CompensationApproved, CompensationRejected},
	CompensationApproved: {CompensationApplied},
	CompensationRejected: {},
	CompensationApplied:  {},
}

func IsValidCompensationTransition(from, to CompensationStatus) bool {
	for _, s := range ValidCompensationTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CompensationRule is one row of the rule table. Threshold is in days for
// delay rules and in shortfall percent for shortage rules.
type CompensationRule struct {
	ID               string           `json:"id" yaml:"id"`
	TriggerType      TriggerType      `json:"trigger_type" yaml:"trigger_type"`
	Threshold        int              `json:"threshold" yaml:"threshold"`
	CompensationType CompensationType `json:"compensation_type" yaml:"compensation_type"`
	Unit             CompensationUnit `json:"compensation_unit" yaml:"compensation_unit"`
	Value            int64            `json:"value" yaml:"value"`
	AutoApproved     bool             `json:"auto_approved" yaml:"auto_approved"`
	Description      string           `json:"description,omitempty" yaml:"description"`
}

type TriggerDetails struct {
	LotID           *uuid.UUID `json:"lot_id,omitempty"`
	DelayDays       int        `json:"delay_days,omitempty"`
	ShortagePercent int        `json:"shortage_percent,omitempty"`
	Threshold       int        `json:"threshold"`
	OrderValue      int64      `json:"order_value"`
	DetectedAt      time.Time  `json:"detected_at"`
}

type CompensationRecord struct {
	ID                uuid.UUID          `json:"id"`
	OrderID           uuid.UUID          `json:"order_id"`
	CustomerEmail     string             `json:"customer_email"`
	TriggerType       TriggerType        `json:"trigger_type"`
	RuleID            string             `json:"rule_id"`
	TriggerDetails    TriggerDetails     `json:"trigger_details"`
	CompensationType  CompensationType   `json:"compensation_type"`
	CompensationUnit  CompensationUnit   `json:"compensation_unit"`
	CompensationValue int64              `json:"compensation_value"`
	Status            CompensationStatus `json:"status"`
	AutoApproved      bool               `json:"auto_approved"`
	ReviewedBy        string             `json:"reviewed_by,omitempty"`
	RejectionReason   string             `json:"rejection_reason,omitempty"`
	VoucherCode       *string            `json:"voucher_code,omitempty"`
	TransactionID     *uuid.UUID         `json:"transaction_id,omitempty"`
	Version           int64              `json:"version"`
	AppliedAt         *time.Time         `json:"applied_at,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

type Voucher struct {
	Code           string    `json:"code"`
	OrderID        uuid.UUID `json:"order_id"`
	CustomerEmail  string    `json:"customer_email"`
	Amount         int64     `json:"amount"`
	CompensationID uuid.UUID `json:"compensation_id"`
	ExpiresAt      time.Time `json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// ApplyResult is the outcome of ApplyCompensation. Pending == true means the
// record still awaits an admin decision; that is not an error.
type ApplyResult struct {
	Applied bool                `json:"applied"`
	Pending bool                `json:"pending"`
	Reason  string              `json:"reason,omitempty"`
	Record  *CompensationRecord `json:"record"`
}
