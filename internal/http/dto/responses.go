package dto

import "github.com/harvest-market/escrow/internal/apperr"

type ErrorResponse struct {
	Error     string              `json:"error"`
	Code      string              `json:"code,omitempty"`
	Fields    []apperr.FieldError `json:"fields,omitempty"`
	RequestID string              `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type MeResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// AmountView pairs a raw VND amount with its rendering in the caller's language.
type AmountView struct {
	Amount  int64  `json:"amount"`
	Display string `json:"display"`
}

type RefundPolicyResponse struct {
	FreeCancelDays   int            `json:"free_cancel_days"`
	CancelFeePercent int            `json:"cancel_fee_percent"`
	Tiers            []RefundTier   `json:"tiers"`
	Example          *RefundExample `json:"example,omitempty"`
}

type RefundTier struct {
	Tier          string `json:"tier"`
	RefundPercent int    `json:"refund_percent"`
	Description   string `json:"description"`
}

type RefundExample struct {
	DaysBeforeHarvest int        `json:"days_before_harvest"`
	Reason            string     `json:"reason"`
	Tier              string     `json:"tier"`
	Refund            AmountView `json:"refund"`
	Penalty           AmountView `json:"penalty"`
}
