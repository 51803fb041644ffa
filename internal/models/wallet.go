package models

import (
	"time"

	"github.com/google/uuid"
)

type WalletStatus string

const (
	WalletPendingDeposit   WalletStatus = "pending_deposit"
	WalletDepositHeld      WalletStatus = "deposit_held"
	WalletFullyHeld        WalletStatus = "fully_held"
	WalletReleasedToSeller WalletStatus = "released_to_seller"
	WalletRefunded         WalletStatus = "refunded"
	WalletPartialRefunded  WalletStatus = "partial_refunded"
	WalletCancelled        WalletStatus = "cancelled"
)

var AllWalletStatuses = []WalletStatus{
	WalletPendingDeposit, WalletDepositHeld, WalletFullyHeld,
	WalletReleasedToSeller, WalletRefunded, WalletPartialRefunded, WalletCancelled,
}

// Valid wallet transitions: from -> []to.
// partial_refunded -> partial_refunded is the only self loop.
var ValidWalletTransitions = map[WalletStatus][]WalletStatus{
	WalletPendingDeposit:   {WalletDepositHeld, WalletCancelled},
	WalletDepositHeld:      {WalletFullyHeld, WalletPartialRefunded, WalletRefunded},
	WalletFullyHeld:        {WalletReleasedToSeller, WalletPartialRefunded, WalletRefunded},
	WalletPartialRefunded:  {WalletPartialRefunded, WalletRefunded, WalletReleasedToSeller},
	WalletReleasedToSeller: {},
	WalletRefunded:         {},
	WalletCancelled:        {},
}

func IsValidWalletTransition(from, to WalletStatus) bool {
	for _, s := range ValidWalletTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanSettleForfeit reports statuses from which the balance a customer forfeited
// on cancellation may be paid out without the delivery release gates.
func (s WalletStatus) CanSettleForfeit() bool {
	switch s {
	case WalletDepositHeld, WalletFullyHeld, WalletPartialRefunded:
		return true
	case WalletPendingDeposit, WalletReleasedToSeller, WalletRefunded, WalletCancelled:
		return false
	}
	return false
}

// IsLocked reports statuses in which no money may leave the wallet.
func (s WalletStatus) IsLocked() bool {
	switch s {
	case WalletReleasedToSeller, WalletCancelled:
		return true
	case WalletPendingDeposit, WalletDepositHeld, WalletFullyHeld, WalletRefunded, WalletPartialRefunded:
		return false
	}
	return true
}

type ReleaseCondition string

const (
	ConditionHarvestConfirmed       ReleaseCondition = "harvest_confirmed"
	ConditionDeliveryConfirmed      ReleaseCondition = "delivery_confirmed"
	ConditionCustomerAccepted       ReleaseCondition = "customer_accepted"
	ConditionDisputeResolved        ReleaseCondition = "dispute_resolved"
	ConditionInspectionPeriodPassed ReleaseCondition = "inspection_period_passed"
)

var AllReleaseConditions = []ReleaseCondition{
	ConditionHarvestConfirmed, ConditionDeliveryConfirmed, ConditionCustomerAccepted,
	ConditionDisputeResolved, ConditionInspectionPeriodPassed,
}

func IsValidReleaseCondition(c ReleaseCondition) bool {
	for _, v := range AllReleaseConditions {
		if v == c {
			return true
		}
	}
	return false
}

type ReleaseConditions struct {
	HarvestConfirmed       bool `json:"harvest_confirmed"`
	DeliveryConfirmed      bool `json:"delivery_confirmed"`
	CustomerAccepted       bool `json:"customer_accepted"`
	DisputeResolved        bool `json:"dispute_resolved"`
	InspectionPeriodPassed bool `json:"inspection_period_passed"`
}

// Set merges one condition; it reports false for unknown names.
func (rc *ReleaseConditions) Set(c ReleaseCondition, v bool) bool {
	switch c {
	case ConditionHarvestConfirmed:
		rc.HarvestConfirmed = v
	case ConditionDeliveryConfirmed:
		rc.DeliveryConfirmed = v
	case ConditionCustomerAccepted:
		rc.CustomerAccepted = v
	case ConditionDisputeResolved:
		rc.DisputeResolved = v
	case ConditionInspectionPeriodPassed:
		rc.InspectionPeriodPassed = v
	default:
		return false
	}
	return true
}

// Unmet lists the gates blocking release. Customer acceptance may be
// replaced by an elapsed inspection period.
func (rc ReleaseConditions) Unmet() []ReleaseCondition {
	var unmet []ReleaseCondition
	if !rc.HarvestConfirmed {
		unmet = append(unmet, ConditionHarvestConfirmed)
	}
	if !rc.DeliveryConfirmed {
		unmet = append(unmet, ConditionDeliveryConfirmed)
	}
	if !rc.CustomerAccepted && !rc.InspectionPeriodPassed {
		unmet = append(unmet, ConditionCustomerAccepted)
	}
	if !rc.DisputeResolved {
		unmet = append(unmet, ConditionDisputeResolved)
	}
	return unmet
}

type Wallet struct {
	ID                 uuid.UUID         `json:"id"`
	OrderID            uuid.UUID         `json:"order_id"`
	CustomerEmail      string            `json:"customer_email"`
	DepositHeld        int64             `json:"deposit_held"`
	FinalPaymentHeld   int64             `json:"final_payment_held"`
	TotalHeld          int64             `json:"total_held"`
	RefundedAmount     int64             `json:"refunded_amount"`
	SellerPayoutAmount int64             `json:"seller_payout_amount"`
	PlatformCommission int64             `json:"platform_commission"`
	Status             WalletStatus      `json:"status"`
	ReleaseConditions  ReleaseConditions `json:"release_conditions"`
	Version            int64             `json:"version"`
	ReleasedAt         *time.Time        `json:"released_at,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

type TransactionType string

const (
	TxDepositIn        TransactionType = "deposit_in"
	TxFinalPaymentIn   TransactionType = "final_payment_in"
	TxRefundOut        TransactionType = "refund_out"
	TxPartialRefundOut TransactionType = "partial_refund_out"
	TxCommissionDeduct TransactionType = "commission_deduct"
	TxSellerPayout     TransactionType = "seller_payout"
)

// Sign returns +1 for money entering escrow and -1 for money leaving it.
func (t TransactionType) Sign() int64 {
	switch t {
	case TxDepositIn, TxFinalPaymentIn:
		return 1
	case TxRefundOut, TxPartialRefundOut, TxCommissionDeduct, TxSellerPayout:
		return -1
	}
	return 0
}

const TransactionStatusCompleted = "completed"

// Transaction is an immutable ledger entry. BalanceAfter == BalanceBefore + Amount.
type Transaction struct {
	ID            uuid.UUID       `json:"id"`
	WalletID      uuid.UUID       `json:"wallet_id"`
	OrderID       uuid.UUID       `json:"order_id"`
	Sequence      int64           `json:"sequence"`
	Type          TransactionType `json:"transaction_type"`
	Amount        int64           `json:"amount"`
	BalanceBefore int64           `json:"balance_before"`
	BalanceAfter  int64           `json:"balance_after"`
	Status        string          `json:"status"`
	InitiatedBy   string          `json:"initiated_by"`
	Reason        string          `json:"reason,omitempty"`
	Reference     string          `json:"reference,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type RefundType string

const (
	RefundFull    RefundType = "full"
	RefundPartial RefundType = "partial"
)

// ReleaseResult is the outcome of a release attempt. Released == false is not an error.
type ReleaseResult struct {
	Released        bool               `json:"released"`
	UnmetConditions []ReleaseCondition `json:"unmet_conditions,omitempty"`
	Reason          string             `json:"reason,omitempty"`
	Commission      int64              `json:"commission"`
	Payout          int64              `json:"payout"`
	Wallet          *Wallet            `json:"wallet"`
}

type Reconciliation struct {
	WalletID   uuid.UUID `json:"wallet_id"`
	Consistent bool      `json:"consistent"`
	LedgerSum  int64     `json:"ledger_sum"`
	TotalHeld  int64     `json:"total_held"`
	Entries    int       `json:"entries"`
	Problems   []string  `json:"problems,omitempty"`
}
