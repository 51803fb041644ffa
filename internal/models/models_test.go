package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestIsValidWalletTransition(t *testing.T) {
	tests := []struct {
		from     WalletStatus
		to       WalletStatus
		expected bool
	}{
		// Happy path
		{WalletPendingDeposit, WalletDepositHeld, true},
		{WalletDepositHeld, WalletFullyHeld, true},
		{WalletFullyHeld, WalletReleasedToSeller, true},

		// Refund paths
		{WalletDepositHeld, WalletPartialRefunded, true},
		{WalletDepositHeld, WalletRefunded, true},
		{WalletFullyHeld, WalletPartialRefunded, true},
		{WalletPartialRefunded, WalletPartialRefunded, true},
		{WalletPartialRefunded, WalletRefunded, true},
		{WalletPendingDeposit, WalletCancelled, true},

		// Invalid transitions
		{WalletPendingDeposit, WalletFullyHeld, false},
		{WalletDepositHeld, WalletReleasedToSeller, false},
		{WalletFullyHeld, WalletDepositHeld, false},
		{WalletReleasedToSeller, WalletRefunded, false},
		{WalletRefunded, WalletPartialRefunded, false},
		{WalletCancelled, WalletDepositHeld, false},
		{"nonexistent", WalletDepositHeld, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := IsValidWalletTransition(tt.from, tt.to); got != tt.expected {
				t.Errorf("IsValidWalletTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.expected)
			}
		})
	}
}

func TestAllWalletStatusesHaveTransitionEntry(t *testing.T) {
	for _, status := range AllWalletStatuses {
		if _, ok := ValidWalletTransitions[status]; !ok {
			t.Errorf("status %q missing from ValidWalletTransitions map", status)
		}
	}
}

func TestWalletLocked(t *testing.T) {
	locked := map[WalletStatus]bool{WalletReleasedToSeller: true, WalletCancelled: true}
	for _, status := range AllWalletStatuses {
		if status.IsLocked() != locked[status] {
			t.Errorf("IsLocked(%q) = %v", status, status.IsLocked())
		}
	}
}

func TestReleaseConditionsUnmet(t *testing.T) {
	rc := ReleaseConditions{}
	if got := len(rc.Unmet()); got != 4 {
		t.Fatalf("empty conditions: %d unmet, want 4", got)
	}

	rc = ReleaseConditions{HarvestConfirmed: true, DeliveryConfirmed: true, DisputeResolved: true, InspectionPeriodPassed: true}
	if unmet := rc.Unmet(); len(unmet) != 0 {
		t.Errorf("inspection period should stand in for acceptance, unmet = %v", unmet)
	}

	rc.InspectionPeriodPassed = false
	unmet := rc.Unmet()
	if len(unmet) != 1 || unmet[0] != ConditionCustomerAccepted {
		t.Errorf("unmet = %v, want [customer_accepted]", unmet)
	}

	if rc.Set("unknown", true) {
		t.Error("Set should reject unknown condition")
	}
}

func TestIsValidDisputeTransition(t *testing.T) {
	tests := []struct {
		from     DisputeStatus
		to       DisputeStatus
		expected bool
	}{
		{DisputeOpen, DisputeResolutionProposed, true},
		{DisputeOpen, DisputeClosed, true},
		{DisputeResolutionProposed, DisputeResolved, true},
		{DisputeResolutionProposed, DisputeResolutionProposed, true},
		{DisputeOpen, DisputeResolved, false},
		{DisputeResolved, DisputeOpen, false},
		{DisputeResolved, DisputeClosed, false},
		{DisputeClosed, DisputeOpen, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := IsValidDisputeTransition(tt.from, tt.to); got != tt.expected {
				t.Errorf("IsValidDisputeTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.expected)
			}
		})
	}
}

func TestTerminalStatusesHaveNoTransitions(t *testing.T) {
	for _, status := range []WalletStatus{WalletReleasedToSeller, WalletRefunded, WalletCancelled} {
		if n := len(ValidWalletTransitions[status]); n != 0 {
			t.Errorf("terminal wallet status %q has %d transitions", status, n)
		}
	}
	for _, status := range []DisputeStatus{DisputeResolved, DisputeClosed} {
		if !status.IsTerminal() {
			t.Errorf("dispute status %q should be terminal", status)
		}
	}
	for _, status := range []CompensationStatus{CompensationRejected, CompensationApplied} {
		if n := len(ValidCompensationTransitions[status]); n != 0 {
			t.Errorf("terminal compensation status %q has %d transitions", status, n)
		}
	}
}

func TestTransactionSign(t *testing.T) {
	in := []TransactionType{TxDepositIn, TxFinalPaymentIn}
	out := []TransactionType{TxRefundOut, TxPartialRefundOut, TxCommissionDeduct, TxSellerPayout}
	for _, tt := range in {
		if tt.Sign() != 1 {
			t.Errorf("%q should be inbound", tt)
		}
	}
	for _, tt := range out {
		if tt.Sign() != -1 {
			t.Errorf("%q should be outbound", tt)
		}
	}
}

func TestPageCursorPrecedes(t *testing.T) {
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	if !(PageCursor{}).Precedes(at, low) {
		t.Error("zero cursor must precede every row")
	}
	c := CursorAt(at, low)
	if c.Precedes(at, low) {
		t.Error("cursor must not precede its own row")
	}
	if !c.Precedes(at, high) || c.Precedes(at.Add(-time.Second), high) {
		t.Error("ties break on id, earlier rows never follow")
	}
	if !KeysetLess(at, high, at.Add(time.Nanosecond), low) {
		t.Error("created_at orders before id")
	}
}

func TestCanSettleForfeit(t *testing.T) {
	for _, s := range []WalletStatus{WalletDepositHeld, WalletFullyHeld, WalletPartialRefunded} {
		if !s.CanSettleForfeit() {
			t.Errorf("%s should settle", s)
		}
	}
	for _, s := range []WalletStatus{WalletPendingDeposit, WalletReleasedToSeller, WalletRefunded, WalletCancelled, "nonexistent"} {
		if s.CanSettleForfeit() {
			t.Errorf("%s should not settle", s)
		}
	}
}
