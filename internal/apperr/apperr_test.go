package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Kind
	}{
		{"nil", nil, ""},
		{"validation", Invalid("amount", "must be positive"), KindValidation},
		{"amount", &InvalidAmountError{Amount: 5, Limit: 1, Reason: "exceeds total held"}, KindValidation},
		{"state", &InvalidStateError{Entity: "wallet", Status: "refunded", Operation: "hold deposit"}, KindState},
		{"locked", &WalletLockedError{Status: "released_to_seller"}, KindState},
		{"not found", NotFound("wallet", "x"), KindNotFound},
		{"wrapped not found", fmt.Errorf("load: %w", NotFound("ticket", "DSP-1")), KindNotFound},
		{"conflict", fmt.Errorf("apply: %w", ErrConcurrentUpdate), KindConflict},
		{"duplicate", ErrDuplicate, KindConflict},
		{"inventory", fmt.Errorf("reserve: %w", ErrInsufficientInventory), KindConflict},
		{"other", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.expected {
				t.Errorf("KindOf(%v) = %q, want %q", tt.err, got, tt.expected)
			}
		})
	}
}

func TestValidationOrNil(t *testing.T) {
	v := &ValidationError{}
	if v.OrNil() != nil {
		t.Fatal("empty validation error should be nil")
	}
	v.Add("reasons", "at least one reason is required")
	err := v.OrNil()
	if err == nil {
		t.Fatal("expected error")
	}
	fields := FieldsOf(err)
	if len(fields) != 1 || fields[0].Field != "reasons" {
		t.Errorf("unexpected fields %v", fields)
	}
}

func TestAddfKeepsFormat(t *testing.T) {
	err := Invalidf("customer_description", "must be at least %d characters", 20)
	fields := FieldsOf(err)
	if len(fields) != 1 {
		t.Fatalf("unexpected fields %v", fields)
	}
	f := fields[0]
	if f.Message != "must be at least 20 characters" {
		t.Errorf("Message = %q", f.Message)
	}
	if f.Format != "must be at least %d characters" || len(f.Args) != 1 {
		t.Errorf("format not kept: %q %v", f.Format, f.Args)
	}
	if got := err.Error(); got != "validation failed: customer_description: must be at least 20 characters" {
		t.Errorf("Error() = %q", got)
	}
}
