// Package apperr is the error taxonomy shared by the escrow workflows.
//
// Validation errors mean the input must be fixed, state errors mean the
// aggregate is in the wrong status for the operation, not-found errors mean
// the referenced id does not exist. Conditions that are merely "not ready"
// (unmet release gates, compensation awaiting approval) are not errors and
// never appear here.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindState      Kind = "state"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindInternal   Kind = "internal"
)

// ErrConcurrentUpdate is returned by stores when the expected aggregate version is stale.
var ErrConcurrentUpdate = errors.New("concurrent update: aggregate version changed")

// ErrDuplicate is returned when a uniqueness key (compensation tier, refund reference) already exists.
var ErrDuplicate = errors.New("duplicate record")

// ErrInsufficientInventory is returned when a lot cannot cover a reservation.
var ErrInsufficientInventory = errors.New("insufficient lot inventory")

// FieldError carries the rendered English message. Format and Args keep the
// unrendered form so the HTTP layer can translate it.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Format  string `json:"-"`
	Args    []any  `json:"-"`
}

type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add appends a field error.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Addf appends a field error whose message takes arguments.
func (e *ValidationError) Addf(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...), Format: format, Args: args})
}

// OrNil returns nil when no field errors were collected.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Invalid builds a single-field validation error.
func Invalid(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

func Invalidf(field, format string, args ...any) *ValidationError {
	v := &ValidationError{}
	v.Addf(field, format, args...)
	return v
}

type InvalidStateError struct {
	Entity    string
	ID        string
	Status    string
	Operation string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s %s: cannot %s in status %s", e.Entity, e.ID, e.Operation, e.Status)
}

// WalletLockedError is returned for money movements on a released or cancelled wallet.
type WalletLockedError struct {
	WalletID string
	Status   string
}

func (e *WalletLockedError) Error() string {
	return fmt.Sprintf("wallet %s is locked (status %s)", e.WalletID, e.Status)
}

type InvalidAmountError struct {
	Amount int64
	Limit  int64
	Reason string
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid amount %d: %s (limit %d)", e.Amount, e.Reason, e.Limit)
}

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func NotFound(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// KindOf classifies err for callers that branch on the taxonomy.
func KindOf(err error) Kind {
	var (
		ve *ValidationError
		ae *InvalidAmountError
		se *InvalidStateError
		le *WalletLockedError
		ne *NotFoundError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve), errors.As(err, &ae):
		return KindValidation
	case errors.As(err, &se), errors.As(err, &le):
		return KindState
	case errors.As(err, &ne):
		return KindNotFound
	case errors.Is(err, ErrConcurrentUpdate), errors.Is(err, ErrDuplicate), errors.Is(err, ErrInsufficientInventory):
		return KindConflict
	default:
		return KindInternal
	}
}

// FieldsOf returns the structured field list for validation-kind errors.
func FieldsOf(err error) []FieldError {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Fields
	}
	var ae *InvalidAmountError
	if errors.As(err, &ae) {
		return []FieldError{{Field: "amount", Message: ae.Reason}}
	}
	return nil
}
