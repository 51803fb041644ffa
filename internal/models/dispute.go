package models

import (
	"time"

	"github.com/google/uuid"
)

type DisputeStatus string

const (
	DisputeOpen               DisputeStatus = "open"
	DisputeResolutionProposed DisputeStatus = "resolution_proposed"
	DisputeResolved           DisputeStatus = "resolved"
	DisputeClosed             DisputeStatus = "closed"
)

// Valid dispute transitions: from -> []to. Extra options may be proposed
// while a ticket is already in resolution_proposed.
var ValidDisputeTransitions = map[DisputeStatus][]DisputeStatus{
	DisputeOpen:               {DisputeResolutionProposed, DisputeClosed},
	DisputeResolutionProposed: {DisputeResolutionProposed, DisputeResolved},
	DisputeResolved:           {},
	DisputeClosed:             {},
}

func IsValidDisputeTransition(from, to DisputeStatus) bool {
	for _, s := range ValidDisputeTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s DisputeStatus) IsTerminal() bool {
	return len(ValidDisputeTransitions[s]) == 0
}

type DisputeType string

const (
	DisputeQualityIssue     DisputeType = "quality_issue"
	DisputeWrongItem        DisputeType = "wrong_item"
	DisputeMissingItem      DisputeType = "missing_item"
	DisputeDamaged          DisputeType = "damaged_in_transit"
	DisputeLateDelivery     DisputeType = "late_delivery"
	DisputeQuantityShortage DisputeType = "quantity_shortage"
	DisputeOther            DisputeType = "other"
)

var AllDisputeTypes = []DisputeType{
	DisputeQualityIssue, DisputeWrongItem, DisputeMissingItem, DisputeDamaged,
	DisputeLateDelivery, DisputeQuantityShortage, DisputeOther,
}

func IsValidDisputeType(t DisputeType) bool {
	for _, v := range AllDisputeTypes {
		if v == t {
			return true
		}
	}
	return false
}

type ResolutionType string

const (
	ResolutionRefundFull    ResolutionType = "refund_full"
	ResolutionRefundPartial ResolutionType = "refund_partial"
	ResolutionReplacement   ResolutionType = "replacement"
	ResolutionVoucher       ResolutionType = "voucher"
	ResolutionNoAction      ResolutionType = "no_action"
)

// MovesMoney reports whether resolving with this remedy refunds escrow.
func (t ResolutionType) MovesMoney() bool {
	switch t {
	case ResolutionRefundFull, ResolutionRefundPartial:
		return true
	case ResolutionReplacement, ResolutionVoucher, ResolutionNoAction:
		return false
	}
	return false
}

func IsValidResolutionType(t ResolutionType) bool {
	switch t {
	case ResolutionRefundFull, ResolutionRefundPartial, ResolutionReplacement, ResolutionVoucher, ResolutionNoAction:
		return true
	}
	return false
}

type ResolutionOption struct {
	ID          uuid.UUID      `json:"id"`
	Type        ResolutionType `json:"type"`
	Amount      int64          `json:"amount,omitempty"`
	Description string         `json:"description"`
	ProposedBy  string         `json:"proposed_by"`
	ProposedAt  time.Time      `json:"proposed_at"`
}

type AppliedResolution struct {
	Option        ResolutionOption `json:"option"`
	AppliedBy     string           `json:"applied_by"`
	AppliedAt     time.Time        `json:"applied_at"`
	Note          string           `json:"note,omitempty"`
	TransactionID *uuid.UUID       `json:"transaction_id,omitempty"`
}

type InternalNote struct {
	Author string    `json:"author"`
	Note   string    `json:"note"`
	At     time.Time `json:"at"`
}

type DisputeTicket struct {
	ID                  uuid.UUID          `json:"id"`
	TicketNumber        string             `json:"ticket_number"`
	OrderID             uuid.UUID          `json:"order_id"`
	WalletID            *uuid.UUID         `json:"wallet_id,omitempty"`
	CustomerEmail       string             `json:"customer_email"`
	DisputeType         DisputeType        `json:"dispute_type"`
	CustomerDescription string             `json:"customer_description"`
	EvidenceURLs        []string           `json:"evidence_urls,omitempty"`
	Status              DisputeStatus      `json:"status"`
	ResolutionOptions   []ResolutionOption `json:"resolution_options"`
	ResolutionApplied   *AppliedResolution `json:"resolution_applied,omitempty"`
	Timeline            []TimelineEntry    `json:"timeline"`
	InternalNotes       []InternalNote     `json:"internal_notes"`
	Version             int64              `json:"version"`
	ResolvedAt          *time.Time         `json:"resolved_at,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// Option finds a proposed remedy by id.
func (t *DisputeTicket) Option(id uuid.UUID) (ResolutionOption, bool) {
	for _, o := range t.ResolutionOptions {
		if o.ID == id {
			return o, true
		}
	}
	return ResolutionOption{}, false
}
