package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID         uuid.UUID  `json:"id"`
	ActorEmail string     `json:"actor_email"`
	ActorType  string     `json:"actor_type"` // customer/seller/admin/system
	Action     string     `json:"action"`
	EntityType string     `json:"entity_type"`
	EntityID   *uuid.UUID `json:"entity_id,omitempty"`
	Meta       any        `json:"meta,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// AuditQuery narrows the audit trail. Empty fields match everything.
type AuditQuery struct {
	EntityType string
	EntityID   *uuid.UUID
	ActorEmail string
	Action     string
	Since      time.Time
	Limit      int
	Offset     int
}

func (q AuditQuery) Matches(e AuditLog) bool {
	switch {
	case q.EntityType != "" && e.EntityType != q.EntityType:
		return false
	case q.EntityID != nil && (e.EntityID == nil || *e.EntityID != *q.EntityID):
		return false
	case q.ActorEmail != "" && !strings.EqualFold(e.ActorEmail, q.ActorEmail):
		return false
	case q.Action != "" && e.Action != q.Action:
		return false
	case !q.Since.IsZero() && e.CreatedAt.Before(q.Since):
		return false
	}
	return true
}

// Actor identifies who triggered a mutating call.
type Actor struct {
	Email string `json:"email"`
	Type  string `json:"type"`
}

const (
	ActorTypeCustomer = "customer"
	ActorTypeSeller   = "seller"
	ActorTypeAdmin    = "admin"
	ActorTypeSystem   = "system"
)

// SystemActor is used by background jobs.
var SystemActor = Actor{Email: "system@escrow", Type: ActorTypeSystem}

// TimelineEntry is one append-only audit line on a cancellation or dispute.
type TimelineEntry struct {
	At     time.Time `json:"at"`
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
	Note   string    `json:"note,omitempty"`
}
