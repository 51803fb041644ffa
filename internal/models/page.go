package models

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// PageCursor is a keyset position over (created_at, id). The zero value
// starts from the first row.
type PageCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

func CursorAt(createdAt time.Time, id uuid.UUID) PageCursor {
	return PageCursor{CreatedAt: createdAt, ID: id}
}

// Precedes reports whether the row (createdAt, id) sorts after the cursor.
// Ids compare bytewise, the same order Postgres uses for uuid.
func (c PageCursor) Precedes(createdAt time.Time, id uuid.UUID) bool {
	if !createdAt.Equal(c.CreatedAt) {
		return createdAt.After(c.CreatedAt)
	}
	return bytes.Compare(c.ID[:], id[:]) < 0
}

// KeysetLess orders rows by (created_at, id).
func KeysetLess(aAt time.Time, aID uuid.UUID, bAt time.Time, bID uuid.UUID) bool {
	if !aAt.Equal(bAt) {
		return aAt.Before(bAt)
	}
	return bytes.Compare(aID[:], bID[:]) < 0
}
