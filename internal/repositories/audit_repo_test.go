package repositories

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harvest-market/escrow/internal/models"
	"github.com/stretchr/testify/require"
)

func TestAuditWhere(t *testing.T) {
	id := uuid.New()
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	where, args := auditWhere(models.AuditQuery{})
	require.Empty(t, where)
	require.Empty(t, args)

	where, args = auditWhere(models.AuditQuery{EntityType: "wallet", EntityID: &id})
	require.Equal(t, "WHERE entity_type = $1 AND entity_id = $2", where)
	require.Equal(t, []any{"wallet", id}, args)

	where, args = auditWhere(models.AuditQuery{ActorEmail: "Ops@Example.vn", Action: "refunded", Since: since})
	require.Equal(t, "WHERE actor_email = $1 AND action = $2 AND created_at >= $3", where)
	require.Equal(t, []any{"ops@example.vn", "refunded", since}, args)
}
