package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/harvest-market/escrow/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultAuditLimit = 50

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

func (r *AuditRepo) Log(ctx context.Context, entry models.AuditLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_log (actor_email, actor_type, action, entity_type, entity_id, meta)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, strings.ToLower(entry.ActorEmail), entry.ActorType, entry.Action, entry.EntityType, entry.EntityID, entry.Meta)
	return err
}

// GetByEntity pages the trail for one wallet, order, ticket or profile, newest first.
func (r *AuditRepo) GetByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	return r.Search(ctx, models.AuditQuery{EntityType: entityType, EntityID: &entityID, Limit: limit, Offset: offset})
}

// Search pages the trail matching q, newest first.
func (r *AuditRepo) Search(ctx context.Context, q models.AuditQuery) ([]models.AuditLog, error) {
	where, args := auditWhere(q)
	limit := q.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	args = append(args, limit, q.Offset)
	sql := fmt.Sprintf(`
		SELECT id, actor_email, actor_type, action, entity_type, entity_id, meta, created_at
		FROM audit_log %s
		ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.AuditLog
	for rows.Next() {
		var l models.AuditLog
		if err := rows.Scan(&l.ID, &l.ActorEmail, &l.ActorType, &l.Action, &l.EntityType, &l.EntityID, &l.Meta, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// auditWhere renders the filter as a WHERE clause with positional args.
func auditWhere(q models.AuditQuery) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if q.EntityType != "" {
		add("entity_type = $%d", q.EntityType)
	}
	if q.EntityID != nil {
		add("entity_id = $%d", *q.EntityID)
	}
	if q.ActorEmail != "" {
		add("actor_email = $%d", strings.ToLower(q.ActorEmail))
	}
	if q.Action != "" {
		add("action = $%d", q.Action)
	}
	if !q.Since.IsZero() {
		add("created_at >= $%d", q.Since)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}
