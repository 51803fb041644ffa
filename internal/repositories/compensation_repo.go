package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/harvest-market/escrow/internal/apperr"
	"github.com/harvest-market/escrow/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CompensationRepo struct {
	pool *pgxpool.Pool
}

func NewCompensationRepo(pool *pgxpool.Pool) *CompensationRepo {
	return &CompensationRepo{pool: pool}
}

const compensationColumns = `
	id, order_id, customer_email, trigger_type, rule_id, trigger_details,
	compensation_type, compensation_unit, compensation_value, status, auto_approved,
	reviewed_by, rejection_reason, voucher_code, transaction_id, version,
	applied_at, created_at, updated_at`

func scanCompensation(row pgx.Row) (*models.CompensationRecord, error) {
	var c models.CompensationRecord
	err := row.Scan(&c.ID, &c.OrderID, &c.CustomerEmail, &c.TriggerType, &c.RuleID, &c.TriggerDetails,
		&c.CompensationType, &c.CompensationUnit, &c.CompensationValue, &c.Status, &c.AutoApproved,
		&c.ReviewedBy, &c.RejectionReason, &c.VoucherCode, &c.TransactionID, &c.Version,
		&c.AppliedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCompensation relies on the (order_id, trigger_type, rule_id) unique
// key so concurrent detector runs cannot record a tier twice.
func (r *CompensationRepo) CreateCompensation(ctx context.Context, c *models.CompensationRecord) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO compensations (
			id, order_id, customer_email, trigger_type, rule_id, trigger_details,
			compensation_type, compensation_unit, compensation_value, status, auto_approved
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING version, created_at, updated_at
	`, c.ID, c.OrderID, c.CustomerEmail, c.TriggerType, c.RuleID, c.TriggerDetails,
		c.CompensationType, c.CompensationUnit, c.CompensationValue, c.Status, c.AutoApproved,
	).Scan(&c.Version, &c.CreatedAt, &c.UpdatedAt)
	if isUniqueViolation(err) {
		return apperr.ErrDuplicate
	}
	return wrapErr(err, "compensation", c.ID.String())
}

func (r *CompensationRepo) GetCompensation(ctx context.Context, id uuid.UUID) (*models.CompensationRecord, error) {
	c, err := scanCompensation(r.pool.QueryRow(ctx, `SELECT `+compensationColumns+` FROM compensations WHERE id = $1`, id))
	if err != nil {
		return nil, wrapErr(err, "compensation", id.String())
	}
	return c, nil
}

func (r *CompensationRepo) list(ctx context.Context, query string, args ...any) ([]models.CompensationRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.CompensationRecord
	for rows.Next() {
		c, err := scanCompensation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *CompensationRepo) ListCompensationsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.CompensationRecord, error) {
	return r.list(ctx, `SELECT `+compensationColumns+` FROM compensations WHERE order_id = $1 ORDER BY created_at`, orderID)
}

func (r *CompensationRepo) ListCompensationsByStatus(ctx context.Context, status models.CompensationStatus, limit int) ([]models.CompensationRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.list(ctx, `SELECT `+compensationColumns+` FROM compensations WHERE status = $1 ORDER BY created_at LIMIT $2`, status, limit)
}

func (r *CompensationRepo) UpdateCompensation(ctx context.Context, c *models.CompensationRecord) error {
	err := r.pool.QueryRow(ctx, `
		UPDATE compensations SET
			status = $3, reviewed_by = $4, rejection_reason = $5, voucher_code = $6,
			transaction_id = $7, applied_at = $8, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at
	`, c.ID, c.Version, c.Status, c.ReviewedBy, c.RejectionReason, c.VoucherCode, c.TransactionID, c.AppliedAt,
	).Scan(&c.Version, &c.UpdatedAt)
	if err == nil {
		return nil
	}
	if _, getErr := r.GetCompensation(ctx, c.ID); getErr != nil {
		return getErr
	}
	return versionConflict(err)
}
