package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/harvest-market/escrow/internal/apperr"
	"github.com/harvest-market/escrow/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type LoyaltyRepo struct {
	pool *pgxpool.Pool
}

func NewLoyaltyRepo(pool *pgxpool.Pool) *LoyaltyRepo {
	return &LoyaltyRepo{pool: pool}
}

func (r *LoyaltyRepo) CreateVoucher(ctx context.Context, v *models.Voucher) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO vouchers (code, order_id, customer_email, amount, compensation_id, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, v.Code, v.OrderID, v.CustomerEmail, v.Amount, v.CompensationID, v.ExpiresAt).Scan(&v.CreatedAt)
	if isUniqueViolation(err) {
		return apperr.ErrDuplicate
	}
	return wrapErr(err, "voucher", v.Code)
}

func (r *LoyaltyRepo) GetVoucherByCompensation(ctx context.Context, compensationID uuid.UUID) (*models.Voucher, error) {
	var v models.Voucher
	err := r.pool.QueryRow(ctx, `
		SELECT code, order_id, customer_email, amount, compensation_id, expires_at, created_at
		FROM vouchers WHERE compensation_id = $1
	`, compensationID).Scan(&v.Code, &v.OrderID, &v.CustomerEmail, &v.Amount, &v.CompensationID, &v.ExpiresAt, &v.CreatedAt)
	if err != nil {
		return nil, wrapErr(err, "voucher", "compensation "+compensationID.String())
	}
	return &v, nil
}

// CreditPoints records the credit under its reference first; a replayed
// reference leaves the balance untouched.
func (r *LoyaltyRepo) CreditPoints(ctx context.Context, email string, points int64, reference string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO loyalty_point_credits (reference, customer_email, points) VALUES ($1, $2, $3)
		ON CONFLICT (reference) DO NOTHING
	`, reference, email, points)
	if err != nil {
		return 0, fmt.Errorf("record point credit: %w", err)
	}
	var balance int64
	if tag.RowsAffected() == 1 {
		err = tx.QueryRow(ctx, `
			INSERT INTO loyalty_points (customer_email, balance) VALUES ($1, $2)
			ON CONFLICT (customer_email) DO UPDATE SET balance = loyalty_points.balance + EXCLUDED.balance, updated_at = now()
			RETURNING balance
		`, email, points).Scan(&balance)
	} else {
		err = tx.QueryRow(ctx, `SELECT COALESCE((SELECT balance FROM loyalty_points WHERE customer_email = $1), 0)`, email).Scan(&balance)
	}
	if err != nil {
		return 0, err
	}
	return balance, tx.Commit(ctx)
}

func (r *LoyaltyRepo) PointsBalance(ctx context.Context, email string) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE((SELECT balance FROM loyalty_points WHERE customer_email = $1), 0)`, email).Scan(&balance)
	return balance, err
}
