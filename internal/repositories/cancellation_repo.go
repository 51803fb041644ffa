package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/harvest-market/escrow/internal/apperr"
	"github.com/harvest-market/escrow/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CancellationRepo struct {
	pool *pgxpool.Pool
}

func NewCancellationRepo(pool *pgxpool.Pool) *CancellationRepo {
	return &CancellationRepo{pool: pool}
}

const cancellationColumns = `
	id, order_id, wallet_id, customer_email, requested_by, days_before_harvest,
	cancellation_reasons, original_deposit, refund_percentage, refund_amount, penalty_amount,
	refund_status, policy_tier, restored_item_ids, inventory_restored, refund_transaction_id,
	timeline, version, refunded_at, created_at, updated_at`

func scanCancellation(row pgx.Row) (*models.CancellationRecord, error) {
	var c models.CancellationRecord
	err := row.Scan(&c.ID, &c.OrderID, &c.WalletID, &c.CustomerEmail, &c.RequestedBy, &c.DaysBeforeHarvest,
		&c.CancellationReasons, &c.OriginalDeposit, &c.RefundPercentage, &c.RefundAmount, &c.PenaltyAmount,
		&c.RefundStatus, &c.PolicyTier, &c.RestoredItemIDs, &c.InventoryRestored, &c.RefundTransactionID,
		&c.Timeline, &c.Version, &c.RefundedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CancellationRepo) CreateCancellation(ctx context.Context, c *models.CancellationRecord) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.RestoredItemIDs == nil {
		c.RestoredItemIDs = []uuid.UUID{}
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO cancellations (
			id, order_id, wallet_id, customer_email, requested_by, days_before_harvest,
			cancellation_reasons, original_deposit, refund_percentage, refund_amount, penalty_amount,
			refund_status, policy_tier, restored_item_ids, inventory_restored, timeline
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING version, created_at, updated_at
	`, c.ID, c.OrderID, c.WalletID, c.CustomerEmail, c.RequestedBy, c.DaysBeforeHarvest,
		c.CancellationReasons, c.OriginalDeposit, c.RefundPercentage, c.RefundAmount, c.PenaltyAmount,
		c.RefundStatus, c.PolicyTier, c.RestoredItemIDs, c.InventoryRestored, c.Timeline,
	).Scan(&c.Version, &c.CreatedAt, &c.UpdatedAt)
	if isUniqueViolation(err) {
		return apperr.ErrDuplicate
	}
	return wrapErr(err, "cancellation", c.ID.String())
}

func (r *CancellationRepo) GetCancellation(ctx context.Context, id uuid.UUID) (*models.CancellationRecord, error) {
	c, err := scanCancellation(r.pool.QueryRow(ctx, `SELECT `+cancellationColumns+` FROM cancellations WHERE id = $1`, id))
	if err != nil {
		return nil, wrapErr(err, "cancellation", id.String())
	}
	return c, nil
}

func (r *CancellationRepo) GetCancellationByOrder(ctx context.Context, orderID uuid.UUID) (*models.CancellationRecord, error) {
	c, err := scanCancellation(r.pool.QueryRow(ctx, `SELECT `+cancellationColumns+` FROM cancellations WHERE order_id = $1`, orderID))
	if err != nil {
		return nil, wrapErr(err, "cancellation", "order "+orderID.String())
	}
	return c, nil
}

func (r *CancellationRepo) UpdateCancellation(ctx context.Context, c *models.CancellationRecord) error {
	err := r.pool.QueryRow(ctx, `
		UPDATE cancellations SET
			refund_status = $3, restored_item_ids = $4, inventory_restored = $5,
			refund_transaction_id = $6, timeline = $7, refunded_at = $8,
			version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at
	`, c.ID, c.Version, c.RefundStatus, c.RestoredItemIDs, c.InventoryRestored,
		c.RefundTransactionID, c.Timeline, c.RefundedAt,
	).Scan(&c.Version, &c.UpdatedAt)
	if err == nil {
		return nil
	}
	if _, getErr := r.GetCancellation(ctx, c.ID); getErr != nil {
		return getErr
	}
	return versionConflict(err)
}
