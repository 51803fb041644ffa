package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/harvest-market/escrow/internal/apperr"
	"github.com/harvest-market/escrow/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type LotRepo struct {
	pool *pgxpool.Pool
}

func NewLotRepo(pool *pgxpool.Pool) *LotRepo {
	return &LotRepo{pool: pool}
}

const lotColumns = `
	id, product_name, estimated_harvest_date, actual_harvest_date, base_price,
	price_curve, deposit_percent, available_quantity, sold_quantity, updated_at`

func scanLot(row pgx.Row) (*models.Lot, error) {
	var l models.Lot
	err := row.Scan(&l.ID, &l.ProductName, &l.EstimatedHarvestDate, &l.ActualHarvestDate, &l.BasePrice,
		&l.PriceCurve, &l.DepositPercent, &l.AvailableQuantity, &l.SoldQuantity, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *LotRepo) CreateLot(ctx context.Context, l *models.Lot) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.PriceCurve == nil {
		l.PriceCurve = []models.PricePoint{}
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO lots (id, product_name, estimated_harvest_date, base_price, price_curve, deposit_percent, available_quantity, sold_quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING updated_at
	`, l.ID, l.ProductName, l.EstimatedHarvestDate, l.BasePrice, l.PriceCurve, l.DepositPercent, l.AvailableQuantity, l.SoldQuantity,
	).Scan(&l.UpdatedAt)
	return wrapErr(err, "lot", l.ID.String())
}

func (r *LotRepo) GetLot(ctx context.Context, id uuid.UUID) (*models.Lot, error) {
	l, err := scanLot(r.pool.QueryRow(ctx, `SELECT `+lotColumns+` FROM lots WHERE id = $1`, id))
	if err != nil {
		return nil, wrapErr(err, "lot", id.String())
	}
	return l, nil
}

func (r *LotRepo) GetLots(ctx context.Context, ids []uuid.UUID) ([]models.Lot, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+lotColumns+` FROM lots WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Lot
	for rows.Next() {
		l, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// ReserveLot is a conditional decrement; it never oversells.
func (r *LotRepo) ReserveLot(ctx context.Context, id uuid.UUID, qty int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE lots SET available_quantity = available_quantity - $2, sold_quantity = sold_quantity + $2, updated_at = now()
		WHERE id = $1 AND available_quantity >= $2
	`, id, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetLot(ctx, id); err != nil {
			return err
		}
		return apperr.ErrInsufficientInventory
	}
	return nil
}

// RestoreLot claims the order item in lot_restorations and returns its
// quantity to the lot in the same transaction. A second call for the same
// item reports false and changes nothing.
func (r *LotRepo) RestoreLot(ctx context.Context, id, itemID uuid.UUID, qty int) (bool, error) {
	restored := false
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		claim, err := tx.Exec(ctx, `
			INSERT INTO lot_restorations (order_item_id, lot_id, quantity) VALUES ($1, $2, $3)
			ON CONFLICT (order_item_id) DO NOTHING
		`, itemID, id, qty)
		if err != nil {
			return err
		}
		if claim.RowsAffected() == 0 {
			return nil
		}
		tag, err := tx.Exec(ctx, `
			UPDATE lots SET available_quantity = available_quantity + $2, sold_quantity = GREATEST(sold_quantity - $2, 0), updated_at = now()
			WHERE id = $1
		`, id, qty)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("lot", id.String())
		}
		restored = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return restored, nil
}

func (r *LotRepo) RecordHarvest(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE lots SET actual_harvest_date = $2, updated_at = now() WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("lot", id.String())
	}
	return nil
}
