package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harvest-market/escrow/internal/apperr"
	"github.com/harvest-market/escrow/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OrderRepo struct {
	pool *pgxpool.Pool
}

func NewOrderRepo(pool *pgxpool.Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

const orderColumns = `
	id, customer_email, seller_email, order_status, payment_status, total_amount,
	deposit_amount, device_fingerprint, shipping_address, delivered_at, created_at, updated_at`

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(&o.ID, &o.CustomerEmail, &o.SellerEmail, &o.Status, &o.PaymentStatus, &o.TotalAmount,
		&o.DepositAmount, &o.DeviceFingerprint, &o.ShippingAddress, &o.DeliveredAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepo) CreateOrder(ctx context.Context, o *models.Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO orders (
			id, customer_email, seller_email, order_status, payment_status,
			total_amount, deposit_amount, device_fingerprint, shipping_address
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, o.ID, o.CustomerEmail, o.SellerEmail, o.Status, o.PaymentStatus,
		o.TotalAmount, o.DepositAmount, o.DeviceFingerprint, o.ShippingAddress,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return wrapErr(err, "order", o.ID.String())
	}

	for i := range o.Items {
		it := &o.Items[i]
		if it.ID == uuid.Nil {
			it.ID = uuid.New()
		}
		it.OrderID = o.ID
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, lot_id, product_name, is_preorder, quantity, unit_price, fulfilled_quantity)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, it.ID, it.OrderID, it.LotID, it.ProductName, it.IsPreorder, it.Quantity, it.UnitPrice, it.FulfilledQuantity); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (r *OrderRepo) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return nil, wrapErr(err, "order", id.String())
	}
	items, err := r.loadItems(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	o.Items = items[id]
	return o, nil
}

func (r *OrderRepo) loadItems(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID][]models.OrderItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, lot_id, product_name, is_preorder, quantity, unit_price, fulfilled_quantity
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, id
	`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[uuid.UUID][]models.OrderItem{}
	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.LotID, &it.ProductName, &it.IsPreorder, &it.Quantity, &it.UnitPrice, &it.FulfilledQuantity); err != nil {
			return nil, err
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, rows.Err()
}

func (r *OrderRepo) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus, payment models.PaymentStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE orders SET order_status = $2, payment_status = $3, updated_at = now() WHERE id = $1
	`, id, status, payment)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("order", id.String())
	}
	return nil
}

func (r *OrderRepo) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE orders SET order_status = $2, delivered_at = $3, updated_at = now() WHERE id = $1
	`, id, models.OrderDelivered, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("order", id.String())
	}
	return nil
}

func (r *OrderRepo) SetFulfilledQuantity(ctx context.Context, orderID, itemID uuid.UUID, qty int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE order_items SET fulfilled_quantity = $3 WHERE id = $2 AND order_id = $1
	`, orderID, itemID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("order item", itemID.String())
	}
	return nil
}

func (r *OrderRepo) ListActivePreorders(ctx context.Context, after models.PageCursor, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders o
		WHERE o.order_status NOT IN ($1, $2, $3) AND o.delivered_at IS NULL
		  AND EXISTS (SELECT 1 FROM order_items i WHERE i.order_id = o.id AND i.is_preorder AND i.lot_id IS NOT NULL)
		  AND (o.created_at, o.id) > ($4, $5)
		ORDER BY o.created_at, o.id LIMIT $6
	`, models.OrderCancelled, models.OrderReturnedRefunded, models.OrderDelivered, after.CreatedAt, after.ID, limit)
	if err != nil {
		return nil, err
	}
	var (
		orders []models.Order
		ids    []uuid.UUID
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, *o)
		ids = append(ids, o.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}
