package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/harvest-market/escrow/internal/apperr"
	"github.com/harvest-market/escrow/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type WalletRepo struct {
	pool *pgxpool.Pool
}

func NewWalletRepo(pool *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

const walletColumns = `
	id, order_id, customer_email, deposit_held, final_payment_held, total_held,
	refunded_amount, seller_payout_amount, platform_commission, status,
	release_conditions, version, released_at, created_at, updated_at`

func scanWallet(row pgx.Row) (*models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(
		&w.ID, &w.OrderID, &w.CustomerEmail, &w.DepositHeld, &w.FinalPaymentHeld, &w.TotalHeld,
		&w.RefundedAmount, &w.SellerPayoutAmount, &w.PlatformCommission, &w.Status,
		&w.ReleaseConditions, &w.Version, &w.ReleasedAt, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WalletRepo) CreateWallet(ctx context.Context, w *models.Wallet) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO escrow_wallets (id, order_id, customer_email, status, release_conditions)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING version, created_at, updated_at
	`, w.ID, w.OrderID, w.CustomerEmail, w.Status, w.ReleaseConditions).Scan(&w.Version, &w.CreatedAt, &w.UpdatedAt)
	if isUniqueViolation(err) {
		return apperr.ErrDuplicate
	}
	return wrapErr(err, "wallet", w.ID.String())
}

func (r *WalletRepo) GetWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	w, err := scanWallet(r.pool.QueryRow(ctx, `SELECT `+walletColumns+` FROM escrow_wallets WHERE id = $1`, id))
	if err != nil {
		return nil, wrapErr(err, "wallet", id.String())
	}
	return w, nil
}

func (r *WalletRepo) GetWalletByOrder(ctx context.Context, orderID uuid.UUID) (*models.Wallet, error) {
	w, err := scanWallet(r.pool.QueryRow(ctx, `SELECT `+walletColumns+` FROM escrow_wallets WHERE order_id = $1`, orderID))
	if err != nil {
		return nil, wrapErr(err, "wallet", "order "+orderID.String())
	}
	return w, nil
}

// SaveWallet updates the summary row conditionally on version and appends
// the ledger lines in the same transaction.
func (r *WalletRepo) SaveWallet(ctx context.Context, w *models.Wallet, txs []models.Transaction) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	updatedAt := w.UpdatedAt
	err = tx.QueryRow(ctx, `
		UPDATE escrow_wallets SET
			deposit_held = $3, final_payment_held = $4, total_held = $5,
			refunded_amount = $6, seller_payout_amount = $7, platform_commission = $8,
			status = $9, release_conditions = $10, released_at = $11,
			version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING updated_at
	`, w.ID, w.Version,
		w.DepositHeld, w.FinalPaymentHeld, w.TotalHeld,
		w.RefundedAmount, w.SellerPayoutAmount, w.PlatformCommission,
		w.Status, w.ReleaseConditions, w.ReleasedAt,
	).Scan(&updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM escrow_wallets WHERE id = $1)`, w.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return apperr.NotFound("wallet", w.ID.String())
		}
		return apperr.ErrConcurrentUpdate
	}
	if err != nil {
		return fmt.Errorf("update wallet %s: %w", w.ID, err)
	}

	var seq int64
	if len(txs) > 0 {
		if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(sequence), 0) FROM escrow_transactions WHERE wallet_id = $1`, w.ID).Scan(&seq); err != nil {
			return err
		}
	}
	for i := range txs {
		t := &txs[i]
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		seq++
		t.Sequence = seq
		err := tx.QueryRow(ctx, `
			INSERT INTO escrow_transactions (
				id, wallet_id, order_id, sequence, transaction_type, amount,
				balance_before, balance_after, status, initiated_by, reason, reference
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING created_at
		`, t.ID, t.WalletID, t.OrderID, t.Sequence, t.Type, t.Amount,
			t.BalanceBefore, t.BalanceAfter, t.Status, t.InitiatedBy, t.Reason, t.Reference,
		).Scan(&t.CreatedAt)
		if isUniqueViolation(err) {
			return apperr.ErrDuplicate
		}
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	w.Version++
	w.UpdatedAt = updatedAt
	return nil
}

const transactionColumns = `
	id, wallet_id, order_id, sequence, transaction_type, amount,
	balance_before, balance_after, status, initiated_by, reason, reference, created_at`

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.WalletID, &t.OrderID, &t.Sequence, &t.Type, &t.Amount,
		&t.BalanceBefore, &t.BalanceAfter, &t.Status, &t.InitiatedBy, &t.Reason, &t.Reference, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *WalletRepo) ListTransactions(ctx context.Context, walletID uuid.UUID) ([]models.Transaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+transactionColumns+` FROM escrow_transactions WHERE wallet_id = $1 ORDER BY sequence`, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *WalletRepo) FindTransactionByReference(ctx context.Context, walletID uuid.UUID, reference string) (*models.Transaction, error) {
	t, err := scanTransaction(r.pool.QueryRow(ctx, `
		SELECT `+transactionColumns+` FROM escrow_transactions WHERE wallet_id = $1 AND reference = $2
	`, walletID, reference))
	if err != nil {
		return nil, wrapErr(err, "transaction", reference)
	}
	return t, nil
}

func (r *WalletRepo) ListWalletsByStatus(ctx context.Context, statuses []models.WalletStatus, after models.PageCursor, limit int) ([]models.Wallet, error) {
	if limit <= 0 {
		limit = 100
	}
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+walletColumns+` FROM escrow_wallets
		WHERE status = ANY($1) AND (created_at, id) > ($2, $3)
		ORDER BY created_at, id LIMIT $4
	`, names, after.CreatedAt, after.ID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}
