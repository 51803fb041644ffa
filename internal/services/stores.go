package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/harvest-market/escrow/internal/models"
)

// Stores return *apperr.NotFoundError for unknown ids and
// apperr.ErrConcurrentUpdate when a versioned write loses a race.

type WalletStore interface {
	CreateWallet(ctx context.Context, w *models.Wallet) error
	GetWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	GetWalletByOrder(ctx context.Context, orderID uuid.UUID) (*models.Wallet, error)
	// SaveWallet writes the wallet summary and appends txs as one unit of
	// work, conditional on the stored version still equalling w.Version.
	// On success w.Version is incremented and txs receive sequence numbers.
	SaveWallet(ctx context.Context, w *models.Wallet, txs []models.Transaction) error
	ListTransactions(ctx context.Context, walletID uuid.UUID) ([]models.Transaction, error)
	FindTransactionByReference(ctx context.Context, walletID uuid.UUID, reference string) (*models.Transaction, error)
	// ListWalletsByStatus pages through wallets in (created_at, id) order,
	// starting after the cursor.
	ListWalletsByStatus(ctx context.Context, statuses []models.WalletStatus, after models.PageCursor, limit int) ([]models.Wallet, error)
}

type OrderStore interface {
	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus, payment models.PaymentStatus) error
	MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error
	SetFulfilledQuantity(ctx context.Context, orderID, itemID uuid.UUID, qty int) error
	// ListActivePreorders pages through orders with pre-order lines that
	// are not yet delivered, cancelled or refunded, in (created_at, id)
	// order after the cursor.
	ListActivePreorders(ctx context.Context, after models.PageCursor, limit int) ([]models.Order, error)
}

type LotStore interface {
	CreateLot(ctx context.Context, l *models.Lot) error
	GetLot(ctx context.Context, id uuid.UUID) (*models.Lot, error)
	GetLots(ctx context.Context, ids []uuid.UUID) ([]models.Lot, error)
	// ReserveLot moves qty from available to sold, failing with
	// apperr.ErrInsufficientInventory if available < qty.
	ReserveLot(ctx context.Context, id uuid.UUID, qty int) error
	// RestoreLot reverses the reservation held by one order item. The
	// first call per item wins and reports true; later calls are no-ops.
	RestoreLot(ctx context.Context, id, itemID uuid.UUID, qty int) (bool, error)
	RecordHarvest(ctx context.Context, id uuid.UUID, at time.Time) error
}

type CancellationStore interface {
	CreateCancellation(ctx context.Context, c *models.CancellationRecord) error
	GetCancellation(ctx context.Context, id uuid.UUID) (*models.CancellationRecord, error)
	GetCancellationByOrder(ctx context.Context, orderID uuid.UUID) (*models.CancellationRecord, error)
	// UpdateCancellation is conditional on c.Version and increments it.
	UpdateCancellation(ctx context.Context, c *models.CancellationRecord) error
}

type CompensationStore interface {
	// CreateCompensation fails with apperr.ErrDuplicate when the
	// (order, trigger, rule) tier already exists.
	CreateCompensation(ctx context.Context, c *models.CompensationRecord) error
	GetCompensation(ctx context.Context, id uuid.UUID) (*models.CompensationRecord, error)
	ListCompensationsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.CompensationRecord, error)
	ListCompensationsByStatus(ctx context.Context, status models.CompensationStatus, limit int) ([]models.CompensationRecord, error)
	UpdateCompensation(ctx context.Context, c *models.CompensationRecord) error
}

type LoyaltyStore interface {
	CreateVoucher(ctx context.Context, v *models.Voucher) error
	GetVoucherByCompensation(ctx context.Context, compensationID uuid.UUID) (*models.Voucher, error)
	// CreditPoints adds points once per reference and returns the new balance.
	CreditPoints(ctx context.Context, email string, points int64, reference string) (int64, error)
	PointsBalance(ctx context.Context, email string) (int64, error)
}

type DisputeStore interface {
	CreateDispute(ctx context.Context, t *models.DisputeTicket) error
	GetDispute(ctx context.Context, id uuid.UUID) (*models.DisputeTicket, error)
	GetDisputeByNumber(ctx context.Context, number string) (*models.DisputeTicket, error)
	ListOpenDisputesByOrder(ctx context.Context, orderID uuid.UUID) ([]models.DisputeTicket, error)
	// UpdateDispute is conditional on t.Version and increments it.
	UpdateDispute(ctx context.Context, t *models.DisputeTicket) error
}

type RiskStore interface {
	// GetProfile returns a not-found error for customers never seen.
	GetProfile(ctx context.Context, email string) (*models.CustomerRiskProfile, error)
	// SaveProfile upserts; an existing row is conditional on p.Version.
	SaveProfile(ctx context.Context, p *models.CustomerRiskProfile) error
}

type AuditStore interface {
	Log(ctx context.Context, entry models.AuditLog) error
}
