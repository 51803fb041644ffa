package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/harvest-market/escrow/internal/apperr"
	"github.com/harvest-market/escrow/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DisputeRepo struct {
	pool *pgxpool.Pool
}

func NewDisputeRepo(pool *pgxpool.Pool) *DisputeRepo {
	return &DisputeRepo{pool: pool}
}

const disputeColumns = `
	id, ticket_number, order_id, wallet_id, customer_email, dispute_type, customer_description,
	evidence_urls, status, resolution_options, resolution_applied, timeline, internal_notes,
	version, resolved_at, created_at, updated_at`

func scanDispute(row pgx.Row) (*models.DisputeTicket, error) {
	var t models.DisputeTicket
	err := row.Scan(&t.ID, &t.TicketNumber, &t.OrderID, &t.WalletID, &t.CustomerEmail, &t.DisputeType, &t.CustomerDescription,
		&t.EvidenceURLs, &t.Status, &t.ResolutionOptions, &t.ResolutionApplied, &t.Timeline, &t.InternalNotes,
		&t.Version, &t.ResolvedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *DisputeRepo) CreateDispute(ctx context.Context, t *models.DisputeTicket) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.EvidenceURLs == nil {
		t.EvidenceURLs = []string{}
	}
	if t.ResolutionOptions == nil {
		t.ResolutionOptions = []models.ResolutionOption{}
	}
	if t.InternalNotes == nil {
		t.InternalNotes = []models.InternalNote{}
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO disputes (
			id, ticket_number, order_id, wallet_id, customer_email, dispute_type, customer_description,
			evidence_urls, status, resolution_options, timeline, internal_notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING version, created_at, updated_at
	`, t.ID, t.TicketNumber, t.OrderID, t.WalletID, t.CustomerEmail, t.DisputeType, t.CustomerDescription,
		t.EvidenceURLs, t.Status, t.ResolutionOptions, t.Timeline, t.InternalNotes,
	).Scan(&t.Version, &t.CreatedAt, &t.UpdatedAt)
	if isUniqueViolation(err) {
		return apperr.ErrDuplicate
	}
	return wrapErr(err, "dispute", t.ID.String())
}

func (r *DisputeRepo) GetDispute(ctx context.Context, id uuid.UUID) (*models.DisputeTicket, error) {
	t, err := scanDispute(r.pool.QueryRow(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id))
	if err != nil {
		return nil, wrapErr(err, "dispute", id.String())
	}
	return t, nil
}

func (r *DisputeRepo) GetDisputeByNumber(ctx context.Context, number string) (*models.DisputeTicket, error) {
	t, err := scanDispute(r.pool.QueryRow(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE ticket_number = $1`, number))
	if err != nil {
		return nil, wrapErr(err, "dispute", number)
	}
	return t, nil
}

func (r *DisputeRepo) ListOpenDisputesByOrder(ctx context.Context, orderID uuid.UUID) ([]models.DisputeTicket, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+disputeColumns+` FROM disputes
		WHERE order_id = $1 AND status NOT IN ($2, $3)
		ORDER BY created_at
	`, orderID, models.DisputeResolved, models.DisputeClosed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DisputeTicket
	for rows.Next() {
		t, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *DisputeRepo) UpdateDispute(ctx context.Context, t *models.DisputeTicket) error {
	err := r.pool.QueryRow(ctx, `
		UPDATE disputes SET
			wallet_id = $3, status = $4, resolution_options = $5, resolution_applied = $6,
			timeline = $7, internal_notes = $8, resolved_at = $9,
			version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at
	`, t.ID, t.Version, t.WalletID, t.Status, t.ResolutionOptions, t.ResolutionApplied,
		t.Timeline, t.InternalNotes, t.ResolvedAt,
	).Scan(&t.Version, &t.UpdatedAt)
	if err == nil {
		return nil
	}
	if _, getErr := r.GetDispute(ctx, t.ID); getErr != nil {
		return getErr
	}
	return versionConflict(err)
}
