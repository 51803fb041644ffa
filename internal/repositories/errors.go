// Package repositories holds the Postgres implementations of the service
// stores. Queries are plain SQL over pgxpool.
package repositories

import (
	"errors"
	"fmt"

	"github.com/harvest-market/escrow/internal/apperr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// wrapErr maps driver errors onto the apperr taxonomy.
func wrapErr(err error, entity, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(entity, id)
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%s %s: %w", entity, id, apperr.ErrDuplicate)
	}
	return fmt.Errorf("%s %s: %w", entity, id, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// versionConflict reports a conditional update that matched no row as a
// lost optimistic race.
func versionConflict(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.ErrConcurrentUpdate
	}
	return err
}
