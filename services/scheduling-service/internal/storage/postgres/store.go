// Package postgres implements the scheduling Store on pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bridalos/bridalos/libs/apperr"
	"github.com/bridalos/bridalos/libs/db"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/storage"
)

type Store struct {
	db db.Querier
}

var _ storage.Store = (*Store)(nil)

func New(q db.Querier) *Store {
	return &Store{db: q}
}

func (s *Store) InTx(ctx context.Context, fn func(context.Context, storage.Tx) error) error {
	return db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		return fn(ctx, &txn{tx: tx})
	})
}

// InTenantTx holds a transaction-scoped advisory lock on the tenant for the
// whole unit of work, so two bookings for the same tenant cannot both pass
// the availability check before either inserts.
func (s *Store) InTenantTx(ctx context.Context, tenantID string, fn func(context.Context, storage.Tx) error) error {
	return db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := db.AdvisoryXactLock(ctx, tx, "tenant:"+tenantID); err != nil {
			return fmt.Errorf("lock tenant: %w", err)
		}
		return fn(ctx, &txn{tx: tx})
	})
}

type txn struct {
	tx pgx.Tx
}

// mapErr translates driver errors for single-row lookups.
func mapErr(err error, kind, id string) error {
	if err == nil {
		return nil
	}
	if db.IsNotFound(err) || db.IsInvalidText(err) {
		return fmt.Errorf("%w: %s %q", apperr.ErrNotFound, kind, id)
	}
	return fmt.Errorf("%s %q: %w", kind, id, err)
}
