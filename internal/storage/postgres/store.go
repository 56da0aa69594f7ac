package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-intent-settlement/internal/storage"
)

// Store implements storage.Store on PostgreSQL.
// Reads made through a transaction lock the rows they return.
type Store struct {
	pool *Pool
	*CommitmentStore
	*TokenAccountStore
	*FeePoolStore
}

// NewStore creates a Store backed by pool. Close closes the pool.
func NewStore(pool *Pool) *Store {
	return &Store{
		pool:              pool,
		CommitmentStore:   &CommitmentStore{db: pool},
		TokenAccountStore: &TokenAccountStore{db: pool},
		FeePoolStore:      &FeePoolStore{db: pool},
	}
}

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

// txStores binds every store to one pgx transaction.
type txStores struct {
	*CommitmentStore
	*TokenAccountStore
	*FeePoolStore
}

// RunInTx runs fn inside a READ COMMITTED transaction. Rows read through tx
// are locked with SELECT ... FOR UPDATE, so concurrent callers touching the
// same commitment or account serialise on the row lock.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	stores := &txStores{
		CommitmentStore:   &CommitmentStore{db: tx, lock: true},
		TokenAccountStore: &TokenAccountStore{db: tx, lock: true},
		FeePoolStore:      &FeePoolStore{db: tx, lock: true},
	}
	if err := fn(ctx, stores); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Close closes the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}
