package postgres

import (
	"context"
	"fmt"

	"solana-intent-settlement/internal/domain"
	"solana-intent-settlement/internal/solana"
	"solana-intent-settlement/internal/storage"
)

// FeePoolStore implements storage.FeePoolStore using PostgreSQL.
// Destinations are kept in a JSONB column so a pool set is one row.
type FeePoolStore struct {
	db   querier
	lock bool
}

// NewFeePoolStore creates a new FeePoolStore.
func NewFeePoolStore(pool *Pool) *FeePoolStore {
	return &FeePoolStore{db: pool}
}

// Compile-time interface check.
var _ storage.FeePoolStore = (*FeePoolStore)(nil)

// InsertFeePools stores the pools for p.Mint. Returns ErrDuplicateKey if already initialized.
func (s *FeePoolStore) InsertFeePools(ctx context.Context, p *domain.FeePools) error {
	if p == nil || p.Mint.IsZero() {
		return storage.ErrInvalidInput
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO fee_pools (mint, authority, collection, destinations, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, p.Mint.String(), p.Authority.String(), p.Collection.String(), p.Destinations, p.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert fee pools: %w", err)
	}
	return nil
}

// GetFeePools retrieves the pools for mint. Returns ErrNotFound if not initialized.
func (s *FeePoolStore) GetFeePools(ctx context.Context, mint solana.PublicKey) (*domain.FeePools, error) {
	query := `
		SELECT mint, authority, collection, destinations, created_at
		FROM fee_pools
		WHERE mint = $1` + lockClause(s.lock)

	var (
		mintStr, authority, collection string
		p                              domain.FeePools
	)
	err := s.db.QueryRow(ctx, query, mint.String()).Scan(&mintStr, &authority, &collection, &p.Destinations, &p.CreatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get fee pools: %w", err)
	}

	if p.Mint, err = parseKey(mintStr); err != nil {
		return nil, err
	}
	if p.Authority, err = parseKey(authority); err != nil {
		return nil, err
	}
	if p.Collection, err = parseKey(collection); err != nil {
		return nil, err
	}
	return &p, nil
}
