package postgres

import (
	"context"
	"fmt"

	"solana-intent-settlement/internal/domain"
	"solana-intent-settlement/internal/solana"
	"solana-intent-settlement/internal/storage"
)

// TokenAccountStore implements storage.TokenAccountStore using PostgreSQL.
type TokenAccountStore struct {
	db   querier
	lock bool
}

// NewTokenAccountStore creates a new TokenAccountStore.
func NewTokenAccountStore(pool *Pool) *TokenAccountStore {
	return &TokenAccountStore{db: pool}
}

// Compile-time interface check.
var _ storage.TokenAccountStore = (*TokenAccountStore)(nil)

// InsertTokenAccount adds a new account. Returns ErrDuplicateKey if address exists.
func (s *TokenAccountStore) InsertTokenAccount(ctx context.Context, a *domain.TokenAccount) error {
	if a == nil || a.Address.IsZero() || a.Mint.IsZero() {
		return storage.ErrInvalidInput
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO token_accounts (address, mint, owner, amount)
		VALUES ($1, $2, $3, $4)
	`, a.Address.String(), a.Mint.String(), a.Owner.String(), toDBAmount(a.Amount))
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert token account: %w", err)
	}
	return nil
}

// GetTokenAccount retrieves an account. Returns ErrNotFound if not exists.
func (s *TokenAccountStore) GetTokenAccount(ctx context.Context, address solana.PublicKey) (*domain.TokenAccount, error) {
	query := `
		SELECT address, mint, owner, amount
		FROM token_accounts
		WHERE address = $1` + lockClause(s.lock)

	var (
		addr, mint, owner string
		amount            int64
	)
	err := s.db.QueryRow(ctx, query, address.String()).Scan(&addr, &mint, &owner, &amount)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token account: %w", err)
	}

	a := &domain.TokenAccount{Amount: fromDBAmount(amount)}
	if a.Address, err = parseKey(addr); err != nil {
		return nil, err
	}
	if a.Mint, err = parseKey(mint); err != nil {
		return nil, err
	}
	if a.Owner, err = parseKey(owner); err != nil {
		return nil, err
	}
	return a, nil
}

// SetBalance overwrites an account balance. Returns ErrNotFound if not exists.
func (s *TokenAccountStore) SetBalance(ctx context.Context, address solana.PublicKey, amount uint64) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE token_accounts
		SET amount = $2, updated_at = NOW()
		WHERE address = $1
	`, address.String(), toDBAmount(amount))
	if err != nil {
		return fmt.Errorf("set balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
