package storage

import (
	"context"

	"solana-intent-settlement/internal/domain"
	"solana-intent-settlement/internal/solana"
)

// CommitmentStore provides access to trade commitment records.
type CommitmentStore interface {
	// InsertCommitment stores a new commitment at c.Address.
	// Returns ErrDuplicateKey if the address is already taken.
	InsertCommitment(ctx context.Context, c *domain.TradeCommitment) error

	// GetCommitment retrieves a commitment by address. Returns ErrNotFound if not exists.
	// Inside a transaction the record is locked until commit.
	GetCommitment(ctx context.Context, address solana.PublicKey) (*domain.TradeCommitment, error)

	// MarkRevealed sets the revealed flag. Returns ErrNotFound if not exists.
	MarkRevealed(ctx context.Context, address solana.PublicKey) error

	// ListCommitmentsByUser returns a user's commitments ordered by nonce ASC.
	ListCommitmentsByUser(ctx context.Context, user solana.PublicKey) ([]*domain.TradeCommitment, error)
}

// TokenAccountStore provides access to token account balances.
type TokenAccountStore interface {
	// InsertTokenAccount creates an account. Returns ErrDuplicateKey if address exists.
	InsertTokenAccount(ctx context.Context, a *domain.TokenAccount) error

	// GetTokenAccount retrieves an account. Returns ErrNotFound if not exists.
	// Inside a transaction the account is locked until commit.
	GetTokenAccount(ctx context.Context, address solana.PublicKey) (*domain.TokenAccount, error)

	// SetBalance overwrites an account balance. Returns ErrNotFound if not exists.
	SetBalance(ctx context.Context, address solana.PublicKey, amount uint64) error
}

// FeePoolStore provides access to per-mint fee pool configuration.
type FeePoolStore interface {
	// InsertFeePools stores the pools for p.Mint. Returns ErrDuplicateKey if already initialized.
	InsertFeePools(ctx context.Context, p *domain.FeePools) error

	// GetFeePools retrieves the pools for mint. Returns ErrNotFound if not initialized.
	GetFeePools(ctx context.Context, mint solana.PublicKey) (*domain.FeePools, error)
}

// Tx is the set of stores visible inside one atomic unit of work.
type Tx interface {
	CommitmentStore
	TokenAccountStore
	FeePoolStore
}

// Store is the durable state of the settlement program.
// Methods called directly on Store run outside any transaction.
type Store interface {
	Tx

	// RunInTx runs fn in a transaction. If fn returns an error every write
	// made through tx is discarded; otherwise all writes become visible together.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Close releases underlying resources.
	Close()
}
