package memory

import (
	"context"
	"sync"

	"solana-intent-settlement/internal/domain"
	"solana-intent-settlement/internal/solana"
	"solana-intent-settlement/internal/storage"
)

// Store is an in-memory implementation of storage.Store.
// Transactions are serialised; writes are staged and applied only when the
// transaction function succeeds.
type Store struct {
	mu    sync.RWMutex
	state *state
}

// state holds committed data. Commitments are kept as encoded records.
type state struct {
	commitments map[solana.PublicKey][]byte
	accounts    map[solana.PublicKey]domain.TokenAccount
	pools       map[solana.PublicKey]domain.FeePools
}

func newState() *state {
	return &state{
		commitments: make(map[solana.PublicKey][]byte),
		accounts:    make(map[solana.PublicKey]domain.TokenAccount),
		pools:       make(map[solana.PublicKey]domain.FeePools),
	}
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

// RunInTx runs fn with exclusive access to the store.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	v := &view{base: s.state, staged: newState()}
	if err := fn(ctx, v); err != nil {
		return err
	}
	v.apply()
	return nil
}

// Close is a no-op.
func (s *Store) Close() {}

// read runs fn against committed data.
func (s *Store) read(fn func(v *view) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&view{base: s.state})
}

// write runs fn as a single-operation transaction.
func (s *Store) write(ctx context.Context, fn func(v *view) error) error {
	return s.RunInTx(ctx, func(_ context.Context, tx storage.Tx) error {
		return fn(tx.(*view))
	})
}

// view reads through staged writes to the committed state.
// A nil staged state makes the view read-only.
type view struct {
	base   *state
	staged *state
}

// Compile-time interface check.
var _ storage.Tx = (*view)(nil)

func (v *view) apply() {
	for k, rec := range v.staged.commitments {
		v.base.commitments[k] = rec
	}
	for k, a := range v.staged.accounts {
		v.base.accounts[k] = a
	}
	for k, p := range v.staged.pools {
		v.base.pools[k] = p
	}
}

func (v *view) writable() error {
	if v.staged == nil {
		return storage.ErrInvalidInput
	}
	return nil
}
