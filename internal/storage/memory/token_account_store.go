package memory

import (
	"context"

	"solana-intent-settlement/internal/domain"
	"solana-intent-settlement/internal/solana"
	"solana-intent-settlement/internal/storage"
)

// InsertTokenAccount adds a new account. Returns ErrDuplicateKey if the address exists.
func (s *Store) InsertTokenAccount(ctx context.Context, a *domain.TokenAccount) error {
	return s.write(ctx, func(v *view) error { return v.InsertTokenAccount(ctx, a) })
}

// GetTokenAccount retrieves an account. Returns ErrNotFound if not exists.
func (s *Store) GetTokenAccount(ctx context.Context, address solana.PublicKey) (*domain.TokenAccount, error) {
	var a *domain.TokenAccount
	err := s.read(func(v *view) error {
		var err error
		a, err = v.GetTokenAccount(ctx, address)
		return err
	})
	return a, err
}

// SetBalance overwrites an account balance.
func (s *Store) SetBalance(ctx context.Context, address solana.PublicKey, amount uint64) error {
	return s.write(ctx, func(v *view) error { return v.SetBalance(ctx, address, amount) })
}

func (v *view) tokenAccount(address solana.PublicKey) (domain.TokenAccount, bool) {
	if v.staged != nil {
		if a, ok := v.staged.accounts[address]; ok {
			return a, true
		}
	}
	a, ok := v.base.accounts[address]
	return a, ok
}

func (v *view) InsertTokenAccount(_ context.Context, a *domain.TokenAccount) error {
	if a == nil || a.Address.IsZero() || a.Mint.IsZero() {
		return storage.ErrInvalidInput
	}
	if err := v.writable(); err != nil {
		return err
	}
	if _, exists := v.tokenAccount(a.Address); exists {
		return storage.ErrDuplicateKey
	}
	v.staged.accounts[a.Address] = *a
	return nil
}

func (v *view) GetTokenAccount(_ context.Context, address solana.PublicKey) (*domain.TokenAccount, error) {
	a, ok := v.tokenAccount(address)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &a, nil
}

func (v *view) SetBalance(_ context.Context, address solana.PublicKey, amount uint64) error {
	if err := v.writable(); err != nil {
		return err
	}
	a, ok := v.tokenAccount(address)
	if !ok {
		return storage.ErrNotFound
	}
	a.Amount = amount
	v.staged.accounts[address] = a
	return nil
}
