package memory

import (
	"context"

	"solana-intent-settlement/internal/domain"
	"solana-intent-settlement/internal/solana"
	"solana-intent-settlement/internal/storage"
)

// InsertFeePools stores the pools for a mint. Returns ErrDuplicateKey if already initialized.
func (s *Store) InsertFeePools(ctx context.Context, p *domain.FeePools) error {
	return s.write(ctx, func(v *view) error { return v.InsertFeePools(ctx, p) })
}

// GetFeePools retrieves the pools for a mint. Returns ErrNotFound if not initialized.
func (s *Store) GetFeePools(ctx context.Context, mint solana.PublicKey) (*domain.FeePools, error) {
	var p *domain.FeePools
	err := s.read(func(v *view) error {
		var err error
		p, err = v.GetFeePools(ctx, mint)
		return err
	})
	return p, err
}

func copyPools(p domain.FeePools) *domain.FeePools {
	p.Destinations = append([]domain.PoolDestination(nil), p.Destinations...)
	return &p
}

func (v *view) InsertFeePools(_ context.Context, p *domain.FeePools) error {
	if p == nil || p.Mint.IsZero() {
		return storage.ErrInvalidInput
	}
	if err := v.writable(); err != nil {
		return err
	}
	if _, err := v.GetFeePools(context.Background(), p.Mint); err == nil {
		return storage.ErrDuplicateKey
	}
	v.staged.pools[p.Mint] = *copyPools(*p)
	return nil
}

func (v *view) GetFeePools(_ context.Context, mint solana.PublicKey) (*domain.FeePools, error) {
	if v.staged != nil {
		if p, ok := v.staged.pools[mint]; ok {
			return copyPools(p), nil
		}
	}
	p, ok := v.base.pools[mint]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyPools(p), nil
}
