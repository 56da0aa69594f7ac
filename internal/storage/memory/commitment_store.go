package memory

import (
	"context"
	"fmt"
	"sort"

	"solana-intent-settlement/internal/domain"
	"solana-intent-settlement/internal/solana"
	"solana-intent-settlement/internal/storage"
)

// InsertCommitment adds a new commitment. Returns ErrDuplicateKey if the address exists.
func (s *Store) InsertCommitment(ctx context.Context, c *domain.TradeCommitment) error {
	return s.write(ctx, func(v *view) error { return v.InsertCommitment(ctx, c) })
}

// GetCommitment retrieves a commitment. Returns ErrNotFound if not exists.
func (s *Store) GetCommitment(ctx context.Context, address solana.PublicKey) (*domain.TradeCommitment, error) {
	var c *domain.TradeCommitment
	err := s.read(func(v *view) error {
		var err error
		c, err = v.GetCommitment(ctx, address)
		return err
	})
	return c, err
}

// MarkRevealed sets the revealed flag.
func (s *Store) MarkRevealed(ctx context.Context, address solana.PublicKey) error {
	return s.write(ctx, func(v *view) error { return v.MarkRevealed(ctx, address) })
}

// ListCommitmentsByUser returns a user's commitments ordered by nonce.
func (s *Store) ListCommitmentsByUser(ctx context.Context, user solana.PublicKey) ([]*domain.TradeCommitment, error) {
	var list []*domain.TradeCommitment
	err := s.read(func(v *view) error {
		var err error
		list, err = v.ListCommitmentsByUser(ctx, user)
		return err
	})
	return list, err
}

func (v *view) commitmentRecord(address solana.PublicKey) ([]byte, bool) {
	if v.staged != nil {
		if rec, ok := v.staged.commitments[address]; ok {
			return rec, true
		}
	}
	rec, ok := v.base.commitments[address]
	return rec, ok
}

func decodeCommitment(address solana.PublicKey, rec []byte) (*domain.TradeCommitment, error) {
	c := &domain.TradeCommitment{Address: address}
	if err := c.UnmarshalBinary(rec); err != nil {
		return nil, fmt.Errorf("decode commitment %s: %w", address, err)
	}
	return c, nil
}

func (v *view) InsertCommitment(_ context.Context, c *domain.TradeCommitment) error {
	if c == nil || c.Address.IsZero() {
		return storage.ErrInvalidInput
	}
	if err := v.writable(); err != nil {
		return err
	}
	if _, exists := v.commitmentRecord(c.Address); exists {
		return storage.ErrDuplicateKey
	}

	rec, err := c.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode commitment: %w", err)
	}
	v.staged.commitments[c.Address] = rec
	return nil
}

func (v *view) GetCommitment(_ context.Context, address solana.PublicKey) (*domain.TradeCommitment, error) {
	rec, ok := v.commitmentRecord(address)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return decodeCommitment(address, rec)
}

func (v *view) MarkRevealed(ctx context.Context, address solana.PublicKey) error {
	if err := v.writable(); err != nil {
		return err
	}
	c, err := v.GetCommitment(ctx, address)
	if err != nil {
		return err
	}

	c.Revealed = true
	rec, err := c.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode commitment: %w", err)
	}
	v.staged.commitments[address] = rec
	return nil
}

func (v *view) ListCommitmentsByUser(_ context.Context, user solana.PublicKey) ([]*domain.TradeCommitment, error) {
	addrs := make(map[solana.PublicKey]struct{})
	for k := range v.base.commitments {
		addrs[k] = struct{}{}
	}
	if v.staged != nil {
		for k := range v.staged.commitments {
			addrs[k] = struct{}{}
		}
	}

	var result []*domain.TradeCommitment
	for addr := range addrs {
		rec, _ := v.commitmentRecord(addr)
		c, err := decodeCommitment(addr, rec)
		if err != nil {
			return nil, err
		}
		if c.User == user {
			result = append(result, c)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Nonce < result[j].Nonce
	})
	return result, nil
}
