package settlement

import (
	"context"
	"errors"
	"fmt"

	"solana-intent-settlement/internal/domain"
	"solana-intent-settlement/internal/ledger"
	"solana-intent-settlement/internal/solana"
	"solana-intent-settlement/internal/storage"
)

// SettleRequest is the input of Settle.
type SettleRequest struct {
	Mint   solana.PublicKey `json:"mint"`
	Amount uint64           `json:"fee_amount"`
	Caller solana.PublicKey `json:"caller"`
}

// Settle moves req.Amount out of the fee collection of req.Mint into the
// configured payout pools.
func (e *Engine) Settle(ctx context.Context, tx storage.Tx, req SettleRequest) (*domain.FeeDistributed, error) {
	if !e.mayCallSettle(req.Caller) {
		return nil, fmt.Errorf("%w: %s may not settle", domain.ErrInvalidRelayer, req.Caller)
	}
	if req.Amount == 0 {
		return nil, domain.ErrAmountTooSmall
	}

	pools, err := e.loadFeePools(ctx, tx, req.Mint)
	if err != nil {
		return nil, err
	}
	collection, err := tx.GetTokenAccount(ctx, pools.Collection)
	if err != nil {
		return nil, fmt.Errorf("load fee collection: %w", err)
	}
	if !collection.Owner.Equals(e.authority.Authority()) {
		return nil, fmt.Errorf("%w: fee collection owned by %s", domain.ErrFeeDistributionError, collection.Owner)
	}
	if collection.Amount < req.Amount {
		return nil, fmt.Errorf("%w: pool holds %d, settle needs %d", domain.ErrInsufficientBalance, collection.Amount, req.Amount)
	}

	parts, err := Split(req.Amount, e.cfg.Shares)
	if err != nil {
		return nil, err
	}

	capability, err := e.authority.PoolCapability(pools)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrFeeDistributionError, err)
	}
	signer, err := capability.Authorize(pools.Collection)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrFeeDistributionError, err)
	}

	ev := &domain.FeeDistributed{
		Token:       req.Mint,
		TotalAmount: req.Amount,
		Caller:      req.Caller,
		Timestamp:   e.now().Unix(),
	}
	for i, share := range e.cfg.Shares {
		dest, ok := pools.Destination(share.Kind)
		if !ok {
			return nil, fmt.Errorf("%w: no %s destination for %s", domain.ErrFeeDistributionError, share.Kind, req.Mint)
		}
		t := ledger.Transfer{From: pools.Collection, To: dest.Address, Amount: parts[i], Authority: signer}
		if err := ledger.Execute(ctx, tx, t); err != nil {
			return nil, fmt.Errorf("%w: %s transfer: %w", domain.ErrFeeDistributionError, share.Kind, err)
		}

		switch share.Kind {
		case domain.PoolLiquidityStakers:
			ev.StakersShare = parts[i]
		case domain.PoolTreasury:
			ev.TreasuryShare = parts[i]
		case domain.PoolMEVBounty:
			ev.BountyShare = parts[i]
		}
	}
	return ev, nil
}

func (e *Engine) mayCallSettle(caller solana.PublicKey) bool {
	if len(e.cfg.AuthorizedSettlers) == 0 {
		return true
	}
	for _, k := range e.cfg.AuthorizedSettlers {
		if k.Equals(caller) {
			return true
		}
	}
	return false
}

func (e *Engine) loadFeePools(ctx context.Context, tx storage.FeePoolStore, mint solana.PublicKey) (*domain.FeePools, error) {
	pools, err := tx.GetFeePools(ctx, mint)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrFeePoolsNotInitialized, mint)
		}
		return nil, fmt.Errorf("load fee pools: %w", err)
	}
	return pools, nil
}

// FeePools returns the fee pools of mint.
func (e *Engine) FeePools(ctx context.Context, tx storage.FeePoolStore, mint solana.PublicKey) (*domain.FeePools, error) {
	return e.loadFeePools(ctx, tx, mint)
}

// InitializeFeePools opens the fee collection and every pool account of mint,
// all owned by the fee authority.
func (e *Engine) InitializeFeePools(ctx context.Context, tx storage.Tx, mint solana.PublicKey) (*domain.FeePoolsInitialized, error) {
	if mint.IsZero() {
		return nil, fmt.Errorf("%w: zero mint", domain.ErrInvalidTokenMint)
	}
	owner := e.authority.Authority()

	collection, err := e.deriver.FeeCollection(mint)
	if err != nil {
		return nil, err
	}
	pools := &domain.FeePools{
		Mint:       mint,
		Authority:  owner,
		Collection: collection,
		CreatedAt:  e.now().Unix(),
	}

	kinds := []domain.PoolKind{domain.PoolLiquidityStakers, domain.PoolTreasury, domain.PoolMEVBounty}
	for _, kind := range kinds {
		addr, err := e.deriver.Pool(kind, mint)
		if err != nil {
			return nil, err
		}
		pools.Destinations = append(pools.Destinations, domain.PoolDestination{Kind: kind, Address: addr})
	}

	for _, addr := range append([]solana.PublicKey{collection}, destinationAddresses(pools)...) {
		if _, err := ledger.OpenAccount(ctx, tx, addr, mint, owner); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				return nil, fmt.Errorf("%w: %s", ErrFeePoolsAlreadyExist, mint)
			}
			return nil, err
		}
	}
	if err := tx.InsertFeePools(ctx, pools); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: %s", ErrFeePoolsAlreadyExist, mint)
		}
		return nil, fmt.Errorf("insert fee pools: %w", err)
	}

	ev := &domain.FeePoolsInitialized{
		TokenMint:     mint,
		FeeAuthority:  owner,
		FeeCollection: collection,
		Timestamp:     pools.CreatedAt,
	}
	for _, d := range pools.Destinations {
		switch d.Kind {
		case domain.PoolLiquidityStakers:
			ev.LiquidityStakers = d.Address
		case domain.PoolTreasury:
			ev.Treasury = d.Address
		case domain.PoolMEVBounty:
			ev.MEVBounty = d.Address
		}
	}
	return ev, nil
}

func destinationAddresses(p *domain.FeePools) []solana.PublicKey {
	out := make([]solana.PublicKey, len(p.Destinations))
	for i, d := range p.Destinations {
		out[i] = d.Address
	}
	return out
}
