package domain

import "solana-intent-settlement/internal/solana"

// TokenAccount holds a balance of one mint for one owner.
type TokenAccount struct {
	Address solana.PublicKey `json:"address"`
	Mint    solana.PublicKey `json:"mint"`
	Owner   solana.PublicKey `json:"owner"`
	Amount  uint64           `json:"amount"`
}

// PoolKind names a fee payout destination.
type PoolKind string

const (
	PoolLiquidityStakers PoolKind = "liquidity_stakers"
	PoolTreasury         PoolKind = "treasury"
	PoolMEVBounty        PoolKind = "mev_bounty"
)

// IsValid reports whether k is a known pool kind.
func (k PoolKind) IsValid() bool {
	switch k {
	case PoolLiquidityStakers, PoolTreasury, PoolMEVBounty:
		return true
	}
	return false
}

// PoolDestination is a payout account for one pool kind.
type PoolDestination struct {
	Kind    PoolKind         `json:"kind"`
	Address solana.PublicKey `json:"address"`
}

// FeePools groups the fee collection account for a mint with its payout
// destinations. Every account is owned by Authority.
type FeePools struct {
	Mint         solana.PublicKey  `json:"mint"`
	Authority    solana.PublicKey  `json:"authority"`
	Collection   solana.PublicKey  `json:"collection"`
	Destinations []PoolDestination `json:"destinations"`
	CreatedAt    int64             `json:"created_at"` // unix seconds
}

// Destination returns the destination for kind.
func (p *FeePools) Destination(kind PoolKind) (PoolDestination, bool) {
	for _, d := range p.Destinations {
		if d.Kind == kind {
			return d, true
		}
	}
	return PoolDestination{}, false
}
