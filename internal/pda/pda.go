// Package pda derives the program-owned addresses used by the settlement
// program: commitment records, the fee authority and per-mint fee accounts.
package pda

import (
	"encoding/binary"
	"fmt"

	"solana-intent-settlement/internal/domain"
	"solana-intent-settlement/internal/solana"
)

// Seed prefixes.
const (
	SeedIntent        = "intent"
	SeedFeeAuthority  = "fee_authority"
	SeedFeeCollection = "fee_collection"
	SeedLiqStakers    = "liq_stakers"
	SeedTreasury      = "treasury"
	SeedMEVBounty     = "mev_bounty"
)

// DefaultProgramID is the settlement program address used when none is configured.
var DefaultProgramID = solana.MustParsePublicKey("2bgpPzHUWu9jRAMUcF2Kex4dKti6U554hkhpkBi4EpHK")

// Deriver derives addresses for one program id.
type Deriver struct {
	ProgramID solana.PublicKey
}

// NewDeriver creates a Deriver for programID.
func NewDeriver(programID solana.PublicKey) Deriver {
	return Deriver{ProgramID: programID}
}

// Commitment returns the commitment address for (user, nonce).
func (d Deriver) Commitment(user solana.PublicKey, nonce uint64) (solana.PublicKey, error) {
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], nonce)
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte(SeedIntent), user[:], n[:]}, d.ProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive commitment address: %w", err)
	}
	return addr, nil
}

// FeeAuthority returns the program-wide fee authority and its bump.
func (d Deriver) FeeAuthority() (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress([][]byte{[]byte(SeedFeeAuthority)}, d.ProgramID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("derive fee authority: %w", err)
	}
	return addr, bump, nil
}

// FeeCollection returns the fee collection account for mint.
func (d Deriver) FeeCollection(mint solana.PublicKey) (solana.PublicKey, error) {
	return d.mintScoped(SeedFeeCollection, mint)
}

// Pool returns the payout account of kind for mint.
func (d Deriver) Pool(kind domain.PoolKind, mint solana.PublicKey) (solana.PublicKey, error) {
	seed, ok := poolSeeds[kind]
	if !ok {
		return solana.PublicKey{}, fmt.Errorf("unknown pool kind %q", kind)
	}
	return d.mintScoped(seed, mint)
}

var poolSeeds = map[domain.PoolKind]string{
	domain.PoolLiquidityStakers: SeedLiqStakers,
	domain.PoolTreasury:         SeedTreasury,
	domain.PoolMEVBounty:        SeedMEVBounty,
}

func (d Deriver) mintScoped(seed string, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte(seed), mint[:]}, d.ProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive %s address: %w", seed, err)
	}
	return addr, nil
}

// AssociatedTokenAddress returns the canonical token account of owner for mint.
func AssociatedTokenAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{owner[:], solana.TokenProgramID[:], mint[:]},
		solana.AssociatedTokenProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive associated token address: %w", err)
	}
	return addr, nil
}
