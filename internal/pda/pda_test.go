package pda

import (
	"testing"

	"solana-intent-settlement/internal/domain"
	"solana-intent-settlement/internal/solana"
)

func TestDeriver_CommitmentDistinctPerNonce(t *testing.T) {
	d := NewDeriver(DefaultProgramID)
	user := solana.MustParsePublicKey("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")

	a, err := d.Commitment(user, 1)
	if err != nil {
		t.Fatalf("Commitment error: %v", err)
	}
	b, err := d.Commitment(user, 2)
	if err != nil {
		t.Fatalf("Commitment error: %v", err)
	}
	if a == b {
		t.Error("different nonces must derive different addresses")
	}

	again, _ := d.Commitment(user, 1)
	if again != a {
		t.Error("derivation must be deterministic")
	}
	if a.IsOnCurve() {
		t.Error("commitment address must be off curve")
	}
}

func TestDeriver_FeeAccountsDistinct(t *testing.T) {
	d := NewDeriver(DefaultProgramID)
	mint := solana.MustParsePublicKey("So11111111111111111111111111111111111111112")

	authority, _, err := d.FeeAuthority()
	if err != nil {
		t.Fatalf("FeeAuthority error: %v", err)
	}
	collection, err := d.FeeCollection(mint)
	if err != nil {
		t.Fatalf("FeeCollection error: %v", err)
	}

	seen := map[solana.PublicKey]string{authority: "authority", collection: "collection"}
	for _, kind := range []domain.PoolKind{domain.PoolLiquidityStakers, domain.PoolTreasury, domain.PoolMEVBounty} {
		addr, err := d.Pool(kind, mint)
		if err != nil {
			t.Fatalf("Pool(%s) error: %v", kind, err)
		}
		if prev, ok := seen[addr]; ok {
			t.Errorf("pool %s collides with %s", kind, prev)
		}
		seen[addr] = string(kind)
	}

	if _, err := d.Pool("unknown", mint); err == nil {
		t.Error("expected error for unknown pool kind")
	}
}

func TestAssociatedTokenAddress(t *testing.T) {
	owner := solana.MustParsePublicKey("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	usdc := solana.MustParsePublicKey("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	sol := solana.MustParsePublicKey("So11111111111111111111111111111111111111112")

	a, err := AssociatedTokenAddress(owner, usdc)
	if err != nil {
		t.Fatalf("AssociatedTokenAddress error: %v", err)
	}
	b, err := AssociatedTokenAddress(owner, sol)
	if err != nil {
		t.Fatalf("AssociatedTokenAddress error: %v", err)
	}
	if a == b {
		t.Error("different mints must have different token accounts")
	}
}
