package settlement

import (
	"fmt"
	"math/bits"

	"solana-intent-settlement/internal/domain"
)

// BasisPoints is the denominator of fee rates and share weights.
const BasisPoints = 10_000

// checkedMul returns a*b or ErrMathOverflow.
func checkedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, fmt.Errorf("%w: %d * %d", domain.ErrMathOverflow, a, b)
	}
	return lo, nil
}

// checkedSub returns a-b or ErrMathOverflow.
func checkedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, fmt.Errorf("%w: %d - %d", domain.ErrMathOverflow, a, b)
	}
	return diff, nil
}

// mulDiv returns floor(a*b/d) using a 128-bit intermediate. The result fits
// in 64 bits whenever b <= d.
func mulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, fmt.Errorf("%w: division by zero", domain.ErrMathOverflow)
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= d {
		return 0, fmt.Errorf("%w: %d * %d / %d", domain.ErrMathOverflow, a, b, d)
	}
	q, _ := bits.Div64(hi, lo, d)
	return q, nil
}

// ProtocolFee returns floor(amountIn * feeBps / 10000) with the multiply
// checked in 64 bits. A fee that would consume the whole input is a
// ProtocolFeeError.
func ProtocolFee(amountIn uint64, feeBps uint16) (uint64, error) {
	product, err := checkedMul(amountIn, uint64(feeBps))
	if err != nil {
		return 0, err
	}
	fee := product / BasisPoints
	if amountIn > 0 && fee >= amountIn {
		return 0, fmt.Errorf("%w: fee %d for amount %d", domain.ErrProtocolFeeError, fee, amountIn)
	}
	return fee, nil
}

// Share is a weighted payout destination.
type Share struct {
	Kind   domain.PoolKind `yaml:"kind" json:"kind"`
	Weight uint16          `yaml:"weight" json:"weight"` // basis points
}

// DefaultShares splits 50% to stakers, 30% to treasury and the remaining 20%
// to the MEV bounty pool.
func DefaultShares() []Share {
	return []Share{
		{Kind: domain.PoolLiquidityStakers, Weight: 5000},
		{Kind: domain.PoolTreasury, Weight: 3000},
		{Kind: domain.PoolMEVBounty, Weight: 2000},
	}
}

// ValidateShares checks that shares are non-empty, use distinct known kinds
// and sum to exactly 10000 basis points.
func ValidateShares(shares []Share) error {
	if len(shares) == 0 {
		return fmt.Errorf("%w: no shares configured", domain.ErrFeeDistributionError)
	}
	seen := make(map[domain.PoolKind]bool, len(shares))
	var total uint32
	for _, s := range shares {
		if !s.Kind.IsValid() {
			return fmt.Errorf("%w: unknown pool kind %q", domain.ErrFeeDistributionError, s.Kind)
		}
		if seen[s.Kind] {
			return fmt.Errorf("%w: duplicate pool kind %q", domain.ErrFeeDistributionError, s.Kind)
		}
		seen[s.Kind] = true
		total += uint32(s.Weight)
	}
	if total != BasisPoints {
		return fmt.Errorf("%w: share weights sum to %d, want %d", domain.ErrFeeDistributionError, total, BasisPoints)
	}
	return nil
}

// Split divides amount across shares. Every share but the last receives
// floor(amount*weight/10000); the last receives the remainder, so the parts
// always sum to amount.
func Split(amount uint64, shares []Share) ([]uint64, error) {
	if err := ValidateShares(shares); err != nil {
		return nil, err
	}
	parts := make([]uint64, len(shares))
	remaining := amount
	for i, s := range shares[:len(shares)-1] {
		part, err := mulDiv(amount, uint64(s.Weight), BasisPoints)
		if err != nil {
			return nil, err
		}
		if remaining, err = checkedSub(remaining, part); err != nil {
			return nil, err
		}
		parts[i] = part
	}
	parts[len(parts)-1] = remaining
	return parts, nil
}
