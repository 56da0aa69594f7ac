// Package authority issues the protocol's signing capability for fee pool
// accounts. The fee authority is a program-derived address, so no private key
// exists; holding a Capability is what lets code move pool funds.
package authority

import (
	"errors"
	"fmt"

	"solana-intent-settlement/internal/domain"
	"solana-intent-settlement/internal/pda"
	"solana-intent-settlement/internal/solana"
)

// ErrOutOfScope is returned when a capability is used on an account it was
// not issued for.
var ErrOutOfScope = errors.New("account outside capability scope")

// Provider hands out scoped capabilities.
type Provider interface {
	// Authority returns the address that owns every fee account.
	Authority() solana.PublicKey

	// PoolCapability returns a capability to spend from pools.Collection.
	PoolCapability(pools *domain.FeePools) (*Capability, error)
}

// Capability authorises transfers out of a fixed set of accounts.
type Capability struct {
	authority solana.PublicKey
	seeds     [][]byte
	scope     map[solana.PublicKey]struct{}
}

// Authority returns the signing address.
func (c *Capability) Authority() solana.PublicKey {
	return c.authority
}

// Seeds returns the derivation seeds, bump included, that prove the program
// controls the authority.
func (c *Capability) Seeds() [][]byte {
	out := make([][]byte, len(c.seeds))
	for i, s := range c.seeds {
		out[i] = append([]byte(nil), s...)
	}
	return out
}

// Authorize returns the authority for spending from account.
func (c *Capability) Authorize(account solana.PublicKey) (solana.PublicKey, error) {
	if _, ok := c.scope[account]; !ok {
		return solana.PublicKey{}, fmt.Errorf("authorize %s: %w", account, ErrOutOfScope)
	}
	return c.authority, nil
}

// PDAProvider derives the fee authority from the program id.
type PDAProvider struct {
	authority solana.PublicKey
	bump      uint8
}

// NewPDAProvider derives the fee authority of programID.
func NewPDAProvider(deriver pda.Deriver) (*PDAProvider, error) {
	addr, bump, err := deriver.FeeAuthority()
	if err != nil {
		return nil, err
	}
	return &PDAProvider{authority: addr, bump: bump}, nil
}

// Compile-time interface check.
var _ Provider = (*PDAProvider)(nil)

// Authority returns the fee authority address.
func (p *PDAProvider) Authority() solana.PublicKey {
	return p.authority
}

// PoolCapability returns a capability scoped to the collection account of pools.
// Pools owned by a different authority are refused.
func (p *PDAProvider) PoolCapability(pools *domain.FeePools) (*Capability, error) {
	if pools == nil {
		return nil, errors.New("nil fee pools")
	}
	if !pools.Authority.Equals(p.authority) {
		return nil, fmt.Errorf("fee pools of %s owned by %s, not %s", pools.Mint, pools.Authority, p.authority)
	}
	return &Capability{
		authority: p.authority,
		seeds:     [][]byte{[]byte(pda.SeedFeeAuthority), {p.bump}},
		scope:     map[solana.PublicKey]struct{}{pools.Collection: {}},
	}, nil
}
