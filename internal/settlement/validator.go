package settlement

import (
	"context"
	"errors"
	"fmt"

	"solana-intent-settlement/internal/domain"
	"solana-intent-settlement/internal/idhash"
	"solana-intent-settlement/internal/pda"
	"solana-intent-settlement/internal/sigverify"
	"solana-intent-settlement/internal/solana"
	"solana-intent-settlement/internal/storage"
)

// RevealAccounts lists the accounts a reveal touches. User and Relayer are
// identities the caller has authenticated.
type RevealAccounts struct {
	Commitment      solana.PublicKey `json:"commitment"`
	User            solana.PublicKey `json:"user"`
	Relayer         solana.PublicKey `json:"relayer"`
	UserTokenIn     solana.PublicKey `json:"user_token_in"`
	UserTokenOut    solana.PublicKey `json:"user_token_out"`
	RelayerTokenIn  solana.PublicKey `json:"relayer_token_in"`
	RelayerTokenOut solana.PublicKey `json:"relayer_token_out"`
	TokenInMint     solana.PublicKey `json:"token_in_mint"`
	TokenOutMint    solana.PublicKey `json:"token_out_mint"`
	FeeCollection   solana.PublicKey `json:"fee_collection"`
}

// ResolveRevealAccounts fills the canonical accounts for intent: the
// commitment of (user, nonce), associated token accounts of user and relayer,
// and the fee collection of token_in.
func (e *Engine) ResolveRevealAccounts(intent *domain.RevealedIntent) (RevealAccounts, error) {
	a := RevealAccounts{
		User:         intent.User,
		Relayer:      intent.Relayer,
		TokenInMint:  intent.TokenIn,
		TokenOutMint: intent.TokenOut,
	}

	var err error
	if a.Commitment, err = e.deriver.Commitment(intent.User, intent.Nonce); err != nil {
		return a, err
	}
	if a.UserTokenIn, err = pda.AssociatedTokenAddress(intent.User, intent.TokenIn); err != nil {
		return a, err
	}
	if a.UserTokenOut, err = pda.AssociatedTokenAddress(intent.User, intent.TokenOut); err != nil {
		return a, err
	}
	if a.RelayerTokenIn, err = pda.AssociatedTokenAddress(intent.Relayer, intent.TokenIn); err != nil {
		return a, err
	}
	if a.RelayerTokenOut, err = pda.AssociatedTokenAddress(intent.Relayer, intent.TokenOut); err != nil {
		return a, err
	}
	if a.FeeCollection, err = e.deriver.FeeCollection(intent.TokenIn); err != nil {
		return a, err
	}
	return a, nil
}

// RevealRequest is the input of Reveal.
type RevealRequest struct {
	Intent       domain.RevealedIntent `json:"intent"`
	ExpectedHash domain.Hash           `json:"expected_hash"`
	Signature    solana.Signature      `json:"signature"`
	Accounts     RevealAccounts        `json:"accounts"`
}

// revealContext is the state loaded for one reveal.
type revealContext struct {
	commitment      *domain.TradeCommitment
	userTokenIn     *domain.TokenAccount
	userTokenOut    *domain.TokenAccount
	relayerTokenIn  *domain.TokenAccount
	relayerTokenOut *domain.TokenAccount
	feeCollection   *domain.TokenAccount
}

// loadRevealContext loads every account and checks the structural
// constraints that bind them together. These run before any intent check.
func (e *Engine) loadRevealContext(ctx context.Context, tx storage.Tx, a RevealAccounts) (*revealContext, error) {
	c, err := tx.GetCommitment(ctx, a.Commitment)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrCommitmentNotFound, a.Commitment)
		}
		return nil, fmt.Errorf("load commitment: %w", err)
	}
	if !c.User.Equals(a.User) {
		return nil, fmt.Errorf("%w: commitment belongs to %s", domain.ErrInvalidSignature, c.User)
	}
	want, err := e.deriver.Commitment(c.User, c.Nonce)
	if err != nil {
		return nil, err
	}
	if !want.Equals(a.Commitment) {
		return nil, fmt.Errorf("%w: commitment address %s does not match seeds", domain.ErrInvalidSignature, a.Commitment)
	}

	rc := &revealContext{commitment: c}
	load := func(addr solana.PublicKey) (*domain.TokenAccount, error) {
		acc, err := tx.GetTokenAccount(ctx, addr)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
			}
			return nil, fmt.Errorf("load token account %s: %w", addr, err)
		}
		return acc, nil
	}
	if rc.userTokenIn, err = load(a.UserTokenIn); err != nil {
		return nil, err
	}
	if rc.userTokenOut, err = load(a.UserTokenOut); err != nil {
		return nil, err
	}
	if rc.relayerTokenIn, err = load(a.RelayerTokenIn); err != nil {
		return nil, err
	}
	if rc.relayerTokenOut, err = load(a.RelayerTokenOut); err != nil {
		return nil, err
	}
	if rc.feeCollection, err = load(a.FeeCollection); err != nil {
		return nil, err
	}

	checks := []struct {
		acc   *domain.TokenAccount
		mint  solana.PublicKey
		owner solana.PublicKey
		err   error
	}{
		{rc.userTokenIn, a.TokenInMint, a.User, domain.ErrInvalidSignature},
		{rc.userTokenOut, a.TokenOutMint, a.User, domain.ErrInvalidSignature},
		{rc.relayerTokenIn, a.TokenInMint, a.Relayer, domain.ErrInvalidRelayer},
		{rc.relayerTokenOut, a.TokenOutMint, a.Relayer, domain.ErrInvalidRelayer},
		{rc.feeCollection, a.TokenInMint, e.authority.Authority(), domain.ErrInvalidTokenMint},
	}
	for _, chk := range checks {
		if !chk.acc.Mint.Equals(chk.mint) {
			return nil, fmt.Errorf("%w: account %s holds %s, want %s", domain.ErrInvalidTokenMint, chk.acc.Address, chk.acc.Mint, chk.mint)
		}
		if !chk.acc.Owner.Equals(chk.owner) {
			return nil, fmt.Errorf("%w: account %s owned by %s, want %s", chk.err, chk.acc.Address, chk.acc.Owner, chk.owner)
		}
	}
	return rc, nil
}

// validateReveal runs the reveal checks in order and stops at the first
// failure.
func (e *Engine) validateReveal(rc *revealContext, req *RevealRequest, binder sigverify.Binder) error {
	stored := rc.commitment
	intent := &req.Intent
	a := req.Accounts

	if stored.Revealed {
		return domain.ErrAlreadyRevealed
	}
	if stored.Expired(e.now()) {
		return fmt.Errorf("%w: expired at %d", domain.ErrIntentExpired, stored.Expiry)
	}
	if stored.Nonce != intent.Nonce {
		return fmt.Errorf("%w: stored %d, revealed %d", domain.ErrNonceMismatch, stored.Nonce, intent.Nonce)
	}
	if !intent.User.Equals(a.User) {
		return fmt.Errorf("%w: intent user %s is not the caller", domain.ErrInvalidSignature, intent.User)
	}
	if !intent.Relayer.Equals(a.Relayer) {
		return fmt.Errorf("%w: intent relayer %s is not the caller", domain.ErrInvalidSignature, intent.Relayer)
	}
	if !intent.TokenIn.Equals(a.TokenInMint) || !intent.TokenOut.Equals(a.TokenOutMint) {
		return fmt.Errorf("%w: presented mints differ from intent", domain.ErrHashMismatch)
	}
	if intent.AmountIn == 0 || intent.MinOut == 0 {
		return domain.ErrAmountTooSmall
	}
	if e.cfg.MaxAmountIn > 0 && intent.AmountIn > e.cfg.MaxAmountIn {
		return fmt.Errorf("%w: %d exceeds %d", domain.ErrAmountTooLarge, intent.AmountIn, e.cfg.MaxAmountIn)
	}
	if intent.RelayerFee >= intent.AmountIn/10 {
		return fmt.Errorf("%w: %d for amount %d", domain.ErrRelayerFeeTooHigh, intent.RelayerFee, intent.AmountIn)
	}

	computed := idhash.ComputeIntentHash(intent)
	if computed != req.ExpectedHash {
		return fmt.Errorf("%w: computed %s, expected %s", domain.ErrHashMismatch, computed, req.ExpectedHash)
	}
	if stored.IntentHash != req.ExpectedHash {
		return fmt.Errorf("%w: committed %s, expected %s", domain.ErrHashMismatch, stored.IntentHash, req.ExpectedHash)
	}
	if err := binder.Bind(a.User, req.ExpectedHash, req.Signature); err != nil {
		return err
	}

	if rc.userTokenIn.Amount < intent.AmountIn {
		return fmt.Errorf("%w: user holds %d, needs %d", domain.ErrInsufficientBalance, rc.userTokenIn.Amount, intent.AmountIn)
	}
	return nil
}
