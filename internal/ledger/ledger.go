// Package ledger moves token balances between accounts held in a
// storage.TokenAccountStore. It is the transfer primitive the settlement
// engine builds on; every call re-reads balances from the store.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/bits"

	"solana-intent-settlement/internal/domain"
	"solana-intent-settlement/internal/solana"
	"solana-intent-settlement/internal/storage"
)

// Ledger errors.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrMintMismatch      = errors.New("account mint mismatch")
	ErrOwnerMismatch     = errors.New("authority does not own source account")
	ErrBalanceOverflow   = errors.New("destination balance overflow")
)

// Transfer describes one movement of value. Authority must own From.
type Transfer struct {
	From      solana.PublicKey
	To        solana.PublicKey
	Amount    uint64
	Authority solana.PublicKey
}

// Execute applies t against accounts. Nothing is written unless every check
// passes; callers run it inside a storage transaction so a later failure
// rolls it back.
func Execute(ctx context.Context, accounts storage.TokenAccountStore, t Transfer) error {
	from, err := accounts.GetTokenAccount(ctx, t.From)
	if err != nil {
		return fmt.Errorf("load source %s: %w", t.From, err)
	}
	to, err := accounts.GetTokenAccount(ctx, t.To)
	if err != nil {
		return fmt.Errorf("load destination %s: %w", t.To, err)
	}

	if !from.Owner.Equals(t.Authority) {
		return fmt.Errorf("transfer from %s: %w", t.From, ErrOwnerMismatch)
	}
	if !from.Mint.Equals(to.Mint) {
		return fmt.Errorf("transfer %s -> %s: %w", t.From, t.To, ErrMintMismatch)
	}
	if from.Amount < t.Amount {
		return fmt.Errorf("transfer %d from %s (balance %d): %w", t.Amount, t.From, from.Amount, ErrInsufficientFunds)
	}
	if t.From == t.To || t.Amount == 0 {
		return nil
	}

	credited, carry := bits.Add64(to.Amount, t.Amount, 0)
	if carry != 0 {
		return fmt.Errorf("transfer to %s: %w", t.To, ErrBalanceOverflow)
	}

	if err := accounts.SetBalance(ctx, t.From, from.Amount-t.Amount); err != nil {
		return fmt.Errorf("debit %s: %w", t.From, err)
	}
	if err := accounts.SetBalance(ctx, t.To, credited); err != nil {
		return fmt.Errorf("credit %s: %w", t.To, err)
	}
	return nil
}

// OpenAccount creates an empty account of mint owned by owner.
func OpenAccount(ctx context.Context, accounts storage.TokenAccountStore, address, mint, owner solana.PublicKey) (*domain.TokenAccount, error) {
	a := &domain.TokenAccount{Address: address, Mint: mint, Owner: owner}
	if err := accounts.InsertTokenAccount(ctx, a); err != nil {
		return nil, fmt.Errorf("open account %s: %w", address, err)
	}
	return a, nil
}

// Deposit credits amount to address out of thin air. It backs devnet
// provisioning only; the settlement flow never mints.
func Deposit(ctx context.Context, accounts storage.TokenAccountStore, address solana.PublicKey, amount uint64) (*domain.TokenAccount, error) {
	a, err := accounts.GetTokenAccount(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", address, err)
	}
	credited, carry := bits.Add64(a.Amount, amount, 0)
	if carry != 0 {
		return nil, fmt.Errorf("deposit to %s: %w", address, ErrBalanceOverflow)
	}
	if err := accounts.SetBalance(ctx, address, credited); err != nil {
		return nil, fmt.Errorf("deposit to %s: %w", address, err)
	}
	a.Amount = credited
	return a, nil
}
