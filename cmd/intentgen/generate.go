package main

import (
	"context"
	"fmt"
	"time"

	"solana-intent-settlement/internal/api/http/handlers"
	"solana-intent-settlement/internal/domain"
	"solana-intent-settlement/internal/idhash"
	"solana-intent-settlement/internal/program"
	"solana-intent-settlement/internal/quote"
	"solana-intent-settlement/internal/settlement"
	"solana-intent-settlement/internal/sigverify"
	"solana-intent-settlement/internal/solana"
)

// Params are the trade terms of a generated intent.
type Params struct {
	ProgramID   solana.PublicKey
	FeeBps      uint16
	TokenIn     solana.PublicKey
	TokenOut    solana.PublicKey
	AmountIn    uint64
	MinOut      uint64 // zero derives it from the quote and SlippageBps
	SlippageBps uint16
	RelayerFee  uint64
	Nonce       uint64
	TTL         time.Duration
	TxTTL       time.Duration // zero or longer than program.MaxTransactionLifetime uses the maximum
}

// Bundle is everything needed to commit and reveal one intent.
type Bundle struct {
	Intent      domain.RevealedIntent     `json:"intent"`
	IntentHash  domain.Hash               `json:"intent_hash"`
	Signature   solana.Signature          `json:"signature"`
	Commit      handlers.CommitRequest    `json:"commit"`
	Reveal      handlers.RevealRequest    `json:"reveal"`
	Ed25519     solana.Instruction        `json:"ed25519_instruction"`
	Transaction *solana.Transaction       `json:"transaction,omitempty"`
	Accounts    settlement.RevealAccounts `json:"accounts"`
	OperatorJWT string                    `json:"operator_jwt,omitempty"`
}

// Generate builds and signs an intent for user, to be revealed by relayer.
// The transaction carries commit, ed25519 verification and reveal in one
// batch and is signed by both parties.
func Generate(ctx context.Context, p Params, user, relayer *solana.Keypair, now time.Time) (*Bundle, error) {
	if p.AmountIn == 0 {
		return nil, fmt.Errorf("amount_in must be positive")
	}

	engine, err := settlement.NewEngine(settlement.Config{
		ProgramID: p.ProgramID,
		FeeBps:    p.FeeBps,
		Shares:    settlement.DefaultShares(),
	}, settlement.WithQuoter(quote.Identity{}))
	if err != nil {
		return nil, err
	}

	minOut := p.MinOut
	if minOut == 0 {
		fee, err := settlement.ProtocolFee(p.AmountIn, p.FeeBps)
		if err != nil {
			return nil, err
		}
		out, err := engine.Quote(ctx, p.TokenIn, p.TokenOut, p.AmountIn-fee)
		if err != nil {
			return nil, err
		}
		slip := uint64(p.SlippageBps)
		minOut = out - (out/settlement.BasisPoints*slip + out%settlement.BasisPoints*slip/settlement.BasisPoints)
	}

	intent := domain.RevealedIntent{
		User:       user.PublicKey(),
		Nonce:      p.Nonce,
		Expiry:     uint64(now.Add(p.TTL).Unix()),
		Relayer:    relayer.PublicKey(),
		RelayerFee: p.RelayerFee,
		TokenIn:    p.TokenIn,
		TokenOut:   p.TokenOut,
		AmountIn:   p.AmountIn,
		MinOut:     minOut,
	}
	hash := idhash.ComputeIntentHash(&intent)
	sig := user.Sign(hash[:])

	verify, err := sigverify.NewInstruction(sig, intent.User, hash[:])
	if err != nil {
		return nil, err
	}
	accounts, err := engine.ResolveRevealAccounts(&intent)
	if err != nil {
		return nil, err
	}

	commitIx, err := program.Encode(p.ProgramID, program.CommitTrade{
		Commitment: accounts.Commitment,
		User:       intent.User,
		IntentHash: hash,
		Nonce:      intent.Nonce,
		Expiry:     intent.Expiry,
	})
	if err != nil {
		return nil, err
	}
	revealIx, err := program.Encode(p.ProgramID, program.RevealTrade{
		Accounts:     accounts,
		Intent:       intent,
		ExpectedHash: hash,
		Signature:    sig,
	})
	if err != nil {
		return nil, err
	}

	txTTL := p.TxTTL
	if txTTL <= 0 || txTTL > program.MaxTransactionLifetime {
		txTTL = program.MaxTransactionLifetime
	}
	tx := &solana.Transaction{
		ValidUntil:   now.Add(txTTL).Unix(),
		Instructions: []solana.Instruction{commitIx, verify, revealIx},
	}
	if err := tx.Sign(user, relayer); err != nil {
		return nil, err
	}

	return &Bundle{
		Intent:     intent,
		IntentHash: hash,
		Signature:  sig,
		Commit: handlers.CommitRequest{
			CommitRequest: settlement.CommitRequest{
				User:       intent.User,
				IntentHash: hash,
				Nonce:      intent.Nonce,
				Expiry:     intent.Expiry,
			},
			Signature: user.Sign(domain.CommitMessage(hash, intent.Nonce, intent.Expiry)),
		},
		Reveal: handlers.RevealRequest{
			Intent:           intent,
			ExpectedHash:     hash,
			Signature:        sig,
			RelayerSignature: relayer.Sign(hash[:]),
		},
		Ed25519:     verify,
		Transaction: tx,
		Accounts:    accounts,
	}, nil
}
