// Package settlement implements the commit-reveal settlement program: commit
// a hashed intent, reveal and execute it against a relayer's inventory, and
// split the collected protocol fees across payout pools.
//
// Engine methods operate on a storage.Tx and never commit on their own; the
// caller decides the transaction boundary. Service wraps them with one
// transaction per call, and program.Processor with one per batch.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"solana-intent-settlement/internal/authority"
	"solana-intent-settlement/internal/domain"
	"solana-intent-settlement/internal/pda"
	"solana-intent-settlement/internal/quote"
	"solana-intent-settlement/internal/solana"
	"solana-intent-settlement/internal/storage"
)

// Engine errors that are not protocol error codes.
var (
	ErrCommitmentNotFound     = errors.New("commitment not found")
	ErrFeePoolsNotInitialized = errors.New("fee pools not initialized")
	ErrFeePoolsAlreadyExist   = errors.New("fee pools already initialized")
	ErrAccountNotFound        = errors.New("account not found")
)

// DefaultFeeBps is the protocol fee rate used when none is configured.
const DefaultFeeBps = 30

// Config holds the program parameters.
type Config struct {
	ProgramID solana.PublicKey
	FeeBps    uint16
	Shares    []Share

	// MaxAmountIn rejects larger reveals with AmountTooLarge. Zero disables the cap.
	MaxAmountIn uint64

	// AuthorizedSettlers restricts settle callers. Empty allows anyone.
	AuthorizedSettlers []solana.PublicKey
}

// DefaultConfig returns the default program parameters.
func DefaultConfig() Config {
	return Config{
		ProgramID: pda.DefaultProgramID,
		FeeBps:    DefaultFeeBps,
		Shares:    DefaultShares(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.ProgramID.IsZero() {
		return errors.New("program id is required")
	}
	if c.FeeBps >= BasisPoints {
		return fmt.Errorf("fee rate %d bps must be below %d", c.FeeBps, BasisPoints)
	}
	return ValidateShares(c.Shares)
}

// Engine executes settlement operations.
type Engine struct {
	cfg       Config
	deriver   pda.Deriver
	quoter    quote.Quoter
	authority authority.Provider
	now       func() time.Time
}

// Option configures Engine.
type Option func(*Engine)

// WithQuoter sets the output quoter. Defaults to quote.Identity.
func WithQuoter(q quote.Quoter) Option {
	return func(e *Engine) {
		e.quoter = q
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithAuthorityProvider sets the fee authority provider. Defaults to the
// program-derived fee authority.
func WithAuthorityProvider(p authority.Provider) Option {
	return func(e *Engine) {
		e.authority = p
	}
}

// NewEngine creates an Engine.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settlement config: %w", err)
	}
	cfg.Shares = append([]Share(nil), cfg.Shares...)

	e := &Engine{
		cfg:     cfg,
		deriver: pda.NewDeriver(cfg.ProgramID),
		quoter:  quote.Identity{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.authority == nil {
		p, err := authority.NewPDAProvider(e.deriver)
		if err != nil {
			return nil, err
		}
		e.authority = p
	}
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Now returns the engine clock.
func (e *Engine) Now() time.Time {
	return e.now()
}

// Deriver returns the address deriver for the configured program.
func (e *Engine) Deriver() pda.Deriver {
	return e.deriver
}

// FeeAuthority returns the owner of every fee account.
func (e *Engine) FeeAuthority() solana.PublicKey {
	return e.authority.Authority()
}

// Quote prices amount of tokenIn in tokenOut with the configured quoter.
func (e *Engine) Quote(ctx context.Context, tokenIn, tokenOut solana.PublicKey, amount uint64) (uint64, error) {
	return e.quoter.Quote(ctx, tokenIn, tokenOut, amount)
}

// CommitRequest is the input of Commit. User must already be authenticated
// by the caller.
type CommitRequest struct {
	User       solana.PublicKey `json:"user"`
	IntentHash domain.Hash      `json:"intent_hash"`
	Nonce      uint64           `json:"nonce"`
	Expiry     uint64           `json:"expiry"`
}

// Commit stores a new commitment at the address derived from (user, nonce).
// The hash content and expiry are not inspected.
func (e *Engine) Commit(ctx context.Context, tx storage.Tx, req CommitRequest) (*domain.TradeCommitment, error) {
	addr, err := e.deriver.Commitment(req.User, req.Nonce)
	if err != nil {
		return nil, err
	}

	c := &domain.TradeCommitment{
		Address:    addr,
		User:       req.User,
		IntentHash: req.IntentHash,
		Nonce:      req.Nonce,
		Expiry:     req.Expiry,
		Timestamp:  e.now().Unix(),
	}
	if err := tx.InsertCommitment(ctx, c); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: user %s nonce %d", domain.ErrDuplicateIntent, req.User, req.Nonce)
		}
		return nil, fmt.Errorf("insert commitment: %w", err)
	}
	return c, nil
}

// Lookup returns the commitment of (user, nonce).
func (e *Engine) Lookup(ctx context.Context, tx storage.CommitmentStore, user solana.PublicKey, nonce uint64) (*domain.TradeCommitment, error) {
	addr, err := e.deriver.Commitment(user, nonce)
	if err != nil {
		return nil, err
	}
	c, err := tx.GetCommitment(ctx, addr)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %s nonce %d", ErrCommitmentNotFound, user, nonce)
		}
		return nil, err
	}
	return c, nil
}
