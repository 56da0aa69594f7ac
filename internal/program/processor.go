package program

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"solana-intent-settlement/internal/domain"
	"solana-intent-settlement/internal/settlement"
	"solana-intent-settlement/internal/sigverify"
	"solana-intent-settlement/internal/solana"
	"solana-intent-settlement/internal/storage"
)

// MaxTransactionLifetime bounds how far ahead of now ValidUntil may lie, and
// with it how long an executed transaction has to be remembered.
const MaxTransactionLifetime = 5 * time.Minute

var (
	// ErrTransactionExpired is returned for a transaction past its ValidUntil.
	ErrTransactionExpired = errors.New("transaction expired")

	// ErrTransactionLifetime is returned when ValidUntil is missing or lies
	// more than MaxTransactionLifetime ahead.
	ErrTransactionLifetime = errors.New("invalid transaction lifetime")

	// ErrTransactionReplayed is returned for a transaction already executed
	// or attempted.
	ErrTransactionReplayed = errors.New("transaction already processed")
)

// ReplayGuard remembers transaction ids for ttl.
type ReplayGuard interface {
	// MarkOnce records id and reports false if it was already recorded.
	MarkOnce(ctx context.Context, id string, ttl time.Duration) (bool, error)
}

// Processor executes signed transactions. All program instructions of one
// transaction run in a single storage transaction: either every instruction
// takes effect or none does.
type Processor struct {
	service   *settlement.Service
	programID solana.PublicKey
	replay    ReplayGuard
	logger    *log.Logger
}

type ProcessorOption func(*Processor)

// WithReplayGuard shares executed transaction ids across processors, for
// example through Redis. The default guard is local to the process.
func WithReplayGuard(g ReplayGuard) ProcessorOption {
	return func(p *Processor) {
		p.replay = g
	}
}

// NewProcessor creates a Processor for the service's program id.
func NewProcessor(service *settlement.Service, logger *log.Logger, opts ...ProcessorOption) *Processor {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	p := &Processor{
		service:   service,
		programID: service.Engine().Config().ProgramID,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.replay == nil {
		p.replay = newMemoryReplay(time.Now)
	}
	return p
}

// Result is the outcome of an executed transaction.
type Result struct {
	Events []domain.Event `json:"events"`
}

// Execute verifies tx and runs its program instructions.
//
// Lifetime, signer signatures and every ed25519 verification instruction are
// checked before any state is touched. A transaction that passes these checks
// is consumed: it cannot run again, even if an instruction fails. A reveal
// binds to the verification instruction directly preceding it.
func (p *Processor) Execute(ctx context.Context, tx *solana.Transaction) (*Result, error) {
	now := p.service.Engine().Now()
	if err := checkLifetime(tx, now); err != nil {
		return nil, err
	}
	if err := tx.VerifySignatures(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidSignature, err)
	}

	calls := make([]Call, len(tx.Instructions))
	for i, ix := range tx.Instructions {
		switch {
		case ix.ProgramID.Equals(solana.Ed25519ProgramID):
			if err := sigverify.VerifyInstruction(ix); err != nil {
				return nil, fmt.Errorf("instruction %d: %w: %w", i, domain.ErrInvalidSignature, err)
			}
		case ix.ProgramID.Equals(p.programID):
			c, err := Decode(ix)
			if err != nil {
				return nil, fmt.Errorf("instruction %d: %w", i, err)
			}
			if err := checkSigners(tx, c); err != nil {
				return nil, fmt.Errorf("instruction %d: %w", i, err)
			}
			calls[i] = c
		default:
			return nil, fmt.Errorf("%w: instruction %d targets unknown program %s", ErrInvalidInstruction, i, ix.ProgramID)
		}
	}

	if err := p.consume(ctx, tx, now); err != nil {
		return nil, err
	}

	engine := p.service.Engine()
	events, err := p.service.RunAtomic(ctx, "transaction", func(ctx context.Context, stx storage.Tx) ([]domain.Event, error) {
		var events []domain.Event
		for i, c := range calls {
			if c == nil {
				continue
			}
			ev, err := p.run(ctx, engine, stx, tx.Instructions, i, c)
			if err != nil {
				return nil, fmt.Errorf("instruction %d (%s): %w", i, c.Name(), err)
			}
			if ev != nil {
				events = append(events, ev)
			}
		}
		return events, nil
	})
	if err != nil {
		p.logger.Printf("transaction rejected: %v", err)
		return nil, err
	}
	p.logger.Printf("transaction executed: %d instructions, %d events", len(tx.Instructions), len(events))
	return &Result{Events: events}, nil
}

func (p *Processor) run(ctx context.Context, engine *settlement.Engine, stx storage.Tx, ixs []solana.Instruction, i int, c Call) (domain.Event, error) {
	switch v := c.(type) {
	case CommitTrade:
		want, err := engine.Deriver().Commitment(v.User, v.Nonce)
		if err != nil {
			return nil, err
		}
		if !want.Equals(v.Commitment) {
			return nil, fmt.Errorf("%w: commitment account %s does not match seeds", ErrInvalidInstruction, v.Commitment)
		}
		_, err = engine.Commit(ctx, stx, settlement.CommitRequest{
			User:       v.User,
			IntentHash: v.IntentHash,
			Nonce:      v.Nonce,
			Expiry:     v.Expiry,
		})
		return nil, err

	case RevealTrade:
		req := settlement.RevealRequest{
			Intent:       v.Intent,
			ExpectedHash: v.ExpectedHash,
			Signature:    v.Signature,
			Accounts:     v.Accounts,
		}
		trade, err := engine.Reveal(ctx, stx, req, sigverify.InstructionBinder{Instructions: ixs, Current: i})
		if err != nil {
			return nil, err
		}
		return trade, nil

	case SettleTrade:
		dist, err := engine.Settle(ctx, stx, settlement.SettleRequest{Mint: v.Mint, Amount: v.FeeAmount, Caller: v.Caller})
		if err != nil {
			return nil, err
		}
		return dist, nil

	case InitializeFeeAccounts:
		ev, err := engine.InitializeFeePools(ctx, stx, v.Mint)
		if err != nil {
			return nil, err
		}
		return ev, nil
	}
	return nil, fmt.Errorf("%w: unsupported call %s", ErrInvalidInstruction, c.Name())
}

func checkLifetime(tx *solana.Transaction, now time.Time) error {
	switch {
	case tx.ValidUntil <= 0:
		return fmt.Errorf("%w: valid_until is required", ErrTransactionLifetime)
	case tx.ValidUntil < now.Unix():
		return fmt.Errorf("%w: valid until %d, now %d", ErrTransactionExpired, tx.ValidUntil, now.Unix())
	case tx.ValidUntil > now.Add(MaxTransactionLifetime).Unix():
		return fmt.Errorf("%w: valid until %d is more than %s ahead", ErrTransactionLifetime, tx.ValidUntil, MaxTransactionLifetime)
	}
	return nil
}

// consume records the signed message so the same transaction is rejected
// until it expires anyway.
func (p *Processor) consume(ctx context.Context, tx *solana.Transaction, now time.Time) error {
	msg, err := tx.Message()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInstruction, err)
	}
	sum := sha256.Sum256(msg)
	id := hex.EncodeToString(sum[:])

	ttl := time.Duration(tx.ValidUntil-now.Unix()+1) * time.Second
	fresh, err := p.replay.MarkOnce(ctx, id, ttl)
	if err != nil {
		return fmt.Errorf("replay guard: %w", err)
	}
	if !fresh {
		return fmt.Errorf("%w: %s", ErrTransactionReplayed, id)
	}
	return nil
}

// memoryReplay is a process-local ReplayGuard.
type memoryReplay struct {
	mu   sync.Mutex
	now  func() time.Time
	seen map[string]time.Time
}

func newMemoryReplay(now func() time.Time) *memoryReplay {
	return &memoryReplay{now: now, seen: make(map[string]time.Time)}
}

func (m *memoryReplay) MarkOnce(_ context.Context, id string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, until := range m.seen {
		if now.After(until) {
			delete(m.seen, k)
		}
	}
	if _, ok := m.seen[id]; ok {
		return false, nil
	}
	m.seen[id] = now.Add(ttl)
	return true, nil
}

// checkSigners enforces which accounts of c must have signed tx.
func checkSigners(tx *solana.Transaction, c Call) error {
	switch v := c.(type) {
	case CommitTrade:
		if !tx.IsSigner(v.User) {
			return fmt.Errorf("%w: user %s did not sign", domain.ErrInvalidSignature, v.User)
		}
	case RevealTrade:
		if !tx.IsSigner(v.Accounts.User) {
			return fmt.Errorf("%w: user %s did not sign", domain.ErrInvalidSignature, v.Accounts.User)
		}
		if !tx.IsSigner(v.Accounts.Relayer) {
			return fmt.Errorf("%w: relayer %s did not sign", domain.ErrInvalidRelayer, v.Accounts.Relayer)
		}
	case SettleTrade:
		if !tx.IsSigner(v.Caller) {
			return fmt.Errorf("%w: caller %s did not sign", domain.ErrInvalidRelayer, v.Caller)
		}
	case InitializeFeeAccounts:
		if !tx.IsSigner(v.Payer) {
			return fmt.Errorf("%w: payer %s did not sign", domain.ErrInvalidSignature, v.Payer)
		}
	}
	return nil
}
