package settlement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"solana-intent-settlement/internal/domain"
	"solana-intent-settlement/internal/ledger"
	"solana-intent-settlement/internal/observability"
	"solana-intent-settlement/internal/pda"
	"solana-intent-settlement/internal/sigverify"
	"solana-intent-settlement/internal/solana"
	"solana-intent-settlement/internal/storage"
)

// Publisher receives events after the transaction that produced them commits.
type Publisher interface {
	Publish(ctx context.Context, e domain.Event) error
}

// Locker serialises work on one key across processes.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Service runs Engine operations in their own storage transaction and
// publishes the resulting events.
type Service struct {
	store     storage.Store
	engine    *Engine
	publisher Publisher
	locker    Locker
	logger    *log.Logger
}

// ServiceOption configures Service.
type ServiceOption func(*Service)

// WithPublisher sets the event publisher.
func WithPublisher(p Publisher) ServiceOption {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithRevealLocker sets the lock taken around each reveal.
func WithRevealLocker(l Locker) ServiceOption {
	return func(s *Service) {
		s.locker = l
	}
}

// WithLogger sets the service logger.
func WithLogger(l *log.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = l
	}
}

// NewService creates a Service.
func NewService(store storage.Store, engine *Engine, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		engine: engine,
		logger: log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine returns the underlying engine.
func (s *Service) Engine() *Engine {
	return s.engine
}

// RunAtomic runs fn in one storage transaction. Events returned by fn are
// published only after the transaction commits.
func (s *Service) RunAtomic(ctx context.Context, operation string, fn func(ctx context.Context, tx storage.Tx) ([]domain.Event, error)) ([]domain.Event, error) {
	start := time.Now()

	var events []domain.Event
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		events, err = fn(ctx, tx)
		return err
	})
	observability.RecordOperation(operation, statusOf(err), time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	for _, ev := range events {
		s.publish(ctx, ev)
	}
	return events, nil
}

func (s *Service) publish(ctx context.Context, ev domain.Event) {
	switch e := ev.(type) {
	case *domain.TradeExecuted:
		observability.RecordTrade(e.TokenIn.String(), e.ProtocolFee)
	case *domain.FeeDistributed:
		observability.RecordDistribution(e.Token.String(), e.StakersShare, e.TreasuryShare, e.BountyShare)
	}

	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Printf("WARN: publish %s: %v", ev.EventName(), err)
	}
}

// statusOf labels an operation outcome for metrics.
func statusOf(err error) string {
	if err == nil {
		return "ok"
	}
	if pe, ok := domain.AsError(err); ok {
		return pe.Name
	}
	return "error"
}

// Commit stores a commitment for an authenticated user.
func (s *Service) Commit(ctx context.Context, req CommitRequest) (*domain.TradeCommitment, error) {
	var c *domain.TradeCommitment
	_, err := s.RunAtomic(ctx, "commit", func(ctx context.Context, tx storage.Tx) ([]domain.Event, error) {
		var err error
		c, err = s.engine.Commit(ctx, tx, req)
		return nil, err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Printf("commit user=%s nonce=%d address=%s", c.User, c.Nonce, c.Address)
	return c, nil
}

// Reveal executes a reveal. When a Locker is configured a second reveal of
// the same commitment fails fast while the first is running.
func (s *Service) Reveal(ctx context.Context, req RevealRequest, binder sigverify.Binder) (*domain.TradeExecuted, error) {
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, req.Accounts.Commitment.String())
		if err != nil {
			observability.RecordOperation("reveal", statusOf(err), 0)
			return nil, err
		}
		defer release()
	}

	var trade *domain.TradeExecuted
	_, err := s.RunAtomic(ctx, "reveal", func(ctx context.Context, tx storage.Tx) ([]domain.Event, error) {
		var err error
		trade, err = s.engine.Reveal(ctx, tx, req, binder)
		if err != nil {
			return nil, err
		}
		return []domain.Event{trade}, nil
	})
	if err != nil {
		s.logger.Printf("reveal rejected user=%s nonce=%d: %v", req.Intent.User, req.Intent.Nonce, err)
		return nil, err
	}
	s.logger.Printf("reveal executed user=%s nonce=%d in=%d out=%d fee=%d",
		trade.User, trade.Nonce, trade.AmountIn, trade.AmountOut, trade.ProtocolFee)
	return trade, nil
}

// Settle distributes collected fees.
func (s *Service) Settle(ctx context.Context, req SettleRequest) (*domain.FeeDistributed, error) {
	var dist *domain.FeeDistributed
	_, err := s.RunAtomic(ctx, "settle", func(ctx context.Context, tx storage.Tx) ([]domain.Event, error) {
		var err error
		dist, err = s.engine.Settle(ctx, tx, req)
		if err != nil {
			return nil, err
		}
		return []domain.Event{dist}, nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Printf("settle mint=%s total=%d stakers=%d treasury=%d bounty=%d",
		dist.Token, dist.TotalAmount, dist.StakersShare, dist.TreasuryShare, dist.BountyShare)
	return dist, nil
}

// InitializeFeePools opens the fee accounts of mint.
func (s *Service) InitializeFeePools(ctx context.Context, mint solana.PublicKey) (*domain.FeePoolsInitialized, error) {
	var ev *domain.FeePoolsInitialized
	_, err := s.RunAtomic(ctx, "initialize_fee_pools", func(ctx context.Context, tx storage.Tx) ([]domain.Event, error) {
		var err error
		ev, err = s.engine.InitializeFeePools(ctx, tx, mint)
		if err != nil {
			return nil, err
		}
		return []domain.Event{ev}, nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Printf("fee pools initialized mint=%s collection=%s", mint, ev.FeeCollection)
	return ev, nil
}

// Commitment looks up the commitment of (user, nonce).
func (s *Service) Commitment(ctx context.Context, user solana.PublicKey, nonce uint64) (*domain.TradeCommitment, error) {
	return s.engine.Lookup(ctx, s.store, user, nonce)
}

// Commitments lists the commitments of user.
func (s *Service) Commitments(ctx context.Context, user solana.PublicKey) ([]*domain.TradeCommitment, error) {
	return s.store.ListCommitmentsByUser(ctx, user)
}

// PoolBalance is a fee account with its current balance.
type PoolBalance struct {
	Kind    domain.PoolKind  `json:"kind"`
	Address solana.PublicKey `json:"address"`
	Amount  uint64           `json:"amount"`
}

// FeePoolsView is the fee configuration of a mint with live balances.
type FeePoolsView struct {
	Mint       solana.PublicKey `json:"mint"`
	Authority  solana.PublicKey `json:"authority"`
	Collection PoolBalance      `json:"collection"`
	Pools      []PoolBalance    `json:"pools"`
	CreatedAt  int64            `json:"created_at"`
}

// FeePools returns the fee accounts of mint with their balances.
func (s *Service) FeePools(ctx context.Context, mint solana.PublicKey) (*FeePoolsView, error) {
	pools, err := s.engine.FeePools(ctx, s.store, mint)
	if err != nil {
		return nil, err
	}

	balance := func(kind domain.PoolKind, addr solana.PublicKey) (PoolBalance, error) {
		a, err := s.store.GetTokenAccount(ctx, addr)
		if err != nil {
			return PoolBalance{}, fmt.Errorf("load %s account: %w", kind, err)
		}
		return PoolBalance{Kind: kind, Address: addr, Amount: a.Amount}, nil
	}

	view := &FeePoolsView{Mint: pools.Mint, Authority: pools.Authority, CreatedAt: pools.CreatedAt}
	if view.Collection, err = balance("collection", pools.Collection); err != nil {
		return nil, err
	}
	for _, d := range pools.Destinations {
		b, err := balance(d.Kind, d.Address)
		if err != nil {
			return nil, err
		}
		view.Pools = append(view.Pools, b)
	}
	return view, nil
}

// ProvisionAccount makes sure owner has an associated token account of mint
// and credits amount to it. It exists for devnets and tests.
func (s *Service) ProvisionAccount(ctx context.Context, owner, mint solana.PublicKey, amount uint64) (*domain.TokenAccount, error) {
	addr, err := pda.AssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, err
	}

	var acc *domain.TokenAccount
	_, err = s.RunAtomic(ctx, "provision_account", func(ctx context.Context, tx storage.Tx) ([]domain.Event, error) {
		if _, err := ledger.OpenAccount(ctx, tx, addr, mint, owner); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			return nil, err
		}
		existing, err := tx.GetTokenAccount(ctx, addr)
		if err != nil {
			return nil, err
		}
		if !existing.Owner.Equals(owner) || !existing.Mint.Equals(mint) {
			return nil, fmt.Errorf("%w: %s is not %s's %s account", storage.ErrInvalidInput, addr, owner, mint)
		}
		acc, err = ledger.Deposit(ctx, tx, addr, amount)
		return nil, err
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// Account returns a token account.
func (s *Service) Account(ctx context.Context, address solana.PublicKey) (*domain.TokenAccount, error) {
	a, err := s.store.GetTokenAccount(ctx, address)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, address)
		}
		return nil, err
	}
	return a, nil
}

// QuoteResult is a priced trade preview.
type QuoteResult struct {
	AmountIn    uint64 `json:"amount_in"`
	ProtocolFee uint64 `json:"protocol_fee"`
	AmountOut   uint64 `json:"amount_out"`
	FeeBps      uint16 `json:"fee_bps"`
}

// Quote previews the output of a trade after the protocol fee.
func (s *Service) Quote(ctx context.Context, tokenIn, tokenOut solana.PublicKey, amountIn uint64) (*QuoteResult, error) {
	if amountIn == 0 {
		return nil, domain.ErrAmountTooSmall
	}
	feeBps := s.engine.Config().FeeBps
	fee, err := ProtocolFee(amountIn, feeBps)
	if err != nil {
		return nil, err
	}
	out, err := s.engine.Quote(ctx, tokenIn, tokenOut, amountIn-fee)
	if err != nil {
		return nil, err
	}
	return &QuoteResult{AmountIn: amountIn, ProtocolFee: fee, AmountOut: out, FeeBps: feeBps}, nil
}
