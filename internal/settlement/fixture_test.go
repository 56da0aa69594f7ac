package settlement

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"solana-intent-settlement/internal/domain"
	"solana-intent-settlement/internal/idhash"
	"solana-intent-settlement/internal/ledger"
	"solana-intent-settlement/internal/pda"
	"solana-intent-settlement/internal/sigverify"
	"solana-intent-settlement/internal/solana"
	"solana-intent-settlement/internal/storage"
	"solana-intent-settlement/internal/storage/memory"
)

const (
	testNow    = 1_699_999_000
	testExpiry = 1_700_000_000
)

var (
	tokenIn  = solana.PublicKey{0xa1, 1}
	tokenOut = solana.PublicKey{0xb2, 2}
)

// harness is a fully provisioned program: fee pools for tokenIn, funded user
// and relayer accounts.
type harness struct {
	t       *testing.T
	ctx     context.Context
	store   *memory.Store
	engine  *Engine
	service *Service
	user    *solana.Keypair
	relayer *solana.Keypair
	clock   time.Time
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()

	user, err := solana.KeypairFromSeed(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)
	relayer, err := solana.KeypairFromSeed(bytes.Repeat([]byte{2}, 32))
	require.NoError(t, err)

	h := &harness{
		t:       t,
		ctx:     context.Background(),
		store:   memory.NewStore(),
		user:    user,
		relayer: relayer,
		clock:   time.Unix(testNow, 0),
	}

	cfg := DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	h.engine, err = NewEngine(cfg, WithClock(func() time.Time { return h.clock }))
	require.NoError(t, err)
	h.service = NewService(h.store, h.engine)

	_, err = h.service.InitializeFeePools(h.ctx, tokenIn)
	require.NoError(t, err)

	h.fund(user.PublicKey(), tokenIn, 1_000_000)
	h.fund(user.PublicKey(), tokenOut, 0)
	h.fund(relayer.PublicKey(), tokenIn, 0)
	h.fund(relayer.PublicKey(), tokenOut, 2_000_000)
	return h
}

func (h *harness) fund(owner, mint solana.PublicKey, amount uint64) {
	h.t.Helper()
	_, err := h.service.ProvisionAccount(h.ctx, owner, mint, amount)
	require.NoError(h.t, err)
}

func (h *harness) balance(owner, mint solana.PublicKey) uint64 {
	h.t.Helper()
	addr, err := pda.AssociatedTokenAddress(owner, mint)
	require.NoError(h.t, err)
	a, err := h.store.GetTokenAccount(h.ctx, addr)
	require.NoError(h.t, err)
	return a.Amount
}

func (h *harness) accountBalance(addr solana.PublicKey) uint64 {
	h.t.Helper()
	a, err := h.store.GetTokenAccount(h.ctx, addr)
	require.NoError(h.t, err)
	return a.Amount
}

func (h *harness) intent(nonce uint64) domain.RevealedIntent {
	return domain.RevealedIntent{
		User:       h.user.PublicKey(),
		Nonce:      nonce,
		Expiry:     testExpiry,
		Relayer:    h.relayer.PublicKey(),
		RelayerFee: 5,
		TokenIn:    tokenIn,
		TokenOut:   tokenOut,
		AmountIn:   1_000_000,
		MinOut:     990_000,
	}
}

// commit stores the hash of intent with the intent's own expiry.
func (h *harness) commit(intent domain.RevealedIntent) *domain.TradeCommitment {
	h.t.Helper()
	c, err := h.service.Commit(h.ctx, CommitRequest{
		User:       intent.User,
		IntentHash: idhash.ComputeIntentHash(&intent),
		Nonce:      intent.Nonce,
		Expiry:     intent.Expiry,
	})
	require.NoError(h.t, err)
	return c
}

// revealRequest builds a correctly signed reveal of intent.
func (h *harness) revealRequest(intent domain.RevealedIntent) RevealRequest {
	h.t.Helper()
	hash := idhash.ComputeIntentHash(&intent)
	accounts, err := h.engine.ResolveRevealAccounts(&intent)
	require.NoError(h.t, err)
	return RevealRequest{
		Intent:       intent,
		ExpectedHash: hash,
		Signature:    h.user.Sign(hash[:]),
		Accounts:     accounts,
	}
}

func (h *harness) reveal(req RevealRequest) (*domain.TradeExecuted, error) {
	return h.service.Reveal(h.ctx, req, sigverify.Detached{})
}

func (h *harness) feeCollection() solana.PublicKey {
	addr, err := h.engine.Deriver().FeeCollection(tokenIn)
	require.NoError(h.t, err)
	return addr
}

// seedCollection credits the fee collection of tokenIn directly.
func (h *harness) seedCollection(amount uint64) {
	h.t.Helper()
	err := h.store.RunInTx(h.ctx, func(ctx context.Context, tx storage.Tx) error {
		_, err := ledger.Deposit(ctx, tx, h.feeCollection(), amount)
		return err
	})
	require.NoError(h.t, err)
}
