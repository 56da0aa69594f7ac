package http

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-intent-settlement/internal/api/http/handlers"
	"solana-intent-settlement/internal/api/http/mw"
	"solana-intent-settlement/internal/domain"
	"solana-intent-settlement/internal/httputil"
	"solana-intent-settlement/internal/idhash"
	"solana-intent-settlement/internal/pda"
	"solana-intent-settlement/internal/program"
	"solana-intent-settlement/internal/security"
	"solana-intent-settlement/internal/settlement"
	"solana-intent-settlement/internal/solana"
	"solana-intent-settlement/internal/storage/clickhouse"
	"solana-intent-settlement/internal/storage/memory"
)

var (
	mintIn  = solana.PublicKey{0xa1, 1}
	mintOut = solana.PublicKey{0xb2, 2}
	now     = time.Unix(1_699_999_000, 0)
)

type response struct {
	Status string            `json:"status"`
	Data   json.RawMessage   `json:"data"`
	Error  httputil.APIError `json:"error"`
}

type apiFixture struct {
	t       *testing.T
	service *settlement.Service
	handler *handlers.Handler
	router  http.Handler
	user    *solana.Keypair
	relayer *solana.Keypair
}

func newAPIFixture(t *testing.T, jwtMW *mw.JWTMiddleware) *apiFixture {
	t.Helper()
	user, err := solana.KeypairFromSeed(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)
	relayer, err := solana.KeypairFromSeed(bytes.Repeat([]byte{2}, 32))
	require.NoError(t, err)

	engine, err := settlement.NewEngine(settlement.DefaultConfig(),
		settlement.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	service := settlement.NewService(memory.NewStore(), engine)

	ctx := context.Background()
	_, err = service.InitializeFeePools(ctx, mintIn)
	require.NoError(t, err)
	for _, p := range []struct {
		owner  solana.PublicKey
		mint   solana.PublicKey
		amount uint64
	}{
		{user.PublicKey(), mintIn, 1_000_000},
		{user.PublicKey(), mintOut, 0},
		{relayer.PublicKey(), mintIn, 0},
		{relayer.PublicKey(), mintOut, 2_000_000},
	} {
		_, err := service.ProvisionAccount(ctx, p.owner, p.mint, p.amount)
		require.NoError(t, err)
	}

	h := handlers.NewHandler(nil, service, nil)
	h.SetClock(func() time.Time { return now })

	return &apiFixture{
		t:       t,
		service: service,
		handler: h,
		router:  BuildRouter(h, nil, nil, jwtMW, nil),
		user:    user,
		relayer: relayer,
	}
}

func (f *apiFixture) intent(nonce uint64) domain.RevealedIntent {
	return domain.RevealedIntent{
		User:       f.user.PublicKey(),
		Nonce:      nonce,
		Expiry:     1_700_000_000,
		Relayer:    f.relayer.PublicKey(),
		RelayerFee: 5,
		TokenIn:    mintIn,
		TokenOut:   mintOut,
		AmountIn:   1_000_000,
		MinOut:     990_000,
	}
}

func (f *apiFixture) do(method, path string, body any, header ...string) (int, response) {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var resp response
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	}
	return rec.Code, resp
}

func (f *apiFixture) commitBody(intent domain.RevealedIntent) handlers.CommitRequest {
	hash := idhash.ComputeIntentHash(&intent)
	return handlers.CommitRequest{
		CommitRequest: settlement.CommitRequest{
			User:       intent.User,
			IntentHash: hash,
			Nonce:      intent.Nonce,
			Expiry:     intent.Expiry,
		},
		Signature: f.user.Sign(domain.CommitMessage(hash, intent.Nonce, intent.Expiry)),
	}
}

func (f *apiFixture) revealBody(intent domain.RevealedIntent) handlers.RevealRequest {
	hash := idhash.ComputeIntentHash(&intent)
	return handlers.RevealRequest{
		Intent:           intent,
		ExpectedHash:     hash,
		Signature:        f.user.Sign(hash[:]),
		RelayerSignature: f.relayer.Sign(hash[:]),
	}
}

func TestHealthAndMetrics(t *testing.T) {
	f := newAPIFixture(t, nil)

	code, resp := f.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp.Status)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadiness(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.handler.Checks["redis"] = func(context.Context) error { return nil }

	code, _ := f.do(http.MethodGet, "/readiness", nil)
	assert.Equal(t, http.StatusOK, code)

	f.handler.Checks["postgres"] = func(context.Context) error { return errors.New("down") }
	code, resp := f.do(http.MethodGet, "/readiness", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "dependencies_unhealthy", resp.Error.Name)
}

func TestCommitRevealFlow(t *testing.T) {
	f := newAPIFixture(t, nil)
	intent := f.intent(1)

	code, resp := f.do(http.MethodPost, "/v1/commit", f.commitBody(intent))
	require.Equal(t, http.StatusCreated, code, resp.Error.Message)

	var status handlers.CommitmentStatus
	code, resp = f.do(http.MethodGet, "/v1/commitments/"+intent.User.String()+"/1", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(resp.Data, &status))
	assert.False(t, status.Expired)
	assert.Equal(t, int64(1000), status.SecondsRemaining)
	assert.False(t, status.Revealed)
	assert.Equal(t, idhash.ComputeIntentHash(&intent), status.IntentHash)

	code, resp = f.do(http.MethodPost, "/v1/reveal", f.revealBody(intent))
	require.Equal(t, http.StatusOK, code, resp.Error.Message)
	var trade domain.TradeExecuted
	require.NoError(t, json.Unmarshal(resp.Data, &trade))
	assert.Equal(t, uint64(997_000), trade.AmountOut)
	assert.Equal(t, uint64(3_000), trade.ProtocolFee)

	code, resp = f.do(http.MethodPost, "/v1/reveal", f.revealBody(intent))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "AlreadyRevealed", resp.Error.Name)
	assert.Equal(t, uint32(domain.ErrAlreadyRevealed.Code), resp.Error.Code)

	var list []handlers.CommitmentStatus
	code, resp = f.do(http.MethodGet, "/v1/commitments/"+intent.User.String(), nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	require.Len(t, list, 1)
	assert.True(t, list[0].Revealed)
}

func TestCommit_Rejections(t *testing.T) {
	f := newAPIFixture(t, nil)
	intent := f.intent(7)

	forged := f.commitBody(intent)
	forged.Expiry++
	code, resp := f.do(http.MethodPost, "/v1/commit", forged)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "InvalidSignature", resp.Error.Name)

	code, _ = f.do(http.MethodPost, "/v1/commit", f.commitBody(intent))
	require.Equal(t, http.StatusCreated, code)
	code, resp = f.do(http.MethodPost, "/v1/commit", f.commitBody(intent))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "DuplicateIntent", resp.Error.Name)

	code, resp = f.do(http.MethodPost, "/v1/commit", map[string]any{"unknown": 1})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "bad_request", resp.Error.Name)
}

func TestReveal_HashMismatch(t *testing.T) {
	f := newAPIFixture(t, nil)
	intent := f.intent(2)
	code, _ := f.do(http.MethodPost, "/v1/commit", f.commitBody(intent))
	require.Equal(t, http.StatusCreated, code)

	body := f.revealBody(intent)
	body.Intent.MinOut = 1
	code, resp := f.do(http.MethodPost, "/v1/reveal", body)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "HashMismatch", resp.Error.Name)
}

func TestReveal_ConfiguredRelayerOnly(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.handler.Relayer = solana.PublicKey{9}
	intent := f.intent(3)
	code, _ := f.do(http.MethodPost, "/v1/commit", f.commitBody(intent))
	require.Equal(t, http.StatusCreated, code)

	code, resp := f.do(http.MethodPost, "/v1/reveal", f.revealBody(intent))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "InvalidRelayer", resp.Error.Name)
}

func (f *apiFixture) balance(owner, mint solana.PublicKey) uint64 {
	f.t.Helper()
	addr, err := pda.AssociatedTokenAddress(owner, mint)
	require.NoError(f.t, err)
	code, resp := f.do(http.MethodGet, "/v1/accounts/"+addr.String(), nil)
	require.Equal(f.t, http.StatusOK, code, resp.Error.Message)
	var acc domain.TokenAccount
	require.NoError(f.t, json.Unmarshal(resp.Data, &acc))
	return acc.Amount
}

func TestReveal_RequiresRelayerSignature(t *testing.T) {
	f := newAPIFixture(t, mw.NewJWTMiddleware(nil))
	attacker, err := solana.KeypairFromSeed(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	junk := solana.PublicKey{0xee, 7}

	// A worthless mint with pools and accounts, paid in to the named relayer.
	code, _ := f.do(http.MethodPost, "/v1/fees/initialize", handlers.InitializeFeePoolsRequest{Mint: junk})
	require.Equal(t, http.StatusCreated, code)
	for _, p := range []handlers.ProvisionRequest{
		{Owner: attacker.PublicKey(), Mint: junk, Amount: 1_000_000},
		{Owner: attacker.PublicKey(), Mint: mintOut},
		{Owner: f.relayer.PublicKey(), Mint: junk},
	} {
		code, resp := f.do(http.MethodPost, "/v1/accounts", p)
		require.Equal(t, http.StatusOK, code, resp.Error.Message)
	}

	intent := f.intent(11)
	intent.User = attacker.PublicKey()
	intent.TokenIn = junk
	hash := idhash.ComputeIntentHash(&intent)
	code, resp := f.do(http.MethodPost, "/v1/commit", handlers.CommitRequest{
		CommitRequest: settlement.CommitRequest{User: intent.User, IntentHash: hash, Nonce: intent.Nonce, Expiry: intent.Expiry},
		Signature:     attacker.Sign(domain.CommitMessage(hash, intent.Nonce, intent.Expiry)),
	})
	require.Equal(t, http.StatusCreated, code, resp.Error.Message)

	reveal := handlers.RevealRequest{Intent: intent, ExpectedHash: hash, Signature: attacker.Sign(hash[:])}
	for name, sig := range map[string]solana.Signature{
		"missing":           {},
		"signed by another": attacker.Sign(hash[:]),
		"other message":     f.relayer.Sign([]byte("not the intent")),
	} {
		reveal.RelayerSignature = sig
		code, resp := f.do(http.MethodPost, "/v1/reveal", reveal)
		assert.Equal(t, http.StatusBadRequest, code, name)
		assert.Equal(t, "InvalidRelayer", resp.Error.Name, name)
	}
	assert.Equal(t, uint64(2_000_000), f.balance(f.relayer.PublicKey(), mintOut))

	reveal.RelayerSignature = f.relayer.Sign(hash[:])
	code, resp = f.do(http.MethodPost, "/v1/reveal", reveal)
	require.Equal(t, http.StatusOK, code, resp.Error.Message)
	assert.Equal(t, uint64(2_000_000-997_000+5), f.balance(f.relayer.PublicKey(), mintOut))
}

func TestOperatorRoutesClosedWithoutAuth(t *testing.T) {
	f := newAPIFixture(t, nil)

	for _, tc := range []struct {
		path string
		body any
	}{
		{"/v1/fees/initialize", handlers.InitializeFeePoolsRequest{Mint: mintOut}},
		{"/v1/fees/settle", settlement.SettleRequest{Mint: mintIn, Amount: 1, Caller: f.relayer.PublicKey()}},
		{"/v1/accounts", handlers.ProvisionRequest{Owner: f.user.PublicKey(), Mint: mintIn, Amount: 1}},
	} {
		code, _ := f.do(http.MethodPost, tc.path, tc.body)
		assert.Contains(t, []int{http.StatusNotFound, http.StatusMethodNotAllowed}, code, tc.path)
	}
	assert.Equal(t, uint64(1_000_000), f.balance(f.user.PublicKey(), mintIn))

	// Signature-authenticated writes stay available.
	intent := f.intent(12)
	code, _ := f.do(http.MethodPost, "/v1/commit", f.commitBody(intent))
	require.Equal(t, http.StatusCreated, code)
	code, resp := f.do(http.MethodPost, "/v1/reveal", f.revealBody(intent))
	assert.Equal(t, http.StatusOK, code, resp.Error.Message)
}

func TestCommitment_Lookups(t *testing.T) {
	f := newAPIFixture(t, nil)
	user := f.user.PublicKey().String()

	code, resp := f.do(http.MethodGet, "/v1/commitments/"+user+"/42", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", resp.Error.Name)

	code, _ = f.do(http.MethodGet, "/v1/commitments/"+user+"/x", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(http.MethodGet, "/v1/commitments/not-a-key/1", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = f.do(http.MethodGet, "/v1/commitments/"+user, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(resp.Data))
}

func TestTransactions(t *testing.T) {
	f := newAPIFixture(t, nil)
	intent := f.intent(4)
	programID := f.service.Engine().Config().ProgramID
	addr, err := pda.NewDeriver(programID).Commitment(intent.User, intent.Nonce)
	require.NoError(t, err)

	ix, err := program.Encode(programID, program.CommitTrade{
		Commitment: addr,
		User:       intent.User,
		IntentHash: idhash.ComputeIntentHash(&intent),
		Nonce:      intent.Nonce,
		Expiry:     intent.Expiry,
	})
	require.NoError(t, err)

	tx := &solana.Transaction{ValidUntil: now.Add(time.Minute).Unix(), Instructions: []solana.Instruction{ix}}
	require.NoError(t, tx.Sign(f.relayer))
	code, resp := f.do(http.MethodPost, "/v1/transactions", tx)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "InvalidSignature", resp.Error.Name)

	require.NoError(t, tx.Sign(f.user))
	code, resp = f.do(http.MethodPost, "/v1/transactions", tx)
	require.Equal(t, http.StatusOK, code, resp.Error.Message)

	code, _ = f.do(http.MethodGet, "/v1/commitments/"+intent.User.String()+"/4", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestFees(t *testing.T) {
	f := newAPIFixture(t, mw.NewJWTMiddleware(nil))
	intent := f.intent(5)
	code, _ := f.do(http.MethodPost, "/v1/commit", f.commitBody(intent))
	require.Equal(t, http.StatusCreated, code)
	code, _ = f.do(http.MethodPost, "/v1/reveal", f.revealBody(intent))
	require.Equal(t, http.StatusOK, code)

	var view settlement.FeePoolsView
	code, resp := f.do(http.MethodGet, "/v1/fees/"+mintIn.String(), nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(resp.Data, &view))
	assert.Equal(t, uint64(3_000), view.Collection.Amount)

	settle := settlement.SettleRequest{Mint: mintIn, Amount: 3_000, Caller: f.relayer.PublicKey()}
	code, resp = f.do(http.MethodPost, "/v1/fees/settle", settle)
	require.Equal(t, http.StatusOK, code, resp.Error.Message)
	var dist domain.FeeDistributed
	require.NoError(t, json.Unmarshal(resp.Data, &dist))
	assert.Equal(t, uint64(1_500), dist.StakersShare)
	assert.Equal(t, uint64(900), dist.TreasuryShare)
	assert.Equal(t, uint64(600), dist.BountyShare)

	code, resp = f.do(http.MethodPost, "/v1/fees/settle", settle)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "InsufficientBalance", resp.Error.Name)

	code, resp = f.do(http.MethodPost, "/v1/fees/initialize", handlers.InitializeFeePoolsRequest{Mint: mintIn})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "conflict", resp.Error.Name)

	code, _ = f.do(http.MethodPost, "/v1/fees/initialize", handlers.InitializeFeePoolsRequest{Mint: mintOut})
	assert.Equal(t, http.StatusCreated, code)

	code, _ = f.do(http.MethodGet, "/v1/fees/"+solana.PublicKey{7}.String(), nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestQuoteAndAccounts(t *testing.T) {
	f := newAPIFixture(t, mw.NewJWTMiddleware(nil))

	var q settlement.QuoteResult
	code, resp := f.do(http.MethodPost, "/v1/quote", handlers.QuoteRequest{TokenIn: mintIn, TokenOut: mintOut, AmountIn: 1_000_000})
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(resp.Data, &q))
	assert.Equal(t, uint64(3_000), q.ProtocolFee)
	assert.Equal(t, uint64(997_000), q.AmountOut)

	code, resp = f.do(http.MethodPost, "/v1/quote", handlers.QuoteRequest{TokenIn: mintIn, TokenOut: mintOut})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "AmountTooSmall", resp.Error.Name)

	owner := solana.PublicKey{0x33, 3}
	var acc domain.TokenAccount
	code, resp = f.do(http.MethodPost, "/v1/accounts", handlers.ProvisionRequest{Owner: owner, Mint: mintIn, Amount: 50})
	require.Equal(t, http.StatusOK, code, resp.Error.Message)
	require.NoError(t, json.Unmarshal(resp.Data, &acc))
	assert.Equal(t, uint64(50), acc.Amount)

	code, resp = f.do(http.MethodGet, "/v1/accounts/"+acc.Address.String(), nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(resp.Data, &acc))
	assert.Equal(t, owner, acc.Owner)

	code, _ = f.do(http.MethodGet, "/v1/accounts/"+solana.PublicKey{0x44}.String(), nil)
	assert.Equal(t, http.StatusNotFound, code)
}

type stubHistory struct {
	trades []*clickhouse.TradeExecution
}

func (s *stubHistory) ListTradeExecutions(_ context.Context, _ solana.PublicKey, limit int) ([]*clickhouse.TradeExecution, error) {
	if limit < len(s.trades) {
		return s.trades[:limit], nil
	}
	return s.trades, nil
}

func (s *stubHistory) FeeTotals(_ context.Context, token solana.PublicKey) (*clickhouse.FeeTotals, error) {
	return &clickhouse.FeeTotals{Token: token.String(), Distributions: 2, TotalAmount: 101}, nil
}

func TestHistory(t *testing.T) {
	f := newAPIFixture(t, nil)
	user := f.user.PublicKey().String()

	code, resp := f.do(http.MethodGet, "/v1/trades/"+user, nil)
	assert.Equal(t, http.StatusNotImplemented, code)
	assert.Equal(t, "not_implemented", resp.Error.Name)

	f.handler.History = &stubHistory{trades: []*clickhouse.TradeExecution{{Nonce: 1}, {Nonce: 2}}}

	var trades []*clickhouse.TradeExecution
	code, resp = f.do(http.MethodGet, "/v1/trades/"+user+"?limit=1", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(resp.Data, &trades))
	assert.Len(t, trades, 1)

	code, _ = f.do(http.MethodGet, "/v1/trades/"+user+"?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	var totals clickhouse.FeeTotals
	code, resp = f.do(http.MethodGet, "/v1/fees/"+mintIn.String()+"/totals", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(resp.Data, &totals))
	assert.Equal(t, uint64(101), totals.TotalAmount)
}

func TestOperatorRoutesRequireToken(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	jwtMW := mw.NewJWTMiddleware(&security.RS256Verifier{PubKey: &priv.PublicKey, Aud: "operators", Iss: "settlement"})
	f := newAPIFixture(t, jwtMW)

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Subject:   "ops-1",
		Audience:  jwt.ClaimStrings{"operators"},
		Issuer:    "settlement",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(priv)
	require.NoError(t, err)

	body := handlers.InitializeFeePoolsRequest{Mint: mintOut}
	code, resp := f.do(http.MethodPost, "/v1/fees/initialize", body)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "unauthorized", resp.Error.Name)

	code, _ = f.do(http.MethodPost, "/v1/fees/initialize", body, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusCreated, code)

	// Reads and signature-authenticated writes stay public.
	code, _ = f.do(http.MethodGet, "/v1/fees/"+mintOut.String(), nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = f.do(http.MethodPost, "/v1/commit", f.commitBody(f.intent(9)))
	assert.Equal(t, http.StatusCreated, code)
}
