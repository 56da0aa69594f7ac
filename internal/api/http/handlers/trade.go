package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"solana-intent-settlement/internal/domain"
	"solana-intent-settlement/internal/httputil"
	"solana-intent-settlement/internal/settlement"
	"solana-intent-settlement/internal/sigverify"
	"solana-intent-settlement/internal/solana"
)

// CommitRequest is a commit authorised by the user's signature over
// domain.CommitMessage.
type CommitRequest struct {
	settlement.CommitRequest
	Signature solana.Signature `json:"signature"`
}

// CommitmentStatus is a commitment with its reveal window.
type CommitmentStatus struct {
	*domain.TradeCommitment
	Expired          bool  `json:"expired"`
	SecondsRemaining int64 `json:"seconds_remaining"`
}

func (h *Handler) status(c *domain.TradeCommitment) CommitmentStatus {
	now := h.now()
	s := CommitmentStatus{TradeCommitment: c, Expired: c.Expired(now)}
	if !s.Expired {
		s.SecondsRemaining = int64(c.Expiry) - now.Unix()
	}
	return s
}

func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	var req CommitRequest
	if err := httputil.Decode(r, &req); err != nil {
		h.badRequest(w, r, err.Error())
		return
	}

	msg := domain.CommitMessage(req.IntentHash, req.Nonce, req.Expiry)
	if !req.Signature.Verify(req.User, msg) {
		h.fail(w, r, fmt.Errorf("%w: commit not signed by user", domain.ErrInvalidSignature))
		return
	}

	c, err := h.Service.Commit(r.Context(), req.CommitRequest)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, h.status(c))
}

// RevealRequest reveals a committed intent. Signature is the user's and
// RelayerSignature the relayer's, both over ExpectedHash. Accounts default to
// the canonical accounts of the intent.
type RevealRequest struct {
	Intent           domain.RevealedIntent      `json:"intent"`
	ExpectedHash     domain.Hash                `json:"expected_hash"`
	Signature        solana.Signature           `json:"signature"`
	RelayerSignature solana.Signature           `json:"relayer_signature"`
	Accounts         *settlement.RevealAccounts `json:"accounts,omitempty"`
}

func (h *Handler) Reveal(w http.ResponseWriter, r *http.Request) {
	var req RevealRequest
	if err := httputil.Decode(r, &req); err != nil {
		h.badRequest(w, r, err.Error())
		return
	}

	if !h.Relayer.IsZero() && !req.Intent.Relayer.Equals(h.Relayer) {
		h.fail(w, r, fmt.Errorf("%w: this service only settles for relayer %s", domain.ErrInvalidRelayer, h.Relayer))
		return
	}
	// The relayer's inventory pays the trade, so it must have signed it.
	if !req.RelayerSignature.Verify(req.Intent.Relayer, req.ExpectedHash[:]) {
		h.fail(w, r, fmt.Errorf("%w: reveal not signed by relayer %s", domain.ErrInvalidRelayer, req.Intent.Relayer))
		return
	}

	var accounts settlement.RevealAccounts
	if req.Accounts != nil {
		accounts = *req.Accounts
	} else {
		var err error
		if accounts, err = h.Service.Engine().ResolveRevealAccounts(&req.Intent); err != nil {
			h.fail(w, r, err)
			return
		}
	}

	trade, err := h.Service.Reveal(r.Context(), settlement.RevealRequest{
		Intent:       req.Intent,
		ExpectedHash: req.ExpectedHash,
		Signature:    req.Signature,
		Accounts:     accounts,
	}, sigverify.Detached{})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, trade)
}

// Transaction executes a signed instruction batch.
func (h *Handler) Transaction(w http.ResponseWriter, r *http.Request) {
	var tx solana.Transaction
	if err := httputil.Decode(r, &tx); err != nil {
		h.badRequest(w, r, err.Error())
		return
	}

	res, err := h.Processor.Execute(r.Context(), &tx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, res)
}

func (h *Handler) Commitment(w http.ResponseWriter, r *http.Request) {
	user, ok := h.pathKey(w, r, "user")
	if !ok {
		return
	}
	nonce, err := strconv.ParseUint(chi.URLParam(r, "nonce"), 10, 64)
	if err != nil {
		h.badRequest(w, r, "nonce must be an unsigned integer")
		return
	}

	c, err := h.Service.Commitment(r.Context(), user, nonce)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, h.status(c))
}

func (h *Handler) Commitments(w http.ResponseWriter, r *http.Request) {
	user, ok := h.pathKey(w, r, "user")
	if !ok {
		return
	}

	list, err := h.Service.Commitments(r.Context(), user)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]CommitmentStatus, 0, len(list))
	for _, c := range list {
		out = append(out, h.status(c))
	}
	h.ok(w, http.StatusOK, out)
}

// Trades lists executed trades of a user from the analytics store.
func (h *Handler) Trades(w http.ResponseWriter, r *http.Request) {
	user, ok := h.pathKey(w, r, "user")
	if !ok {
		return
	}
	if h.History == nil {
		h.fail(w, r, errHistoryDisabled)
		return
	}

	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 1000 {
			h.badRequest(w, r, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	trades, err := h.History.ListTradeExecutions(r.Context(), user, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, trades)
}

func (h *Handler) pathKey(w http.ResponseWriter, r *http.Request, name string) (solana.PublicKey, bool) {
	k, err := solana.ParsePublicKey(chi.URLParam(r, name))
	if err != nil {
		h.badRequest(w, r, fmt.Sprintf("invalid %s: %v", name, err))
		return solana.PublicKey{}, false
	}
	return k, true
}
