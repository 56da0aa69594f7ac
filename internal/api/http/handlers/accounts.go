package handlers

import (
	"net/http"

	"solana-intent-settlement/internal/httputil"
	"solana-intent-settlement/internal/solana"
)

type QuoteRequest struct {
	TokenIn  solana.PublicKey `json:"token_in"`
	TokenOut solana.PublicKey `json:"token_out"`
	AmountIn uint64           `json:"amount_in"`
}

func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := httputil.Decode(r, &req); err != nil {
		h.badRequest(w, r, err.Error())
		return
	}

	q, err := h.Service.Quote(r.Context(), req.TokenIn, req.TokenOut, req.AmountIn)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, q)
}

// ProvisionRequest opens and funds an associated token account on a devnet.
type ProvisionRequest struct {
	Owner  solana.PublicKey `json:"owner"`
	Mint   solana.PublicKey `json:"mint"`
	Amount uint64           `json:"amount"`
}

func (h *Handler) ProvisionAccount(w http.ResponseWriter, r *http.Request) {
	var req ProvisionRequest
	if err := httputil.Decode(r, &req); err != nil {
		h.badRequest(w, r, err.Error())
		return
	}
	if req.Owner.IsZero() || req.Mint.IsZero() {
		h.badRequest(w, r, "owner and mint are required")
		return
	}

	acc, err := h.Service.ProvisionAccount(r.Context(), req.Owner, req.Mint, req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, acc)
}

func (h *Handler) Account(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.pathKey(w, r, "address")
	if !ok {
		return
	}

	acc, err := h.Service.Account(r.Context(), addr)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, acc)
}
