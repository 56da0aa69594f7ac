// Package handlers implements the settlement HTTP endpoints.
package handlers

import (
	"context"
	"io"
	"log"
	"net/http"
	"time"

	"solana-intent-settlement/internal/httputil"
	"solana-intent-settlement/internal/program"
	"solana-intent-settlement/internal/settlement"
	"solana-intent-settlement/internal/solana"
	"solana-intent-settlement/internal/storage/clickhouse"
)

// History serves settled trades and fee totals from the analytics store.
type History interface {
	ListTradeExecutions(ctx context.Context, user solana.PublicKey, limit int) ([]*clickhouse.TradeExecution, error)
	FeeTotals(ctx context.Context, token solana.PublicKey) (*clickhouse.FeeTotals, error)
}

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

type Handler struct {
	Log       *log.Logger
	Service   *settlement.Service
	Processor *program.Processor

	// History is optional; its routes answer 501 without it.
	History History

	// Relayer, when set, is the only relayer HTTP reveals may name.
	Relayer solana.PublicKey

	// Checks are run by Readiness, keyed by dependency name.
	Checks map[string]Check

	now func() time.Time
}

func NewHandler(l *log.Logger, service *settlement.Service, processor *program.Processor) *Handler {
	if service == nil {
		panic("settlement service cannot be nil")
	}
	if l == nil {
		l = log.New(io.Discard, "", 0)
	}
	if processor == nil {
		processor = program.NewProcessor(service, l)
	}
	return &Handler{
		Log:       l,
		Service:   service,
		Processor: processor,
		Checks:    map[string]Check{},
		now:       time.Now,
	}
}

// SetClock overrides the clock used for commitment status.
func (h *Handler) SetClock(now func() time.Time) {
	h.now = now
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	if err := httputil.JSON(w, http.StatusOK, map[string]any{}, nil); err != nil {
		h.Log.Printf("healthz: %v", err)
	}
}

// Readiness checks external dependencies.
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, check := range h.Checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		_ = httputil.Error(w, r, http.StatusServiceUnavailable, httputil.APIError{
			Name:    "dependencies_unhealthy",
			Message: "dependencies check failed",
			Details: failed,
		})
		return
	}
	h.ok(w, http.StatusOK, map[string]any{"checks": len(h.Checks)})
}

func (h *Handler) ok(w http.ResponseWriter, status int, body any) {
	if err := httputil.JSON(w, status, body, nil); err != nil {
		h.Log.Printf("write response: %v", err)
	}
}
