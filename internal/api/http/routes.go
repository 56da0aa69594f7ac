package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"solana-intent-settlement/internal/api/http/handlers"
	"solana-intent-settlement/internal/api/http/mw"
	"solana-intent-settlement/internal/observability"
)

// BuildRouter wires the API. logMW, rateLimitMW, jwtMW and events may be nil.
//
// Commit, reveal and signed transactions authenticate through ed25519
// signatures and are only rate limited. The fee and provisioning routes are
// operator routes: they are mounted only when jwtMW is set.
func BuildRouter(
	h *handlers.Handler,
	logMW *mw.LoggingMiddleware,
	rateLimitMW *mw.RateLimitMiddleware,
	jwtMW *mw.JWTMiddleware,
	events http.Handler,
) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	if logMW != nil {
		r.Use(logMW.Handler)
	}

	r.Get("/healthz", h.Healthz)
	r.Get("/readiness", h.Readiness)
	r.Method(http.MethodGet, "/metrics", observability.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(pub chi.Router) {
			if rateLimitMW != nil {
				pub.Use(rateLimitMW.Handler)
			}
			pub.Post("/commit", h.Commit)
			pub.Post("/reveal", h.Reveal)
			pub.Post("/transactions", h.Transaction)
			pub.Post("/quote", h.Quote)
		})

		if jwtMW != nil {
			v1.Group(func(op chi.Router) {
				op.Use(jwtMW.Handler)
				if rateLimitMW != nil {
					op.Use(rateLimitMW.Handler)
				}
				op.Post("/fees/initialize", h.InitializeFeePools)
				op.Post("/fees/settle", h.Settle)
				op.Post("/accounts", h.ProvisionAccount)
			})
		}

		v1.Get("/commitments/{user}", h.Commitments)
		v1.Get("/commitments/{user}/{nonce}", h.Commitment)
		v1.Get("/trades/{user}", h.Trades)
		v1.Get("/fees/{mint}", h.FeePools)
		v1.Get("/fees/{mint}/totals", h.FeeTotals)
		v1.Get("/accounts/{address}", h.Account)

		if events != nil {
			v1.Method(http.MethodGet, "/events/ws", events)
		}
	})

	return r
}
