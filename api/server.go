/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  unique id per request for tracing
  2. Logger:     request logging
  3. Recoverer:  panic recovery (500 instead of crash)
  4. CORS:       cross-origin requests for a browser front end

SECURITY NOTE:
  No authentication middleware. Callers are trusted to act only on
  their own ledgers; an auth layer belongs in front of this service.

SEE ALSO:
  - handlers.go: handler implementations
  - cmd/server/main.go: server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/users", h.Register)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/", h.GetLedger)
			r.Get("/accounts", h.ListAccounts)
			r.Get("/transactions", h.ListTransactions)
			r.Post("/transfers", h.SubmitTransfer)

			r.Route("/deposits", func(r chi.Router) {
				r.Post("/", h.OpenDeposit)
				r.Post("/{depositID}/close", h.CloseDeposit)
				r.Get("/{depositID}/projection", h.DepositProjection)
			})
		})

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	})

	return r
}
