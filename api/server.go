/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:    Request logging
  2. Recoverer: Panic recovery (500 instead of crash)
  3. RequestID: Unique ID per request for tracing
  4. Metrics:   Prometheus request latency/status
  5. CORS:      Cross-origin requests for frontend clients
  6. JWT:       Bearer-token identity on /api (token minting and
                health/metrics endpoints stay open)

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/api/token", h.IssueToken)

	// Authenticated API
	r.Route("/api", func(r chi.Router) {
		r.Use(h.JWT.Middleware)

		r.Route("/groups", func(r chi.Router) {
			r.Get("/", h.ListGroups)
			r.Post("/", h.CreateGroup)
			r.Get("/{id}", h.GetGroup)
			r.Delete("/{id}", h.DeleteGroup)

			r.Post("/{id}/members", h.AddMember)
			r.Delete("/{id}/members/{userID}", h.RemoveMember)

			r.Get("/{id}/expenses", h.ListExpenses)
			r.Post("/{id}/expenses", h.RecordExpense)
			r.Put("/{id}/expenses/{expID}", h.ReplaceExpense)

			r.Get("/{id}/balances", h.GetBalances)
			r.Get("/{id}/clearance", h.CheckClear)
			r.Post("/{id}/settle", h.Settle)
		})

		r.Route("/expenses", func(r chi.Router) {
			r.Delete("/{id}", h.DeleteExpense)
		})
	})

	return r
}
