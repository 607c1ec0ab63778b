// Package api exposes the expense core over HTTP.
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", memberHeader},
		AllowCredentials: false,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/households/{householdID}", func(r chi.Router) {
			r.Get("/expenses", h.GetExpenses)
			r.Post("/expenses", h.CreateExpense)
			r.Get("/balances", h.GetBalances)
			r.Get("/suggestions", h.GetSuggestions)
			r.Get("/settlements", h.GetSettlements)
			r.Post("/settlements", h.RecordSettlement)
		})

		r.Put("/expenses/{expenseID}", h.UpdateExpense)
		r.Delete("/expenses/{expenseID}", h.DeleteExpense)
		r.Post("/expenses/{expenseID}/settle", h.SettleShares)
	})

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
