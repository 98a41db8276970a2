package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	mW "github.com/walletpay/backend/internal/middleware"
)

// RouterConfig carries everything the HTTP surface is built from.
type RouterConfig struct {
	Transactions   *TransactionHandler
	Ledger         *LedgerHandler
	Webhooks       *WebhookHandler
	Auth           func(http.Handler) http.Handler
	Metrics        http.Handler
	AllowedOrigins []string
	RequestTimeout time.Duration
}

func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", signatureHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Gateway callbacks authenticate by signature, not by token.
		r.Post("/webhooks/razorpay", cfg.Webhooks.Razorpay)

		r.Group(func(r chi.Router) {
			if cfg.Auth != nil {
				r.Use(cfg.Auth)
			}

			r.Post("/payments", cfg.Transactions.CreatePayment)
			r.Post("/payouts", cfg.Transactions.CreatePayout)
			r.Post("/transactions/{kind}/{id}/events", cfg.Transactions.RequestTransition)
			r.Get("/refunds/pending", cfg.Transactions.PendingRefunds)

			r.Get("/transactions/{id}/ledger", cfg.Ledger.TransactionEntries)
			r.Get("/transactions/{id}/trial-balance", cfg.Ledger.TrialBalance)
			r.Get("/ledger/{ledgerRef}", cfg.Ledger.EntriesByRef)
			r.Get("/accounts", cfg.Ledger.Accounts)
		})
	})

	return r
}
