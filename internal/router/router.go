package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Niiaks/Escrow/internal/middleware"
	"github.com/Niiaks/Escrow/internal/payment"
	"github.com/Niiaks/Escrow/internal/response"
	"github.com/Niiaks/Escrow/internal/server"
	"github.com/Niiaks/Escrow/internal/transaction"
	"github.com/Niiaks/Escrow/internal/user"
	"github.com/Niiaks/Escrow/internal/wallet"
	"github.com/Niiaks/Escrow/internal/webhook"
	"github.com/Niiaks/Escrow/internal/withdrawal"
	"github.com/Niiaks/Escrow/pkg/constants"
)

type Handlers struct {
	User        *user.UserHandler
	Wallet      *wallet.WalletHandler
	Payment     *payment.PaymentHandler
	Withdrawal  *withdrawal.WithdrawalHandler
	Transaction *transaction.TransactionHandler
	Webhook     *webhook.WebhookHandler
}

func NewRouter(s *server.Server, h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	mw := middleware.NewMiddlewares(s)

	// Apply middleware in order
	r.Use(middleware.RequestID)
	r.Use(mw.Tracing.NewRelicMiddleware())
	r.Use(mw.Tracing.EnhanceTracing)
	r.Use(mw.ContextEnhancer.EnhanceContext)
	r.Use(mw.Global.RequestLogger)
	r.Use(mw.Global.Recoverer)
	r.Use(mw.Global.CORS)

	r.Get("/health", health(s))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/paystack", h.Webhook.HandleWebhook)

		r.Group(func(r chi.Router) {
			r.Use(mw.RateLimit.Limit)
			r.Post("/users", h.User.CreateUser)
		})

		r.Group(func(r chi.Router) {
			r.Use(mw.Auth.RequireAuth)
			r.Use(mw.RateLimit.Limit)

			r.Get("/users/me", h.User.Me)

			// Payment routes
			r.Route("/payments", func(r chi.Router) {
				r.With(mw.Idempotency.Guard).Post("/initialize", h.Payment.Initialize)
				r.With(mw.Idempotency.Guard).Post("/job-verification", h.Payment.InitializeJobVerification)
				r.Get("/verify/{reference}", h.Payment.Verify)
				r.Get("/", h.Payment.List)
				r.Get("/{paymentID}", h.Payment.Get)
				r.Post("/{paymentID}/release", h.Payment.Release)
				r.Post("/{paymentID}/refund", h.Payment.Refund)
			})

			// Wallet routes
			r.Route("/wallet", func(r chi.Router) {
				r.Get("/balance", h.Wallet.GetBalance)
				r.Put("/bank-details", h.Wallet.UpdateBankDetails)
			})

			r.Route("/banks", func(r chi.Router) {
				r.Get("/", h.Wallet.ListBanks)
				r.Get("/resolve", h.Wallet.ResolveAccount)
			})

			r.Get("/transactions", h.Transaction.List)

			// Withdrawal routes
			r.Route("/withdrawals", func(r chi.Router) {
				r.With(mw.Idempotency.Guard).Post("/", h.Withdrawal.Request)
				r.Get("/", h.Withdrawal.List)
				r.Get("/{withdrawalID}", h.Withdrawal.Get)
				r.Post("/{withdrawalID}/cancel", h.Withdrawal.Cancel)
				r.With(middleware.RequireRole(constants.RoleAdmin)).Post("/{withdrawalID}/process", h.Withdrawal.Process)
				r.With(middleware.RequireRole(constants.RoleAdmin)).Post("/{withdrawalID}/resolve", h.Withdrawal.Resolve)
			})
		})
	})

	return r
}

func health(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{"database": "ok", "redis": "ok"}
		status := http.StatusOK
		if s.Db != nil {
			if err := s.Db.Ping(ctx); err != nil {
				checks["database"] = "unavailable"
				status = http.StatusServiceUnavailable
			}
		}
		if s.Redis != nil {
			if err := s.Redis.Ping(ctx); err != nil {
				checks["redis"] = "unavailable"
				status = http.StatusServiceUnavailable
			}
		}
		response.JSON(w, status, checks)
	}
}
