package middleware

import (
	"github.com/Niiaks/Escrow/internal/server"
	"github.com/newrelic/go-agent/v3/newrelic"
)

type Middlewares struct {
	Global          *Global
	ContextEnhancer *ContextEnhancer
	Tracing         *TracingMiddleware
	Auth            *Auth
	RateLimit       *RateLimit
	Idempotency     *Idempotency
}

func NewMiddlewares(s *server.Server) *Middlewares {

	var nrApp *newrelic.Application

	if s.LoggerService != nil {
		nrApp = s.LoggerService.GetApplication()
	}

	var (
		limiter RateLimiter
		store   IdempotencyStore
	)
	if s.Redis != nil {
		limiter = s.Redis
		store = s.Redis
	}

	return &Middlewares{
		Global:          NewGlobal(s),
		ContextEnhancer: NewContextEnhancer(s),
		Tracing:         NewTracing(nrApp),
		Auth:            NewAuth(s.Config.Auth),
		RateLimit:       NewRateLimit(limiter, s.Config.RateLimit.Requests, s.Config.RateLimit.Window),
		Idempotency:     NewIdempotency(store),
	}
}
