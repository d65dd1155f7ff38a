package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/Niiaks/Escrow/internal/logger"
	"github.com/Niiaks/Escrow/internal/server"
)

// ContextEnhancer attaches a request-scoped logger to every request.
type ContextEnhancer struct {
	base *zerolog.Logger
}

func NewContextEnhancer(srv *server.Server) *ContextEnhancer {
	return &ContextEnhancer{base: srv.Logger}
}

func (ce *ContextEnhancer) EnhanceContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqLog := ce.base.With().
			Str("request_id", GetRequestID(r)).
			Str("ip", clientIP(r)).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()

		if txn := newrelic.FromContext(r.Context()); txn != nil {
			reqLog = logger.WithTraceContext(reqLog, txn)
		}

		next.ServeHTTP(w, r.WithContext(reqLog.WithContext(r.Context())))
	})
}

// GetLogger retrieves the request-scoped logger from the context. A context
// without one yields a disabled logger.
func GetLogger(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
