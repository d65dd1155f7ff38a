package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/Niiaks/Escrow/internal/apperror"
	"github.com/Niiaks/Escrow/internal/redis"
	"github.com/Niiaks/Escrow/internal/response"
)

var ErrRateLimited = apperror.New(apperror.KindRateLimited, "too many requests, please slow down")

type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (*redis.RateLimitResult, error)
}

type RateLimit struct {
	limiter RateLimiter
	limit   int64
	window  time.Duration
}

func NewRateLimit(limiter RateLimiter, limit int64, window time.Duration) *RateLimit {
	return &RateLimit{limiter: limiter, limit: limit, window: window}
}

// Limit applies a sliding window per authenticated user, or per client IP
// for anonymous requests. Requests are let through when redis is unavailable.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.limiter == nil || rl.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		res, err := rl.limiter.CheckRateLimit(r.Context(), rateLimitKey(r), rl.limit, rl.window)
		if err != nil {
			GetLogger(r.Context()).Warn().Err(err).Msg("rate limit check failed, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(rl.limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter(time.Now()).Seconds())))
			response.Error(w, r, ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func rateLimitKey(r *http.Request) string {
	if user, ok := UserFromContext(r.Context()); ok {
		return "user:" + user.ID.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
