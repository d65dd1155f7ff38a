package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Niiaks/Escrow/internal/redis"
	"github.com/Niiaks/Escrow/internal/response"
	"github.com/Niiaks/Escrow/pkg/constants"
)

const (
	idempotencyTTL         = 24 * time.Hour
	HeaderIdempotentReplay = "Idempotent-Replayed"
)

type IdempotencyStore interface {
	BeginIdempotent(ctx context.Context, key string, ttl time.Duration) (*redis.CachedResponse, error)
	CompleteIdempotent(ctx context.Context, key string, resp redis.CachedResponse, ttl time.Duration) error
	AbandonIdempotent(ctx context.Context, key string) error
}

type Idempotency struct {
	store IdempotencyStore
}

func NewIdempotency(store IdempotencyStore) *Idempotency {
	return &Idempotency{store: store}
}

// Guard replays the stored response for a repeated Idempotency-Key. Keys are
// scoped to the caller and route. Server errors release the key so the
// client can retry.
func (i *Idempotency) Guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientKey := r.Header.Get(constants.HeaderIdempotencyKey)
		if i.store == nil || clientKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		log := GetLogger(r.Context())
		key := idempotencyScope(r) + ":" + clientKey

		cached, err := i.store.BeginIdempotent(r.Context(), key, idempotencyTTL)
		switch {
		case errors.Is(err, redis.ErrRequestInProgress):
			response.Error(w, r, err)
			return
		case err != nil:
			log.Warn().Err(err).Msg("idempotency store unavailable, processing without it")
			next.ServeHTTP(w, r)
			return
		case cached != nil:
			log.Info().Str("idempotency_key", clientKey).Msg("replaying idempotent response")
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set(HeaderIdempotentReplay, "true")
			w.WriteHeader(cached.StatusCode)
			_, _ = w.Write(cached.Body)
			return
		}

		rec := &recordingWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)

		// The request context may already be cancelled by now.
		ctx := context.WithoutCancel(r.Context())
		if rec.statusCode >= http.StatusInternalServerError {
			if err := i.store.AbandonIdempotent(ctx, key); err != nil {
				log.Warn().Err(err).Msg("failed to release idempotency key")
			}
			return
		}
		resp := redis.CachedResponse{StatusCode: rec.statusCode, Body: rec.body.Bytes()}
		if err := i.store.CompleteIdempotent(ctx, key, resp, idempotencyTTL); err != nil {
			log.Warn().Err(err).Msg("failed to store idempotent response")
		}
	})
}

func idempotencyScope(r *http.Request) string {
	scope := r.Method + " " + r.URL.Path
	if user, ok := UserFromContext(r.Context()); ok {
		scope = user.ID.String() + ":" + scope
	}
	return scope
}

type recordingWriter struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (rw *recordingWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recordingWriter) Write(b []byte) (int, error) {
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}
