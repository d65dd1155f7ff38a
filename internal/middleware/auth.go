package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"

	"github.com/Niiaks/Escrow/internal/apperror"
	"github.com/Niiaks/Escrow/internal/config"
	"github.com/Niiaks/Escrow/internal/model"
	"github.com/Niiaks/Escrow/internal/response"
)

const userContextKey contextKey = "authenticated_user"

// Claims is the bearer token payload. The subject carries the user id.
type Claims struct {
	Role  string `json:"role"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type Auth struct {
	secret []byte
	issuer string
}

func NewAuth(cfg config.AuthConfig) *Auth {
	return &Auth{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
	}
}

// RequireAuth resolves the bearer token into an AuthenticatedUser and rejects
// the request with 401 when that is not possible.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.authenticate(r)
		if err != nil {
			GetLogger(r.Context()).Debug().Err(err).Msg("authentication failed")
			response.Error(w, r, apperror.ErrUnauthenticated.WithCause(err))
			return
		}

		ctx := WithUser(r.Context(), user)

		log := GetLogger(ctx).With().Str("user_id", user.ID.String()).Logger()
		ctx = log.WithContext(ctx)

		if txn := newrelic.FromContext(ctx); txn != nil {
			txn.AddAttribute("user.id", user.ID.String())
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Auth) authenticate(r *http.Request) (*model.AuthenticatedUser, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil, jwt.ErrTokenMalformed
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var claims Claims
	if _, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return &model.AuthenticatedUser{ID: id, Role: claims.Role, Email: claims.Email}, nil
}

// IssueToken signs an HS256 token for user that expires after ttl.
func (a *Auth) IssueToken(user model.AuthenticatedUser, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:  user.Role,
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// RequireRole rejects authenticated users whose role is not listed.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				response.Error(w, r, apperror.ErrUnauthenticated)
				return
			}
			if !slices.Contains(roles, user.Role) {
				response.Error(w, r, apperror.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithUser(ctx context.Context, user *model.AuthenticatedUser) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

func UserFromContext(ctx context.Context) (*model.AuthenticatedUser, bool) {
	user, ok := ctx.Value(userContextKey).(*model.AuthenticatedUser)
	return user, ok && user != nil
}

// CurrentUser returns the authenticated requester or ErrUnauthenticated.
func CurrentUser(r *http.Request) (*model.AuthenticatedUser, error) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		return nil, apperror.ErrUnauthenticated
	}
	return user, nil
}
