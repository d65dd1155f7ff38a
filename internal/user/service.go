package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Niiaks/Escrow/internal/apperror"
	"github.com/Niiaks/Escrow/internal/database"
	"github.com/Niiaks/Escrow/internal/middleware"
	"github.com/Niiaks/Escrow/internal/model"
	"github.com/Niiaks/Escrow/pkg/types"
)

const tokenTTL = 24 * time.Hour

var (
	ErrUserNotFound = apperror.New(apperror.KindNotFound, "user not found")
	ErrEmailTaken   = apperror.New(apperror.KindConflict, "a user with this email already exists")
)

type TokenIssuer interface {
	IssueToken(user model.AuthenticatedUser, ttl time.Duration) (string, error)
}

type TxRunner interface {
	Querier() database.Querier
	WithTx(ctx context.Context, fn func(q database.Querier) error) error
}

type UserService struct {
	db     TxRunner
	repo   UserRepository
	tokens TokenIssuer
}

func NewUserService(db TxRunner, repo UserRepository, tokens TokenIssuer) *UserService {
	return &UserService{
		db:     db,
		repo:   repo,
		tokens: tokens,
	}
}

func (us *UserService) CreateUser(ctx context.Context, req *types.CreateUserRequest) (*types.UserWithToken, error) {
	logger := middleware.GetLogger(ctx)

	user := &model.User{
		Name:  strings.TrimSpace(req.Name),
		Email: strings.ToLower(strings.TrimSpace(req.Email)),
		Role:  req.Role,
	}

	err := us.db.WithTx(ctx, func(q database.Querier) error {
		return us.repo.CreateUser(ctx, q, user)
	})
	if errors.Is(err, database.ErrDuplicate) {
		return nil, ErrEmailTaken.WithCause(err)
	}
	if err != nil {
		return nil, err
	}

	token, err := us.tokens.IssueToken(model.AuthenticatedUser{ID: user.ID, Role: user.Role, Email: user.Email}, tokenTTL)
	if err != nil {
		return nil, apperror.Internal(err)
	}

	logger.Info().Str("user_id", user.ID.String()).Str("role", user.Role).Msg("User created")
	return &types.UserWithToken{User: user, Token: token}, nil
}

func (us *UserService) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u, err := us.repo.GetUserByID(ctx, us.db.Querier(), id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrUserNotFound.WithCause(err)
	}
	return u, err
}
