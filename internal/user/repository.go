package user

import (
	"context"

	"github.com/google/uuid"

	"github.com/Niiaks/Escrow/internal/database"
	"github.com/Niiaks/Escrow/internal/model"
)

type UserRepository interface {
	CreateUser(ctx context.Context, q database.Querier, user *model.User) error
	GetUserByID(ctx context.Context, q database.Querier, id uuid.UUID) (*model.User, error)
}

type UserRepo struct{}

func NewUserRepository() *UserRepo {
	return &UserRepo{}
}

func (ur *UserRepo) CreateUser(ctx context.Context, q database.Querier, user *model.User) error {
	err := q.QueryRow(ctx, `
		INSERT INTO users (name, email, role)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`, user.Name, user.Email, user.Role).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	return database.Wrap(err, "failed to create user")
}

func (ur *UserRepo) GetUserByID(ctx context.Context, q database.Querier, id uuid.UUID) (*model.User, error) {
	var u model.User
	err := q.QueryRow(ctx, `SELECT id, name, email, role, created_at, updated_at FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, database.Wrap(err, "failed to get user")
	}
	return &u, nil
}
