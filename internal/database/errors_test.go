package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap(nil, "noop"))

	err := Wrap(fmt.Errorf("scan: %w", pgx.ErrNoRows), "get payment")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "get payment")

	cause := errors.New("connection reset")
	err = Wrap(cause, "save wallet")
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestWrap_UniqueViolation(t *testing.T) {
	err := Wrap(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"}, "create user")
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Contains(t, err.Error(), "users_email_key")

	err = Wrap(&pgconn.PgError{Code: "23503"}, "create payment")
	assert.NotErrorIs(t, err, ErrDuplicate)
}
