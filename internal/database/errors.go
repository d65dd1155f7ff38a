package database

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pkgerrors "github.com/pkg/errors"
)

// ErrNotFound is returned by repositories when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when an insert violates a unique constraint.
var ErrDuplicate = errors.New("record already exists")

const uniqueViolation = "23505"

// Wrap maps pgx.ErrNoRows to ErrNotFound and attaches a stack trace to
// everything else so zerolog can print it.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return pkgerrors.WithMessage(ErrNotFound, msg)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pkgerrors.WithMessage(ErrDuplicate, msg+": "+pgErr.ConstraintName)
	}
	return pkgerrors.Wrap(err, msg)
}
