package transaction

import (
	"context"

	"github.com/google/uuid"

	"github.com/Niiaks/Escrow/internal/database"
	"github.com/Niiaks/Escrow/internal/model"
)

type QuerierProvider interface {
	Querier() database.Querier
}

type TransactionService struct {
	db   QuerierProvider
	repo TransactionRepository
}

func NewTransactionService(db QuerierProvider, repo TransactionRepository) *TransactionService {
	return &TransactionService{
		db:   db,
		repo: repo,
	}
}

func (ts *TransactionService) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Transaction, int, error) {
	return ts.repo.ListByUser(ctx, ts.db.Querier(), userID, limit, offset)
}
