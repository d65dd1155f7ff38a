package transaction

import (
	"context"

	"github.com/google/uuid"

	"github.com/Niiaks/Escrow/internal/database"
	"github.com/Niiaks/Escrow/internal/model"
)

// TransactionRepository is the append-only transaction log. Entries are
// never updated or deleted.
type TransactionRepository interface {
	Create(ctx context.Context, q database.Querier, tx *model.Transaction) error
	ListByUser(ctx context.Context, q database.Querier, userID uuid.UUID, limit, offset int) ([]model.Transaction, int, error)
}

type TransactionRepo struct{}

func NewTransactionRepository() *TransactionRepo {
	return &TransactionRepo{}
}

func (tr *TransactionRepo) Create(ctx context.Context, q database.Querier, tx *model.Transaction) error {
	sql := `
		INSERT INTO transactions (user_id, type, amount, currency, balance_before, balance_after,
			payment_id, project_id, withdrawal_id, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`

	err := q.QueryRow(ctx, sql,
		tx.UserID,
		tx.Type,
		tx.Amount,
		tx.Currency,
		tx.BalanceBefore,
		tx.BalanceAfter,
		tx.PaymentID,
		tx.ProjectID,
		tx.WithdrawalID,
		tx.Description,
	).Scan(&tx.ID, &tx.CreatedAt)
	return database.Wrap(err, "failed to insert transaction")
}

func (tr *TransactionRepo) ListByUser(ctx context.Context, q database.Querier, userID uuid.UUID, limit, offset int) ([]model.Transaction, int, error) {
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, database.Wrap(err, "failed to count transactions")
	}

	rows, err := q.Query(ctx, `
		SELECT id, user_id, type, amount, currency, balance_before, balance_after,
			payment_id, project_id, withdrawal_id, description, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, database.Wrap(err, "failed to list transactions")
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		var tx model.Transaction
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Type, &tx.Amount, &tx.Currency, &tx.BalanceBefore,
			&tx.BalanceAfter, &tx.PaymentID, &tx.ProjectID, &tx.WithdrawalID, &tx.Description, &tx.CreatedAt); err != nil {
			return nil, 0, database.Wrap(err, "failed to scan transaction")
		}
		txs = append(txs, tx)
	}
	return txs, total, database.Wrap(rows.Err(), "failed to iterate transactions")
}
