package withdrawal

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Niiaks/Escrow/internal/database"
	"github.com/Niiaks/Escrow/internal/model"
)

type WithdrawalRepository interface {
	Create(ctx context.Context, q database.Querier, w *model.Withdrawal) error
	GetByID(ctx context.Context, q database.Querier, id uuid.UUID) (*model.Withdrawal, error)
	ListByUser(ctx context.Context, q database.Querier, userID uuid.UUID, limit, offset int) ([]model.Withdrawal, int, error)
	// Transition applies tr only if the withdrawal is still in tr.From.
	Transition(ctx context.Context, q database.Querier, tr model.WithdrawalTransition) (bool, error)
}

type WithdrawalRepo struct{}

func NewWithdrawalRepository() *WithdrawalRepo {
	return &WithdrawalRepo{}
}

const withdrawalColumns = `id, user_id, amount, processing_fee, net_amount, currency, bank_details, status,
	gateway_reference, transfer_code, recipient_code, failure_reason, processed_by, processed_at,
	completed_at, balance_before, balance_after, created_at, updated_at`

func scanWithdrawal(row pgx.Row) (*model.Withdrawal, error) {
	var w model.Withdrawal
	err := row.Scan(&w.ID, &w.UserID, &w.Amount, &w.ProcessingFee, &w.NetAmount, &w.Currency, &w.BankDetails,
		&w.Status, &w.GatewayReference, &w.TransferCode, &w.RecipientCode, &w.FailureReason, &w.ProcessedBy,
		&w.ProcessedAt, &w.CompletedAt, &w.BalanceBefore, &w.BalanceAfter, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WithdrawalRepo) Create(ctx context.Context, q database.Querier, w *model.Withdrawal) error {
	created, err := scanWithdrawal(q.QueryRow(ctx, `
		INSERT INTO withdrawals (user_id, amount, processing_fee, net_amount, currency, bank_details, status,
			balance_before, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+withdrawalColumns,
		w.UserID, w.Amount, w.ProcessingFee, w.NetAmount, w.Currency, w.BankDetails, w.Status,
		w.BalanceBefore, w.BalanceAfter,
	))
	if err != nil {
		return database.Wrap(err, "failed to create withdrawal")
	}
	*w = *created
	return nil
}

func (r *WithdrawalRepo) GetByID(ctx context.Context, q database.Querier, id uuid.UUID) (*model.Withdrawal, error) {
	w, err := scanWithdrawal(q.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, id))
	if err != nil {
		return nil, database.Wrap(err, "failed to get withdrawal")
	}
	return w, nil
}

func (r *WithdrawalRepo) ListByUser(ctx context.Context, q database.Querier, userID uuid.UUID, limit, offset int) ([]model.Withdrawal, int, error) {
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM withdrawals WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, database.Wrap(err, "failed to count withdrawals")
	}

	rows, err := q.Query(ctx, `
		SELECT `+withdrawalColumns+`
		FROM withdrawals
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, database.Wrap(err, "failed to list withdrawals")
	}
	defer rows.Close()

	var out []model.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, 0, database.Wrap(err, "failed to scan withdrawal")
		}
		out = append(out, *w)
	}
	return out, total, database.Wrap(rows.Err(), "failed to iterate withdrawals")
}

func (r *WithdrawalRepo) Transition(ctx context.Context, q database.Querier, tr model.WithdrawalTransition) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE withdrawals
		SET status = $3::text,
			processed_by = COALESCE($4::uuid, processed_by),
			processed_at = CASE WHEN $4::uuid IS NOT NULL THEN $5::timestamptz ELSE processed_at END,
			failure_reason = CASE WHEN $6::text <> '' THEN $6::text ELSE failure_reason END,
			gateway_reference = CASE WHEN $7::text <> '' THEN $7::text ELSE gateway_reference END,
			transfer_code = CASE WHEN $8::text <> '' THEN $8::text ELSE transfer_code END,
			recipient_code = CASE WHEN $9::text <> '' THEN $9::text ELSE recipient_code END,
			completed_at = CASE WHEN $3::text = 'completed' THEN $5::timestamptz ELSE completed_at END,
			updated_at = $5::timestamptz
		WHERE id = $1 AND status = $2
	`, tr.ID, tr.From, tr.To, tr.ProcessedBy, tr.At, tr.FailureReason, tr.GatewayReference, tr.TransferCode, tr.RecipientCode)
	if err != nil {
		return false, database.Wrap(err, "failed to transition withdrawal")
	}
	return tag.RowsAffected() == 1, nil
}
