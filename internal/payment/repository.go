package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Niiaks/Escrow/internal/database"
	"github.com/Niiaks/Escrow/internal/model"
)

type PaymentRepository interface {
	Create(ctx context.Context, q database.Querier, p *model.Payment) error
	// UpsertPending reuses the unresolved pending payment of the same
	// (project, payer, payee) triple, or inserts a new one.
	UpsertPending(ctx context.Context, q database.Querier, p *model.Payment) error
	GetByID(ctx context.Context, q database.Querier, id uuid.UUID) (*model.Payment, error)
	GetByIDForUpdate(ctx context.Context, q database.Querier, id uuid.UUID) (*model.Payment, error)
	// FindPending returns the unresolved project payment of the triple, if any.
	FindPending(ctx context.Context, q database.Querier, projectID, payerID, payeeID uuid.UUID) (*model.Payment, error)
	// GetByReference resolves current and superseded checkout references.
	GetByReference(ctx context.Context, q database.Querier, reference string) (*model.Payment, error)
	// SetGatewayReference makes reference current and keeps it resolvable
	// after a later checkout replaces it.
	SetGatewayReference(ctx context.Context, q database.Querier, id uuid.UUID, reference, authorizationURL string) error
	// CompleteVerification moves an unresolved payment to status. It reports
	// false when another caller resolved the payment first.
	CompleteVerification(ctx context.Context, q database.Querier, id uuid.UUID, status model.PaymentStatus, escrow model.EscrowStatus, paidAt *time.Time) (bool, error)
	// TransitionEscrow applies tr only if the escrow status still equals tr.From.
	TransitionEscrow(ctx context.Context, q database.Querier, tr model.EscrowTransition) (bool, error)
	ListByUser(ctx context.Context, q database.Querier, userID uuid.UUID, limit, offset int) ([]model.Payment, int, error)
}

type PaymentRepo struct{}

func NewPaymentRepository() *PaymentRepo {
	return &PaymentRepo{}
}

const paymentColumns = `id, project_id, milestone_id, job_id, payer_id, payee_id, amount, currency,
	platform_fee, net_amount, status, payment_type, escrow_status, gateway_reference,
	authorization_url, invoice_number, description, refund_reason, paid_at, released_at,
	refunded_at, created_at, updated_at`

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var p model.Payment
	err := row.Scan(
		&p.ID, &p.ProjectID, &p.MilestoneID, &p.JobID, &p.PayerID, &p.PayeeID, &p.Amount, &p.Currency,
		&p.PlatformFee, &p.NetAmount, &p.Status, &p.PaymentType, &p.EscrowStatus, &p.GatewayReference,
		&p.AuthorizationURL, &p.InvoiceNumber, &p.Description, &p.RefundReason, &p.PaidAt, &p.ReleasedAt,
		&p.RefundedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func nextInvoiceNumber(ctx context.Context, q database.Querier) (string, error) {
	var seq int64
	if err := q.QueryRow(ctx, `SELECT nextval('invoice_number_seq')`).Scan(&seq); err != nil {
		return "", database.Wrap(err, "failed to allocate invoice number")
	}
	return model.InvoiceNumber(time.Now(), seq), nil
}

func (r *PaymentRepo) Create(ctx context.Context, q database.Querier, p *model.Payment) error {
	invoice, err := nextInvoiceNumber(ctx, q)
	if err != nil {
		return err
	}

	row := q.QueryRow(ctx, `
		INSERT INTO payments (project_id, milestone_id, job_id, payer_id, payee_id, amount, currency,
			platform_fee, net_amount, status, payment_type, escrow_status, invoice_number, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING `+paymentColumns,
		p.ProjectID, p.MilestoneID, p.JobID, p.PayerID, p.PayeeID, p.Amount, p.Currency,
		p.PlatformFee, p.NetAmount, p.Status, p.PaymentType, p.EscrowStatus, invoice, p.Description,
	)
	created, err := scanPayment(row)
	if err != nil {
		return database.Wrap(err, "failed to create payment")
	}
	*p = *created
	return nil
}

func (r *PaymentRepo) UpsertPending(ctx context.Context, q database.Querier, p *model.Payment) error {
	invoice, err := nextInvoiceNumber(ctx, q)
	if err != nil {
		return err
	}

	row := q.QueryRow(ctx, `
		INSERT INTO payments (project_id, milestone_id, payer_id, payee_id, amount, currency,
			platform_fee, net_amount, status, payment_type, escrow_status, invoice_number, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', $9, 'none', $10, $11)
		ON CONFLICT (project_id, payer_id, payee_id) WHERE status = 'pending' AND project_id IS NOT NULL
		DO UPDATE SET
			milestone_id = EXCLUDED.milestone_id,
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			platform_fee = EXCLUDED.platform_fee,
			net_amount = EXCLUDED.net_amount,
			payment_type = EXCLUDED.payment_type,
			description = EXCLUDED.description,
			updated_at = NOW()
		RETURNING `+paymentColumns,
		p.ProjectID, p.MilestoneID, p.PayerID, p.PayeeID, p.Amount, p.Currency,
		p.PlatformFee, p.NetAmount, p.PaymentType, invoice, p.Description,
	)
	saved, err := scanPayment(row)
	if err != nil {
		return database.Wrap(err, "failed to upsert pending payment")
	}
	*p = *saved
	return nil
}

func (r *PaymentRepo) GetByID(ctx context.Context, q database.Querier, id uuid.UUID) (*model.Payment, error) {
	p, err := scanPayment(q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if err != nil {
		return nil, database.Wrap(err, fmt.Sprintf("failed to get payment %s", id))
	}
	return p, nil
}

func (r *PaymentRepo) GetByIDForUpdate(ctx context.Context, q database.Querier, id uuid.UUID) (*model.Payment, error) {
	p, err := scanPayment(q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, database.Wrap(err, fmt.Sprintf("failed to lock payment %s", id))
	}
	return p, nil
}

func (r *PaymentRepo) FindPending(ctx context.Context, q database.Querier, projectID, payerID, payeeID uuid.UUID) (*model.Payment, error) {
	p, err := scanPayment(q.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE project_id = $1 AND payer_id = $2 AND payee_id = $3 AND status = 'pending'`,
		projectID, payerID, payeeID))
	if err != nil {
		return nil, database.Wrap(err, "failed to find pending payment")
	}
	return p, nil
}

func (r *PaymentRepo) GetByReference(ctx context.Context, q database.Querier, reference string) (*model.Payment, error) {
	p, err := scanPayment(q.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE gateway_reference = $1
			OR id = (SELECT payment_id FROM payment_references WHERE reference = $1)`, reference))
	if err != nil {
		return nil, database.Wrap(err, "failed to get payment by reference")
	}
	return p, nil
}

func (r *PaymentRepo) SetGatewayReference(ctx context.Context, q database.Querier, id uuid.UUID, reference, authorizationURL string) error {
	tag, err := q.Exec(ctx, `
		WITH issued AS (
			INSERT INTO payment_references (reference, payment_id) VALUES ($2, $1)
		)
		UPDATE payments
		SET gateway_reference = $2, authorization_url = $3, updated_at = NOW()
		WHERE id = $1`, id, reference, authorizationURL)
	if err != nil {
		return database.Wrap(err, "failed to record gateway reference")
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

func (r *PaymentRepo) CompleteVerification(ctx context.Context, q database.Querier, id uuid.UUID, status model.PaymentStatus, escrow model.EscrowStatus, paidAt *time.Time) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE payments
		SET status = $2, escrow_status = $3, paid_at = $4, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'processing')`,
		id, status, escrow, paidAt)
	if err != nil {
		return false, database.Wrap(err, "failed to complete payment verification")
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PaymentRepo) TransitionEscrow(ctx context.Context, q database.Querier, tr model.EscrowTransition) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE payments
		SET escrow_status = $3::text,
			status = COALESCE(NULLIF($4::text, ''), status),
			released_at = CASE WHEN $3::text = 'released' THEN $5::timestamptz ELSE released_at END,
			refunded_at = CASE WHEN $3::text = 'refunded' THEN $5::timestamptz ELSE refunded_at END,
			refund_reason = CASE WHEN $3::text = 'refunded' THEN $6::text ELSE refund_reason END,
			updated_at = $5::timestamptz
		WHERE id = $1 AND escrow_status = $2::text`,
		tr.PaymentID, tr.From, tr.To, tr.Status, tr.At, tr.Reason)
	if err != nil {
		return false, database.Wrap(err, "failed to transition escrow")
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PaymentRepo) ListByUser(ctx context.Context, q database.Querier, userID uuid.UUID, limit, offset int) ([]model.Payment, int, error) {
	var total int
	if err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM payments WHERE payer_id = $1 OR payee_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, database.Wrap(err, "failed to count payments")
	}

	rows, err := q.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE payer_id = $1 OR payee_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, database.Wrap(err, "failed to list payments")
	}
	defer rows.Close()

	payments := make([]model.Payment, 0, limit)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, 0, database.Wrap(err, "failed to scan payment")
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, database.Wrap(err, "failed to iterate payments")
	}
	return payments, total, nil
}

// SumHeldForPayee totals the net amount of completed payments still held in
// escrow for payeeID.
func (r *PaymentRepo) SumHeldForPayee(ctx context.Context, q database.Querier, payeeID uuid.UUID) (int64, error) {
	var sum int64
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(net_amount), 0)::bigint
		FROM payments
		WHERE payee_id = $1 AND status = 'completed' AND escrow_status = 'held'`, payeeID).Scan(&sum)
	if err != nil {
		return 0, database.Wrap(err, "failed to sum held payments")
	}
	return sum, nil
}
