// Package project reads the project and job records owned by the
// marketplace side of the platform.
package project

import (
	"context"

	"github.com/google/uuid"

	"github.com/Niiaks/Escrow/internal/database"
	"github.com/Niiaks/Escrow/internal/model"
)

type ProjectRepository interface {
	GetProject(ctx context.Context, q database.Querier, id uuid.UUID) (*model.Project, error)
	GetJob(ctx context.Context, q database.Querier, id uuid.UUID) (*model.Job, error)
	MarkJobPaymentVerified(ctx context.Context, q database.Querier, jobID uuid.UUID) error
	// SumUnpaidOngoingBudgets totals the budgets of the freelancer's ongoing
	// projects that have no completed payment yet.
	SumUnpaidOngoingBudgets(ctx context.Context, q database.Querier, freelancerID uuid.UUID) (int64, error)
}

type ProjectRepo struct{}

func NewProjectRepository() *ProjectRepo {
	return &ProjectRepo{}
}

func (r *ProjectRepo) GetProject(ctx context.Context, q database.Querier, id uuid.UUID) (*model.Project, error) {
	var p model.Project
	err := q.QueryRow(ctx, `
		SELECT id, title, client_id, COALESCE(freelancer_id, '00000000-0000-0000-0000-000000000000'::uuid),
			budget, currency, status
		FROM projects
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Title, &p.ClientID, &p.FreelancerID, &p.Budget, &p.Currency, &p.Status)
	if err != nil {
		return nil, database.Wrap(err, "failed to get project")
	}
	return &p, nil
}

func (r *ProjectRepo) GetJob(ctx context.Context, q database.Querier, id uuid.UUID) (*model.Job, error) {
	var j model.Job
	err := q.QueryRow(ctx, `SELECT id, title, client_id, payment_verified FROM jobs WHERE id = $1`, id).
		Scan(&j.ID, &j.Title, &j.ClientID, &j.PaymentVerified)
	if err != nil {
		return nil, database.Wrap(err, "failed to get job")
	}
	return &j, nil
}

func (r *ProjectRepo) MarkJobPaymentVerified(ctx context.Context, q database.Querier, jobID uuid.UUID) error {
	tag, err := q.Exec(ctx, `UPDATE jobs SET payment_verified = TRUE, updated_at = NOW() WHERE id = $1`, jobID)
	if err != nil {
		return database.Wrap(err, "failed to mark job payment verified")
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

func (r *ProjectRepo) SumUnpaidOngoingBudgets(ctx context.Context, q database.Querier, freelancerID uuid.UUID) (int64, error) {
	var sum int64
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(p.budget), 0)
		FROM projects p
		WHERE p.freelancer_id = $1
			AND p.status = 'ongoing'
			AND NOT EXISTS (
				SELECT 1 FROM payments pay
				WHERE pay.project_id = p.id AND pay.status = 'completed'
			)
	`, freelancerID).Scan(&sum)
	return sum, database.Wrap(err, "failed to sum pending project budgets")
}
