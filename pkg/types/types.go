package types

import (
	"time"

	"github.com/google/uuid"

	"github.com/Niiaks/Escrow/internal/model"
)

type InitializeProjectPaymentRequest struct {
	ProjectID   uuid.UUID  `json:"project_id" validate:"required"`
	MilestoneID *uuid.UUID `json:"milestone_id,omitempty"`
	PayeeID     uuid.UUID  `json:"payee_id" validate:"required"`
	Amount      int64      `json:"amount" validate:"required,gt=0"`
	Currency    string     `json:"currency,omitempty" validate:"omitempty,oneof=NGN USD EUR GBP"`
	PaymentType string     `json:"payment_type,omitempty" validate:"omitempty,oneof=milestone full_payment hourly bonus"`
	Description string     `json:"description,omitempty" validate:"max=500"`
}

type InitializeJobVerificationRequest struct {
	JobID    uuid.UUID `json:"job_id" validate:"required"`
	Amount   int64     `json:"amount" validate:"required,gt=0"`
	Currency string    `json:"currency,omitempty" validate:"omitempty,oneof=NGN USD EUR GBP"`
}

type RefundPaymentRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

type BankDetailsRequest struct {
	AccountNumber string `json:"account_number" validate:"required,numeric,len=10"`
	BankCode      string `json:"bank_code" validate:"required"`
	BankName      string `json:"bank_name,omitempty"`
	AccountName   string `json:"account_name,omitempty"`
}

type WithdrawalRequest struct {
	Amount      int64               `json:"amount" validate:"required,gt=0"`
	BankDetails *BankDetailsRequest `json:"bank_details,omitempty"`
}

// PaymentEvent is the payload published for every payment.* and job.* event.
type PaymentEvent struct {
	PaymentID    uuid.UUID  `json:"payment_id"`
	PayerID      uuid.UUID  `json:"payer_id"`
	PayeeID      uuid.UUID  `json:"payee_id"`
	ProjectID    *uuid.UUID `json:"project_id,omitempty"`
	JobID        *uuid.UUID `json:"job_id,omitempty"`
	Amount       int64      `json:"amount"`
	NetAmount    int64      `json:"net_amount"`
	Currency     string     `json:"currency"`
	Status       string     `json:"status"`
	EscrowStatus string     `json:"escrow_status"`
	Reference    string     `json:"reference,omitempty"`
	OccurredAt   time.Time  `json:"occurred_at"`
}

// WithdrawalEvent is the payload published for every withdrawal.* event.
type WithdrawalEvent struct {
	WithdrawalID  uuid.UUID `json:"withdrawal_id"`
	UserID        uuid.UUID `json:"user_id"`
	Amount        int64     `json:"amount"`
	NetAmount     int64     `json:"net_amount"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	FailureReason string    `json:"failure_reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// CreateUserRequest registers a client or freelancer. Admins are provisioned
// out of band.
type CreateUserRequest struct {
	Name  string `json:"name" validate:"required,min=2,max=100"`
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required,oneof=client freelancer"`
}

type UserWithToken struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}
