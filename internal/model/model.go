package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Model struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Currency string

const (
	CurrencyNGN Currency = "NGN"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
	PaymentCancelled  PaymentStatus = "cancelled"
)

// Unresolved reports whether the payment is still waiting on the gateway.
func (s PaymentStatus) Unresolved() bool {
	return s == PaymentPending || s == PaymentProcessing
}

type PaymentType string

const (
	PaymentMilestone       PaymentType = "milestone"
	PaymentFull            PaymentType = "full_payment"
	PaymentHourly          PaymentType = "hourly"
	PaymentBonus           PaymentType = "bonus"
	PaymentJobVerification PaymentType = "job_verification"
)

type EscrowStatus string

const (
	EscrowNone     EscrowStatus = "none"
	EscrowHeld     EscrowStatus = "held"
	EscrowReleased EscrowStatus = "released"
	EscrowRefunded EscrowStatus = "refunded"
)

type User struct {
	ID    uuid.UUID `json:"id" validate:"required"`
	Name  string    `json:"name" validate:"required,min=2,max=100"`
	Email string    `json:"email" validate:"required,email"`
	Role  string    `json:"role" validate:"required,oneof=client freelancer admin"`
	Model
}

// AuthenticatedUser is the requester resolved by the auth middleware.
type AuthenticatedUser struct {
	ID    uuid.UUID
	Role  string
	Email string
}

type Project struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	ClientID     uuid.UUID `json:"client_id"`
	FreelancerID uuid.UUID `json:"freelancer_id"`
	Budget       int64     `json:"budget"`
	Currency     Currency  `json:"currency"`
	Status       string    `json:"status"`
}

type Job struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	ClientID        uuid.UUID `json:"client_id"`
	PaymentVerified bool      `json:"payment_verified"`
}

type Payment struct {
	ID               uuid.UUID     `json:"id"`
	ProjectID        *uuid.UUID    `json:"project_id,omitempty"`
	MilestoneID      *uuid.UUID    `json:"milestone_id,omitempty"`
	JobID            *uuid.UUID    `json:"job_id,omitempty"`
	PayerID          uuid.UUID     `json:"payer_id"`
	PayeeID          uuid.UUID     `json:"payee_id"`
	Amount           int64         `json:"amount" validate:"gt=0"`
	Currency         Currency      `json:"currency" validate:"oneof=NGN USD EUR GBP"`
	PlatformFee      int64         `json:"platform_fee" validate:"gte=0"`
	NetAmount        int64         `json:"net_amount" validate:"gte=0"`
	Status           PaymentStatus `json:"status"`
	PaymentType      PaymentType   `json:"payment_type"`
	EscrowStatus     EscrowStatus  `json:"escrow_status"`
	GatewayReference *string       `json:"gateway_reference,omitempty"`
	AuthorizationURL string        `json:"authorization_url,omitempty"`
	InvoiceNumber    string        `json:"invoice_number"`
	Description      string        `json:"description"`
	RefundReason     string        `json:"refund_reason,omitempty"`
	PaidAt           *time.Time    `json:"paid_at,omitempty"`
	ReleasedAt       *time.Time    `json:"released_at,omitempty"`
	RefundedAt       *time.Time    `json:"refunded_at,omitempty"`
	Model
}

func (p *Payment) Reference() string {
	if p.GatewayReference == nil {
		return ""
	}
	return *p.GatewayReference
}

// InvoiceNumber formats the invoice identifier assigned on a payment's first save.
func InvoiceNumber(at time.Time, sequence int64) string {
	return fmt.Sprintf("INV-%d-%d", at.UnixMilli(), sequence)
}

// EscrowTransition describes a compare-and-swap on a payment's escrow status.
type EscrowTransition struct {
	PaymentID uuid.UUID
	From      EscrowStatus
	To        EscrowStatus
	Status    PaymentStatus
	At        time.Time
	Reason    string
}

type BankDetails struct {
	AccountNumber string `json:"account_number" validate:"required"`
	BankCode      string `json:"bank_code" validate:"required"`
	AccountName   string `json:"account_name" validate:"required"`
	BankName      string `json:"bank_name,omitempty"`
}

// Masked returns the account number with all but the last four digits hidden.
func (b BankDetails) Masked() string {
	if len(b.AccountNumber) <= 4 {
		return b.AccountNumber
	}
	return "****" + b.AccountNumber[len(b.AccountNumber)-4:]
}

type Wallet struct {
	ID               uuid.UUID    `json:"id"`
	UserID           uuid.UUID    `json:"user_id"`
	Balance          int64        `json:"balance"`
	EscrowBalance    int64        `json:"escrow_balance"`
	AvailableBalance int64        `json:"available_balance"`
	TotalEarnings    int64        `json:"total_earnings"`
	TotalSpent       int64        `json:"total_spent"`
	Currency         Currency     `json:"currency"`
	BankDetails      *BankDetails `json:"bank_details,omitempty"`
	Model
}

// RecomputeAvailable restores availableBalance = balance - escrowBalance.
func (w *Wallet) RecomputeAvailable() {
	w.AvailableBalance = w.Balance - w.EscrowBalance
}

type TransactionType string

const (
	TxDeposit         TransactionType = "deposit"
	TxWithdrawal      TransactionType = "withdrawal"
	TxPaymentReceived TransactionType = "payment_received"
	TxPaymentSent     TransactionType = "payment_sent"
	TxRefund          TransactionType = "refund"
	TxFee             TransactionType = "fee"
	TxBonus           TransactionType = "bonus"
)

// Transaction is an append-only audit entry. Amount is negative for outflows.
type Transaction struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	Type          TransactionType `json:"type"`
	Amount        int64           `json:"amount"`
	Currency      Currency        `json:"currency"`
	BalanceBefore int64           `json:"balance_before"`
	BalanceAfter  int64           `json:"balance_after"`
	PaymentID     *uuid.UUID      `json:"payment_id,omitempty"`
	ProjectID     *uuid.UUID      `json:"project_id,omitempty"`
	WithdrawalID  *uuid.UUID      `json:"withdrawal_id,omitempty"`
	Description   string          `json:"description"`
	CreatedAt     time.Time       `json:"created_at"`
}

type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "pending"
	WithdrawalProcessing WithdrawalStatus = "processing"
	WithdrawalCompleted  WithdrawalStatus = "completed"
	WithdrawalFailed     WithdrawalStatus = "failed"
	WithdrawalCancelled  WithdrawalStatus = "cancelled"
)

type Withdrawal struct {
	ID               uuid.UUID        `json:"id"`
	UserID           uuid.UUID        `json:"user_id"`
	Amount           int64            `json:"amount"`
	ProcessingFee    int64            `json:"processing_fee"`
	NetAmount        int64            `json:"net_amount"`
	Currency         Currency         `json:"currency"`
	BankDetails      BankDetails      `json:"bank_details"`
	Status           WithdrawalStatus `json:"status"`
	GatewayReference string           `json:"gateway_reference,omitempty"`
	TransferCode     string           `json:"transfer_code,omitempty"`
	RecipientCode    string           `json:"recipient_code,omitempty"`
	FailureReason    string           `json:"failure_reason,omitempty"`
	ProcessedBy      *uuid.UUID       `json:"processed_by,omitempty"`
	ProcessedAt      *time.Time       `json:"processed_at,omitempty"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	// BalanceBefore and BalanceAfter bracket the debit taken at request time.
	BalanceBefore int64 `json:"-"`
	BalanceAfter  int64 `json:"-"`
	Model
}

// WithdrawalTransition describes a compare-and-swap on a withdrawal's status.
// Empty fields leave the stored value untouched.
type WithdrawalTransition struct {
	ID               uuid.UUID
	From             WithdrawalStatus
	To               WithdrawalStatus
	At               time.Time
	ProcessedBy      *uuid.UUID
	FailureReason    string
	GatewayReference string
	TransferCode     string
	RecipientCode    string
}

// Event is a domain event handed to the outbox for delivery.
type Event struct {
	Type         string
	PartitionKey string
	Payload      any
}

type TransactionOutbox struct {
	ID            int64           `json:"id" validate:"required"`
	EventType     string          `json:"event_type" validate:"required"`
	Payload       json.RawMessage `json:"payload" validate:"required"`
	PartitionKey  string          `json:"partition_key" validate:"required"`
	Status        string          `json:"status" validate:"required,oneof=pending processed failed"`
	CorrelationID string          `json:"correlation_id"`
	RetryCount    int             `json:"retry_count" validate:"gte=0"`
	LastError     string          `json:"last_error,omitempty"`
	Model
}

type PspWebhook struct {
	ID      uuid.UUID       `json:"id" validate:"required"`
	EventID string          `json:"event_id" validate:"required"`
	Payload json.RawMessage `json:"payload" validate:"required"`
	Status  string          `json:"status" validate:"required,oneof=received error processed"`
	Model
}
