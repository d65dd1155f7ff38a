package payment

import (
	"github.com/google/uuid"

	"github.com/Niiaks/Escrow/internal/apperror"
	"github.com/Niiaks/Escrow/internal/model"
)

var (
	ErrPaymentNotFound = apperror.New(apperror.KindNotFound, "payment not found")
	ErrProjectNotFound = apperror.New(apperror.KindNotFound, "project not found")
	ErrJobNotFound     = apperror.New(apperror.KindNotFound, "job not found")
	ErrPayerNotFound   = apperror.New(apperror.KindNotFound, "payer not found")
	ErrPayeeNotFound   = apperror.New(apperror.KindNotFound, "payee not found")

	ErrNotPayer        = apperror.New(apperror.KindForbidden, "only the payer can perform this action")
	ErrNotParticipant  = apperror.New(apperror.KindForbidden, "you are not a party to this payment")
	ErrNotProjectOwner = apperror.New(apperror.KindForbidden, "only the project owner can pay for this project")
	ErrNotJobOwner     = apperror.New(apperror.KindForbidden, "only the job owner can verify this job")

	ErrEscrowNotHeld      = apperror.New(apperror.KindInvalidState, "payment is not held in escrow")
	ErrJobAlreadyVerified = apperror.New(apperror.KindInvalidState, "job payment is already verified")
	ErrSelfPayment        = apperror.Validation("payer and payee must be different users")
	ErrPayeeNotOnProject  = apperror.Validation("payee must be the freelancer assigned to the project")

	ErrCheckoutAlreadyPaid = apperror.New(apperror.KindConflict, "an earlier checkout for this payment has already been paid")
	ErrAmountMismatch      = apperror.New(apperror.KindConflict, "charged amount does not match the payment")
	ErrUnsupportedCurrency = apperror.Validation("currency is not supported")
)

// escrowTransitions lists every legal escrow move. Nothing leaves released
// or refunded, and held is only entered from none.
var escrowTransitions = map[model.EscrowStatus][]model.EscrowStatus{
	model.EscrowNone: {model.EscrowHeld},
	model.EscrowHeld: {model.EscrowReleased, model.EscrowRefunded},
}

func CanTransition(from, to model.EscrowStatus) bool {
	for _, next := range escrowTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// escrowOnSuccess is the escrow status a payment takes once the gateway
// confirms it. Job verification fees settle with the platform directly.
func escrowOnSuccess(p *model.Payment) model.EscrowStatus {
	if p.PaymentType == model.PaymentJobVerification {
		return model.EscrowNone
	}
	return model.EscrowHeld
}

// guardSettlement checks that actor may release or refund p.
func guardSettlement(p *model.Payment, actor uuid.UUID) error {
	if p.PayerID != actor {
		return ErrNotPayer
	}
	if p.EscrowStatus != model.EscrowHeld {
		return ErrEscrowNotHeld
	}
	return nil
}

// gatewayOutcome maps a Paystack charge status to the payment status it
// resolves to. ok is false while the charge is still in flight. An abandoned
// checkout can still be completed by the customer, so it stays in flight.
func gatewayOutcome(chargeStatus string) (status model.PaymentStatus, ok bool) {
	switch chargeStatus {
	case "success":
		return model.PaymentCompleted, true
	case "ongoing", "pending", "processing", "queued", "abandoned":
		return "", false
	default:
		return model.PaymentFailed, true
	}
}

func defaultPaymentType(milestoneID *uuid.UUID, requested string) model.PaymentType {
	if requested != "" {
		return model.PaymentType(requested)
	}
	if milestoneID != nil {
		return model.PaymentMilestone
	}
	return model.PaymentFull
}
