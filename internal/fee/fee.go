// Package fee computes platform and withdrawal fees in minor currency units.
package fee

import (
	"github.com/shopspring/decimal"

	"github.com/Niiaks/Escrow/internal/apperror"
)

var (
	hundred = decimal.NewFromInt(100)

	ErrInvalidAmount     = apperror.Validation("amount must be greater than zero")
	ErrInvalidPercentage = apperror.Validation("fee percentage must be between 0 and 100")
	ErrAmountBelowFee    = apperror.Validation("amount does not cover the processing fee")
)

// ComputeFee splits amount into the fee charged at percentage and the net
// remainder. The fee is rounded half-up to a whole minor unit, so fee + net
// always equals amount.
func ComputeFee(amount int64, percentage decimal.Decimal) (fee, net int64, err error) {
	if amount <= 0 {
		return 0, 0, ErrInvalidAmount
	}
	if err := ValidatePercentage(percentage); err != nil {
		return 0, 0, err
	}

	fee = percentageOf(amount, percentage)
	return fee, amount - fee, nil
}

// WithdrawalFee charges max(minimum, amount*percentage/100).
func WithdrawalFee(amount, minimum int64, percentage decimal.Decimal) (fee, net int64, err error) {
	if amount <= 0 {
		return 0, 0, ErrInvalidAmount
	}
	if err := ValidatePercentage(percentage); err != nil {
		return 0, 0, err
	}

	fee = max(minimum, percentageOf(amount, percentage))
	if fee >= amount {
		return 0, 0, ErrAmountBelowFee
	}
	return fee, amount - fee, nil
}

func ValidatePercentage(percentage decimal.Decimal) error {
	if percentage.IsNegative() || percentage.GreaterThan(hundred) {
		return ErrInvalidPercentage
	}
	return nil
}

func percentageOf(amount int64, percentage decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(percentage).Div(hundred).Round(0).IntPart()
}
