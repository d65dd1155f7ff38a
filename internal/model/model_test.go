package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInvoiceNumber(t *testing.T) {
	at := time.UnixMilli(1760000000123)
	assert.Equal(t, "INV-1760000000123-42", InvoiceNumber(at, 42))
}

func TestWalletRecomputeAvailable(t *testing.T) {
	w := Wallet{Balance: 9000, EscrowBalance: 4000, AvailableBalance: 123}
	w.RecomputeAvailable()
	assert.Equal(t, int64(5000), w.AvailableBalance)
}

func TestBankDetailsMasked(t *testing.T) {
	assert.Equal(t, "****6789", BankDetails{AccountNumber: "0123456789"}.Masked())
	assert.Equal(t, "123", BankDetails{AccountNumber: "123"}.Masked())
}

func TestPaymentStatusUnresolved(t *testing.T) {
	assert.True(t, PaymentPending.Unresolved())
	assert.True(t, PaymentProcessing.Unresolved())
	assert.False(t, PaymentCompleted.Unresolved())
	assert.False(t, PaymentFailed.Unresolved())
}
