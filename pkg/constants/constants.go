package constants

import "github.com/google/uuid"

// PlatformAccountID is the payee recorded on payments that settle with the
// platform itself, such as job verification fees.
var PlatformAccountID = uuid.MustParse("00000000-0000-0000-0000-000000000002")

const (
	RoleAdmin      = "admin"
	RoleClient     = "client"
	RoleFreelancer = "freelancer"
)

const DefaultCurrency = "NGN"

// SupportedCurrencies lists the currencies a payment may be created in.
var SupportedCurrencies = map[string]bool{
	"NGN": true,
	"USD": true,
	"EUR": true,
	"GBP": true,
}

const (
	HeaderIdempotencyKey    = "Idempotency-Key"
	HeaderPaystackSignature = "x-paystack-signature"
)
