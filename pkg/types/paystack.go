package types

import "time"

type PaystackWebhookEvent struct {
	Event string              `json:"event"`
	Data  PaystackWebhookData `json:"data"`
}

type PaystackWebhookData struct {
	ID              int64             `json:"id"`
	Domain          string            `json:"domain"`
	Status          string            `json:"status"`
	Reference       string            `json:"reference"`
	Amount          int64             `json:"amount"`
	Message         *string           `json:"message"`
	GatewayResponse string            `json:"gateway_response"`
	PaidAt          *time.Time        `json:"paid_at"`
	CreatedAt       time.Time         `json:"created_at"`
	Channel         string            `json:"channel"`
	Currency        string            `json:"currency"`
	TransferCode    string            `json:"transfer_code"`
	Reason          string            `json:"reason"`
	Metadata        map[string]any    `json:"metadata"`
	Fees            int64             `json:"fees"`
	Customer        PaystackCustomer  `json:"customer"`
	Recipient       PaystackRecipient `json:"recipient"`
}

type PaystackCustomer struct {
	ID           int64   `json:"id"`
	Email        string  `json:"email"`
	CustomerCode string  `json:"customer_code"`
	FirstName    *string `json:"first_name"`
	LastName     *string `json:"last_name"`
	Phone        *string `json:"phone"`
	RiskAction   string  `json:"risk_action"`
}

type PaystackRecipient struct {
	RecipientCode string `json:"recipient_code"`
	Name          string `json:"name"`
}

// InitializePaymentRequest is the body sent to /transaction/initialize.
type InitializePaymentRequest struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency,omitempty"`
	Reference   string            `json:"reference,omitempty"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type InitializePaymentResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

type VerifyPaymentResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		ID              int64      `json:"id"`
		Status          string     `json:"status"`
		Reference       string     `json:"reference"`
		Amount          int64      `json:"amount"`
		Currency        string     `json:"currency"`
		GatewayResponse string     `json:"gateway_response"`
		PaidAt          *time.Time `json:"paid_at"`
		Channel         string     `json:"channel"`
	} `json:"data"`
}

// Succeeded reports whether the provider settled the charge.
func (r *VerifyPaymentResponse) Succeeded() bool {
	return r.Status && r.Data.Status == "success"
}

type TransferRecipientRequest struct {
	Type          string `json:"type"`
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
	Currency      string `json:"currency,omitempty"`
}

type TransferRecipientResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		RecipientCode string `json:"recipient_code"`
		Name          string `json:"name"`
	} `json:"data"`
}

type TransferRequest struct {
	Source    string `json:"source"`
	Amount    int64  `json:"amount"`
	Recipient string `json:"recipient"`
	Reference string `json:"reference"`
	Reason    string `json:"reason,omitempty"`
	Currency  string `json:"currency,omitempty"`
}

type TransferResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Reference    string `json:"reference"`
		TransferCode string `json:"transfer_code"`
		Status       string `json:"status"`
		Amount       int64  `json:"amount"`
	} `json:"data"`
}

type VerifyTransferResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Reference    string `json:"reference"`
		TransferCode string `json:"transfer_code"`
		Status       string `json:"status"`
		Amount       int64  `json:"amount"`
		Reason       string `json:"reason"`
	} `json:"data"`
}

type Bank struct {
	Name     string `json:"name"`
	Code     string `json:"code"`
	Slug     string `json:"slug"`
	Currency string `json:"currency"`
}

type ListBanksResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    []Bank `json:"data"`
}

type ResolveAccountResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AccountNumber string `json:"account_number"`
		AccountName   string `json:"account_name"`
		BankID        int64  `json:"bank_id"`
	} `json:"data"`
}
