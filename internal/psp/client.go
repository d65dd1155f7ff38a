package psp

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/Niiaks/Escrow/internal/config"
	"github.com/Niiaks/Escrow/pkg/types"
)

const defaultBaseURL = "https://api.paystack.co"

// APIError is a non-2xx or status=false answer from Paystack.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paystack error: status=%d message=%s", e.StatusCode, e.Message)
}

// Definite reports whether Paystack rejected the request outright. A 5xx
// answer says nothing about whether the request took effect.
func (e *APIError) Definite() bool {
	return e.StatusCode < http.StatusInternalServerError
}

// ErrTimeout is returned when Paystack does not answer within the configured timeout.
var ErrTimeout = errors.New("paystack request timed out")

type PaystackClient struct {
	httpClient    *http.Client
	secretKey     string
	webhookSecret string
	baseURL       string
	timeout       time.Duration
	log           *zerolog.Logger
}

func NewPaystackClient(cfg config.PaystackConfig, log *zerolog.Logger) *PaystackClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	webhookSecret := cfg.WebhookSecret
	if webhookSecret == "" {
		webhookSecret = cfg.SecretKey
	}

	return &PaystackClient{
		httpClient: &http.Client{
			Transport: newrelic.NewRoundTripper(&http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 50,
				IdleConnTimeout:     90 * time.Second,
				DisableKeepAlives:   false,
			}),
		},
		secretKey:     cfg.SecretKey,
		webhookSecret: webhookSecret,
		baseURL:       baseURL,
		timeout:       timeout,
		log:           log,
	}
}

func (c *PaystackClient) InitializePayment(ctx context.Context, req *types.InitializePaymentRequest) (*types.InitializePaymentResponse, error) {
	var resp types.InitializePaymentResponse
	if err := c.call(ctx, http.MethodPost, "/transaction/initialize", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Status || resp.Data.Reference == "" {
		return nil, &APIError{StatusCode: http.StatusOK, Message: resp.Message}
	}
	return &resp, nil
}

// VerifyPayment fetches the charge for reference. A declined charge is not an
// error; callers inspect Succeeded on the response.
func (c *PaystackClient) VerifyPayment(ctx context.Context, reference string) (*types.VerifyPaymentResponse, error) {
	var resp types.VerifyPaymentResponse
	if err := c.call(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *PaystackClient) CreateTransferRecipient(ctx context.Context, req *types.TransferRecipientRequest) (*types.TransferRecipientResponse, error) {
	if req.Type == "" {
		req.Type = "nuban"
	}
	var resp types.TransferRecipientResponse
	if err := c.call(ctx, http.MethodPost, "/transferrecipient", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Status || resp.Data.RecipientCode == "" {
		return nil, &APIError{StatusCode: http.StatusOK, Message: resp.Message}
	}
	return &resp, nil
}

func (c *PaystackClient) InitiateTransfer(ctx context.Context, req *types.TransferRequest) (*types.TransferResponse, error) {
	if req.Source == "" {
		req.Source = "balance"
	}
	var resp types.TransferResponse
	if err := c.call(ctx, http.MethodPost, "/transfer", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Status || resp.Data.Status == "failed" || resp.Data.Status == "reversed" {
		return nil, &APIError{StatusCode: http.StatusOK, Message: resp.Message}
	}
	return &resp, nil
}

// VerifyTransfer fetches the transfer created with reference. Paystack
// reports the final outcome in Data.Status: success, failed or reversed.
func (c *PaystackClient) VerifyTransfer(ctx context.Context, reference string) (*types.VerifyTransferResponse, error) {
	var resp types.VerifyTransferResponse
	if err := c.call(ctx, http.MethodGet, "/transfer/verify/"+url.PathEscape(reference), nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Status {
		return nil, &APIError{StatusCode: http.StatusOK, Message: resp.Message}
	}
	return &resp, nil
}

func (c *PaystackClient) ListBanks(ctx context.Context, currency string) ([]types.Bank, error) {
	path := "/bank"
	if currency != "" {
		path += "?currency=" + url.QueryEscape(currency)
	}
	var resp types.ListBanksResponse
	if err := c.call(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *PaystackClient) ResolveAccountNumber(ctx context.Context, accountNumber, bankCode string) (*types.ResolveAccountResponse, error) {
	q := url.Values{}
	q.Set("account_number", accountNumber)
	q.Set("bank_code", bankCode)

	var resp types.ResolveAccountResponse
	if err := c.call(ctx, http.MethodGet, "/bank/resolve?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Status {
		return nil, &APIError{StatusCode: http.StatusOK, Message: resp.Message}
	}
	return &resp, nil
}

// VerifyWebhookSignature checks the x-paystack-signature header, an HMAC-SHA512
// of the raw body keyed with the secret.
func (c *PaystackClient) VerifyWebhookSignature(body []byte, signature string) bool {
	return VerifySignature(c.webhookSecret, body, signature)
}

func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign computes the signature Paystack would send for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *PaystackClient) call(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	respBody, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *PaystackClient) doRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	endpoint := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		jsonBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(jsonBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		c.log.Error().Err(err).
			Str("method", method).
			Str("path", path).
			Int64("duration_ms", duration).
			Msg("Paystack request failed")
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s %s", ErrTimeout, method, path)
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
		var envelope struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Message != "" {
			apiErr.Message = envelope.Message
		}
		c.log.Error().
			Int("status", resp.StatusCode).
			Str("method", method).
			Str("path", path).
			Int64("duration_ms", duration).
			Str("body", string(respBody)).
			Msg("Paystack API error response")
		return nil, apiErr
	}

	c.log.Debug().
		Int("status", resp.StatusCode).
		Str("method", method).
		Str("path", path).
		Int64("duration_ms", duration).
		Msg("Paystack API request successful")

	return respBody, nil
}
