// Package psptest provides an in-memory Paystack stand-in for service tests.
package psptest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Niiaks/Escrow/pkg/types"
)

type Gateway struct {
	mu      sync.Mutex
	seq     int
	calls   map[string]int
	charges map[string]int64

	InitErr      error
	VerifyErr    error
	RecipientErr error
	TransferErr  error
	BanksErr     error
	ResolveErr   error
	// VerifyTransferErr fails VerifyTransfer.
	VerifyTransferErr error

	// VerifyStatus is the charge status reported by VerifyPayment. Empty means "success".
	VerifyStatus string
	// TransferStatus is the transfer status reported by VerifyTransfer. Empty means "success".
	TransferStatus string
	Banks          []types.Bank
	AccountName    string

	// LastInit and LastTransfer capture the most recent requests.
	LastInit     *types.InitializePaymentRequest
	LastTransfer *types.TransferRequest
}

func New() *Gateway {
	return &Gateway{
		calls:       map[string]int{},
		charges:     map[string]int64{},
		Banks:       []types.Bank{{Name: "Guaranty Trust Bank", Code: "058", Currency: "NGN"}},
		AccountName: "ADA LOVELACE",
	}
}

// Calls returns how many times method was invoked.
func (g *Gateway) Calls(method string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[method]
}

func (g *Gateway) record(method string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[method]++
	g.seq++
	return g.seq
}

func (g *Gateway) InitializePayment(ctx context.Context, req *types.InitializePaymentRequest) (*types.InitializePaymentResponse, error) {
	n := g.record("InitializePayment")
	g.mu.Lock()
	g.LastInit = req
	g.mu.Unlock()
	if g.InitErr != nil {
		return nil, g.InitErr
	}

	resp := &types.InitializePaymentResponse{Status: true, Message: "Authorization URL created"}
	resp.Data.Reference = req.Reference
	if resp.Data.Reference == "" {
		resp.Data.Reference = fmt.Sprintf("ref_%d", n)
	}
	g.mu.Lock()
	g.charges[resp.Data.Reference] = req.Amount
	g.mu.Unlock()
	resp.Data.AccessCode = fmt.Sprintf("access_%d", n)
	resp.Data.AuthorizationURL = "https://checkout.paystack.test/" + resp.Data.AccessCode
	return resp, nil
}

func (g *Gateway) VerifyPayment(ctx context.Context, reference string) (*types.VerifyPaymentResponse, error) {
	g.record("VerifyPayment")
	if g.VerifyErr != nil {
		return nil, g.VerifyErr
	}

	status := g.VerifyStatus
	if status == "" {
		status = "success"
	}
	now := time.Now()
	resp := &types.VerifyPaymentResponse{Status: true, Message: "Verification successful"}
	resp.Data.Status = status
	resp.Data.Reference = reference
	resp.Data.GatewayResponse = status
	g.mu.Lock()
	resp.Data.Amount = g.charges[reference]
	g.mu.Unlock()
	if status == "success" {
		resp.Data.PaidAt = &now
	}
	return resp, nil
}

func (g *Gateway) CreateTransferRecipient(ctx context.Context, req *types.TransferRecipientRequest) (*types.TransferRecipientResponse, error) {
	n := g.record("CreateTransferRecipient")
	if g.RecipientErr != nil {
		return nil, g.RecipientErr
	}
	resp := &types.TransferRecipientResponse{Status: true}
	resp.Data.RecipientCode = fmt.Sprintf("RCP_%d", n)
	resp.Data.Name = req.Name
	return resp, nil
}

func (g *Gateway) InitiateTransfer(ctx context.Context, req *types.TransferRequest) (*types.TransferResponse, error) {
	n := g.record("InitiateTransfer")
	g.mu.Lock()
	g.LastTransfer = req
	g.mu.Unlock()
	if g.TransferErr != nil {
		return nil, g.TransferErr
	}
	resp := &types.TransferResponse{Status: true}
	resp.Data.Reference = req.Reference
	resp.Data.TransferCode = fmt.Sprintf("TRF_%d", n)
	resp.Data.Status = "success"
	resp.Data.Amount = req.Amount
	return resp, nil
}

func (g *Gateway) VerifyTransfer(ctx context.Context, reference string) (*types.VerifyTransferResponse, error) {
	g.record("VerifyTransfer")
	if g.VerifyTransferErr != nil {
		return nil, g.VerifyTransferErr
	}
	status := g.TransferStatus
	if status == "" {
		status = "success"
	}
	resp := &types.VerifyTransferResponse{Status: true}
	resp.Data.Reference = reference
	resp.Data.Status = status
	return resp, nil
}

func (g *Gateway) ListBanks(ctx context.Context, currency string) ([]types.Bank, error) {
	g.record("ListBanks")
	if g.BanksErr != nil {
		return nil, g.BanksErr
	}
	return g.Banks, nil
}

func (g *Gateway) ResolveAccountNumber(ctx context.Context, accountNumber, bankCode string) (*types.ResolveAccountResponse, error) {
	g.record("ResolveAccountNumber")
	if g.ResolveErr != nil {
		return nil, g.ResolveErr
	}
	resp := &types.ResolveAccountResponse{Status: true}
	resp.Data.AccountNumber = accountNumber
	resp.Data.AccountName = g.AccountName
	return resp, nil
}
