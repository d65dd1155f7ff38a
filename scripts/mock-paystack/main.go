// Command mock-paystack serves the subset of the Paystack API the escrow
// service calls, for local runs and load tests. Every charge verifies as
// successful unless its reference contains "fail", and account 0000000000
// fails to resolve.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/Niiaks/Escrow/pkg/types"
)

var (
	seq       atomic.Int64
	transfers sync.Map // reference -> types.TransferResponse
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func fail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"status": false, "message": message})
}

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "mock-paystack").Logger()

	port := os.Getenv("MOCK_PAYSTACK_PORT")
	if port == "" {
		port = "8081"
	}

	r := chi.NewRouter()

	r.Post("/transaction/initialize", func(w http.ResponseWriter, r *http.Request) {
		var req types.InitializePaymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			fail(w, http.StatusBadRequest, "invalid body")
			return
		}
		n := seq.Add(1)

		resp := types.InitializePaymentResponse{Status: true, Message: "Authorization URL created"}
		resp.Data.Reference = req.Reference
		if resp.Data.Reference == "" {
			resp.Data.Reference = fmt.Sprintf("mock_ref_%d", n)
		}
		resp.Data.AccessCode = fmt.Sprintf("mock_access_%d", n)
		resp.Data.AuthorizationURL = "https://checkout.paystack.com/" + resp.Data.AccessCode
		writeJSON(w, http.StatusOK, resp)

		log.Info().Str("reference", resp.Data.Reference).Int64("amount", req.Amount).Msg("initialized charge")
	})

	r.Get("/transaction/verify/{reference}", func(w http.ResponseWriter, r *http.Request) {
		reference := chi.URLParam(r, "reference")

		resp := types.VerifyPaymentResponse{Status: true, Message: "Verification successful"}
		resp.Data.ID = seq.Add(1)
		resp.Data.Reference = reference
		resp.Data.Currency = "NGN"
		resp.Data.Channel = "card"
		if strings.Contains(reference, "fail") {
			resp.Data.Status = "failed"
			resp.Data.GatewayResponse = "Declined"
		} else {
			now := time.Now()
			resp.Data.Status = "success"
			resp.Data.GatewayResponse = "Successful"
			resp.Data.PaidAt = &now
		}
		writeJSON(w, http.StatusOK, resp)

		log.Info().Str("reference", reference).Str("status", resp.Data.Status).Msg("verified charge")
	})

	r.Post("/transferrecipient", func(w http.ResponseWriter, r *http.Request) {
		var req types.TransferRecipientRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			fail(w, http.StatusBadRequest, "invalid body")
			return
		}
		resp := types.TransferRecipientResponse{Status: true, Message: "Transfer recipient created successfully"}
		resp.Data.RecipientCode = fmt.Sprintf("RCP_mock_%d", seq.Add(1))
		resp.Data.Name = req.Name
		writeJSON(w, http.StatusCreated, resp)
	})

	r.Post("/transfer", func(w http.ResponseWriter, r *http.Request) {
		var req types.TransferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			fail(w, http.StatusBadRequest, "invalid body")
			return
		}
		if req.Amount > 100_000_000 {
			fail(w, http.StatusBadRequest, "Your balance is not enough to fulfil this request")
			return
		}
		resp := types.TransferResponse{Status: true, Message: "Transfer has been queued"}
		resp.Data.Reference = req.Reference
		resp.Data.TransferCode = fmt.Sprintf("TRF_mock_%d", seq.Add(1))
		resp.Data.Status = "success"
		resp.Data.Amount = req.Amount
		transfers.Store(req.Reference, resp)
		writeJSON(w, http.StatusOK, resp)

		log.Info().Str("reference", req.Reference).Int64("amount", req.Amount).Msg("transfer sent")
	})

	r.Get("/transfer/verify/{reference}", func(w http.ResponseWriter, r *http.Request) {
		reference := chi.URLParam(r, "reference")
		v, ok := transfers.Load(reference)
		if !ok {
			fail(w, http.StatusNotFound, "Transfer not found")
			return
		}
		sent := v.(types.TransferResponse)

		resp := types.VerifyTransferResponse{Status: true, Message: "Transfer retrieved"}
		resp.Data.Reference = reference
		resp.Data.TransferCode = sent.Data.TransferCode
		resp.Data.Status = sent.Data.Status
		resp.Data.Amount = sent.Data.Amount
		writeJSON(w, http.StatusOK, resp)
	})

	r.Get("/bank", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, types.ListBanksResponse{
			Status:  true,
			Message: "Banks retrieved",
			Data: []types.Bank{
				{Name: "Access Bank", Code: "044", Slug: "access-bank", Currency: "NGN"},
				{Name: "Guaranty Trust Bank", Code: "058", Slug: "guaranty-trust-bank", Currency: "NGN"},
				{Name: "Zenith Bank", Code: "057", Slug: "zenith-bank", Currency: "NGN"},
			},
		})
	})

	r.Get("/bank/resolve", func(w http.ResponseWriter, r *http.Request) {
		account := r.URL.Query().Get("account_number")
		if account == "" || account == "0000000000" {
			fail(w, http.StatusUnprocessableEntity, "Could not resolve account name. Check parameters or try again.")
			return
		}
		resp := types.ResolveAccountResponse{Status: true, Message: "Account number resolved"}
		resp.Data.AccountNumber = account
		resp.Data.AccountName = "MOCK ACCOUNT HOLDER"
		writeJSON(w, http.StatusOK, resp)
	})

	log.Info().Str("port", port).Msg("mock paystack listening")
	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
