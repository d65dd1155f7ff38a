package wallet

import (
	"net/http"

	"github.com/Niiaks/Escrow/internal/apperror"
	"github.com/Niiaks/Escrow/internal/middleware"
	"github.com/Niiaks/Escrow/internal/request"
	"github.com/Niiaks/Escrow/internal/response"
	"github.com/Niiaks/Escrow/pkg/types"
)

type WalletHandler struct {
	Service *WalletService
}

func NewWalletHandler(service *WalletService) *WalletHandler {
	return &WalletHandler{
		Service: service,
	}
}

func (wh *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.CurrentUser(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	balance, err := wh.Service.GetBalance(r.Context(), user.ID)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, balance)
}

func (wh *WalletHandler) UpdateBankDetails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)
	logger.Info().Msg("Received request to update bank details")

	user, err := middleware.CurrentUser(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	var req types.BankDetailsRequest
	if err := request.Bind(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	details, err := wh.Service.UpdateBankDetails(ctx, user.ID, &req)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.Message(w, http.StatusOK, "Bank details updated", details)
}

func (wh *WalletHandler) ListBanks(w http.ResponseWriter, r *http.Request) {
	banks, err := wh.Service.ListBanks(r.Context(), r.URL.Query().Get("currency"))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, banks)
}

func (wh *WalletHandler) ResolveAccount(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	accountNumber, bankCode := query.Get("account_number"), query.Get("bank_code")
	if accountNumber == "" || bankCode == "" {
		response.Error(w, r, apperror.Validation("account_number and bank_code are required"))
		return
	}

	details, err := wh.Service.ResolveAccount(r.Context(), accountNumber, bankCode)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, details)
}
