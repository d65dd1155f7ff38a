package withdrawal

import (
	"net/http"

	"github.com/Niiaks/Escrow/internal/middleware"
	"github.com/Niiaks/Escrow/internal/model"
	"github.com/Niiaks/Escrow/internal/request"
	"github.com/Niiaks/Escrow/internal/response"
	"github.com/Niiaks/Escrow/pkg/types"
)

type WithdrawalHandler struct {
	withdrawalService *WithdrawalService
}

func NewWithdrawalHandler(withdrawalService *WithdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{
		withdrawalService: withdrawalService,
	}
}

func (wh *WithdrawalHandler) Request(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)
	logger.Info().Msg("Received withdrawal request")

	user, err := middleware.CurrentUser(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	var req types.WithdrawalRequest
	if err := request.Bind(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	wd, err := wh.withdrawalService.RequestWithdrawal(ctx, user, &req)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.Message(w, http.StatusCreated, "Withdrawal requested", wd)
}

func (wh *WithdrawalHandler) Process(w http.ResponseWriter, r *http.Request) {
	admin, err := middleware.CurrentUser(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	id, err := request.UUIDParam(r, "withdrawalID")
	if err != nil {
		response.Error(w, r, err)
		return
	}

	wd, err := wh.withdrawalService.ProcessWithdrawal(r.Context(), admin, id)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	if wd.Status == model.WithdrawalProcessing {
		response.Message(w, http.StatusAccepted, "Withdrawal transfer in progress", wd)
		return
	}
	response.Message(w, http.StatusOK, "Withdrawal completed", wd)
}

func (wh *WithdrawalHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	admin, err := middleware.CurrentUser(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	id, err := request.UUIDParam(r, "withdrawalID")
	if err != nil {
		response.Error(w, r, err)
		return
	}

	wd, err := wh.withdrawalService.ResolveWithdrawal(r.Context(), admin, id)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.Message(w, http.StatusOK, "Withdrawal resolved", wd)
}

func (wh *WithdrawalHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.CurrentUser(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	id, err := request.UUIDParam(r, "withdrawalID")
	if err != nil {
		response.Error(w, r, err)
		return
	}

	wd, err := wh.withdrawalService.CancelWithdrawal(r.Context(), user, id)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.Message(w, http.StatusOK, "Withdrawal cancelled", wd)
}

func (wh *WithdrawalHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.CurrentUser(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	id, err := request.UUIDParam(r, "withdrawalID")
	if err != nil {
		response.Error(w, r, err)
		return
	}

	wd, err := wh.withdrawalService.GetWithdrawal(r.Context(), user, id)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, wd)
}

func (wh *WithdrawalHandler) List(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.CurrentUser(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	limit, offset := request.Pagination(r)

	items, total, err := wh.withdrawalService.ListWithdrawals(r.Context(), user, limit, offset)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, response.NewPage(items, total, limit, offset))
}
