package transaction

import (
	"net/http"

	"github.com/Niiaks/Escrow/internal/middleware"
	"github.com/Niiaks/Escrow/internal/request"
	"github.com/Niiaks/Escrow/internal/response"
)

type TransactionHandler struct {
	transactionService *TransactionService
}

func NewTransactionHandler(transactionService *TransactionService) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
	}
}

func (th *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.CurrentUser(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	limit, offset := request.Pagination(r)

	txs, total, err := th.transactionService.List(r.Context(), user.ID, limit, offset)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, response.NewPage(txs, total, limit, offset))
}
