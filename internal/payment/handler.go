package payment

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Niiaks/Escrow/internal/middleware"
	"github.com/Niiaks/Escrow/internal/request"
	"github.com/Niiaks/Escrow/internal/response"
	"github.com/Niiaks/Escrow/pkg/types"
)

type PaymentHandler struct {
	paymentService *PaymentService
}

func NewPaymentHandler(paymentService *PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

func (ph *PaymentHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)
	logger.Info().Msg("Received request to initialize payment")

	user, err := middleware.CurrentUser(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	var req types.InitializeProjectPaymentRequest
	if err := request.Bind(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	payment, err := ph.paymentService.InitializePayment(ctx, user, &req)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.Message(w, http.StatusCreated, "Payment initialized", payment)
}

func (ph *PaymentHandler) InitializeJobVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)
	logger.Info().Msg("Received request to initialize job verification payment")

	user, err := middleware.CurrentUser(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	var req types.InitializeJobVerificationRequest
	if err := request.Bind(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	payment, err := ph.paymentService.InitializeJobVerificationPayment(ctx, user, &req)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.Message(w, http.StatusCreated, "Job verification payment initialized", payment)
}

func (ph *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	if reference == "" {
		response.Error(w, r, ErrPaymentNotFound)
		return
	}

	result, err := ph.paymentService.VerifyPayment(r.Context(), reference)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	message := "Payment verified"
	if result.AlreadyProcessed {
		message = "Payment already processed"
	}
	response.Message(w, http.StatusOK, message, result)
}

func (ph *PaymentHandler) Release(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.CurrentUser(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	paymentID, err := request.UUIDParam(r, "paymentID")
	if err != nil {
		response.Error(w, r, err)
		return
	}

	payment, err := ph.paymentService.ReleasePayment(r.Context(), user, paymentID)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.Message(w, http.StatusOK, "Payment released", payment)
}

func (ph *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.CurrentUser(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	paymentID, err := request.UUIDParam(r, "paymentID")
	if err != nil {
		response.Error(w, r, err)
		return
	}

	var req types.RefundPaymentRequest
	if err := request.Bind(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	payment, err := ph.paymentService.RefundPayment(r.Context(), user, paymentID, req.Reason)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.Message(w, http.StatusOK, "Payment refunded", payment)
}

func (ph *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.CurrentUser(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	paymentID, err := request.UUIDParam(r, "paymentID")
	if err != nil {
		response.Error(w, r, err)
		return
	}

	payment, err := ph.paymentService.GetPayment(r.Context(), user, paymentID)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, payment)
}

func (ph *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.CurrentUser(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	limit, offset := request.Pagination(r)

	payments, total, err := ph.paymentService.ListPayments(r.Context(), user, limit, offset)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, response.NewPage(payments, total, limit, offset))
}
