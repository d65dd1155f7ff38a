package user

import (
	"net/http"

	"github.com/Niiaks/Escrow/internal/middleware"
	"github.com/Niiaks/Escrow/internal/request"
	"github.com/Niiaks/Escrow/internal/response"
	"github.com/Niiaks/Escrow/pkg/types"
)

type UserHandler struct {
	service *UserService
}

func NewUserHandler(service *UserService) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

func (uh *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)
	logger.Info().Msg("Received request to create user")

	var req types.CreateUserRequest
	if err := request.Bind(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	created, err := uh.service.CreateUser(ctx, &req)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.Message(w, http.StatusCreated, "User created", created)
}

func (uh *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	current, err := middleware.CurrentUser(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	u, err := uh.service.GetUser(r.Context(), current.ID)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, u)
}
