package withdrawal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Niiaks/Escrow/internal/apperror"
	"github.com/Niiaks/Escrow/internal/middleware"
	"github.com/Niiaks/Escrow/internal/model"
	"github.com/Niiaks/Escrow/internal/psp"
	"github.com/Niiaks/Escrow/internal/response"
)

func newTestRouter(f *fixture) chi.Router {
	h := NewWithdrawalHandler(f.svc)
	r := chi.NewRouter()
	r.Post("/withdrawals", h.Request)
	r.Post("/withdrawals/{withdrawalID}/process", h.Process)
	r.Post("/withdrawals/{withdrawalID}/resolve", h.Resolve)
	r.Get("/withdrawals/{withdrawalID}", h.Get)
	return r
}

func do(t *testing.T, r http.Handler, user *model.AuthenticatedUser, method, path, body string) (*httptest.ResponseRecorder, response.Envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req = req.WithContext(middleware.WithUser(req.Context(), user))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var env response.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func requestBody() string {
	return `{"amount":5000,"bank_details":{"account_number":"0123456789","bank_code":"058","account_name":"Ada Lovelace"}}`
}

func TestHandler_RequestAndProcess(t *testing.T) {
	f := newFixture(9000)
	r := newTestRouter(f)

	rec, env := do(t, r, f.user, http.MethodPost, "/withdrawals", requestBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, env.Success)
	data := env.Data.(map[string]any)
	assert.Equal(t, float64(4900), data["net_amount"])
	id := data["id"].(string)

	rec, env = do(t, r, f.user, http.MethodPost, "/withdrawals/"+id+"/process", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, env.Success)

	rec, env = do(t, r, f.admin, http.MethodPost, "/withdrawals/"+id+"/process", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", env.Data.(map[string]any)["status"])
}

func TestHandler_ProcessGatewayFailure(t *testing.T) {
	f := newFixture(9000)
	r := newTestRouter(f)

	_, env := do(t, r, f.user, http.MethodPost, "/withdrawals", requestBody())
	id := env.Data.(map[string]any)["id"].(string)
	f.gateway.TransferErr = &psp.APIError{StatusCode: 400, Message: "Your balance is not enough"}

	rec, env := do(t, r, f.admin, http.MethodPost, "/withdrawals/"+id+"/process", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, apperror.KindGateway, env.Code)
	assert.NotContains(t, env.Message, "balance")
	assert.Equal(t, int64(9000), f.balance())
}

func TestHandler_ProcessTimeoutThenResolve(t *testing.T) {
	f := newFixture(9000)
	r := newTestRouter(f)

	_, env := do(t, r, f.user, http.MethodPost, "/withdrawals", requestBody())
	id := env.Data.(map[string]any)["id"].(string)
	f.gateway.TransferErr = psp.ErrTimeout

	rec, env := do(t, r, f.admin, http.MethodPost, "/withdrawals/"+id+"/process", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, apperror.KindGateway, env.Code)
	assert.Equal(t, int64(4000), f.balance())

	rec, env = do(t, r, f.admin, http.MethodPost, "/withdrawals/"+id+"/resolve", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", env.Data.(map[string]any)["status"])
	assert.Equal(t, int64(4000), f.balance())
}

func TestHandler_RequestValidation(t *testing.T) {
	f := newFixture(9000)
	r := newTestRouter(f)

	rec, env := do(t, r, f.user, http.MethodPost, "/withdrawals", `{"amount":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperror.KindValidation, env.Code)

	rec, _ = do(t, r, f.user, http.MethodGet, "/withdrawals/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
