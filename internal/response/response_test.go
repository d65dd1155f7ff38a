package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Niiaks/Escrow/internal/apperror"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusCreated, map[string]int{"amount": 10000})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":true,"data":{"amount":10000}}`, rec.Body.String())
}

func TestError_StatusByKind(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"validation", apperror.Validation("amount is required"), 400, "amount is required"},
		{"insufficient balance", apperror.New(apperror.KindInsufficientBalance, "insufficient balance"), 400, "insufficient balance"},
		{"unauthenticated", apperror.ErrUnauthenticated, 401, apperror.ErrUnauthenticated.Message},
		{"forbidden", apperror.ErrForbidden, 403, apperror.ErrForbidden.Message},
		{"not found", apperror.New(apperror.KindNotFound, "payment not found"), 404, "payment not found"},
		{"wrapped", errors.Join(errors.New("ctx"), apperror.New(apperror.KindNotFound, "wallet not found")), 404, "wallet not found"},
		{"plain error", errors.New("pq: connection refused"), 500, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			Error(rec, req, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			env := decode(t, rec)
			assert.False(t, env.Success)
			assert.Equal(t, tt.message, env.Message)
		})
	}
}

func TestError_SanitizesGatewayDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	Error(rec, req, apperror.Gateway(errors.New("paystack: Invalid key sk_live_123")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "sk_live_123")
	env := decode(t, rec)
	assert.Equal(t, apperror.KindGateway, env.Code)
}

func TestNewPage_NilItems(t *testing.T) {
	page := NewPage[string](nil, 0, 20, 0)
	b, err := json.Marshal(page)
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[],"total":0,"limit":20,"offset":0}`, string(b))
}
