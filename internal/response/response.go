package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/newrelic/go-agent/v3/integrations/nrpkgerrors"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/Niiaks/Escrow/internal/apperror"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success bool          `json:"success"`
	Data    any           `json:"data,omitempty"`
	Message string        `json:"message,omitempty"`
	Code    apperror.Kind `json:"code,omitempty"`
}

// Page wraps a list result with its pagination window.
type Page[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func NewPage[T any](items []T, total, limit, offset int) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Total: total, Limit: limit, Offset: offset}
}

func write(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func JSON(w http.ResponseWriter, status int, data any) {
	write(w, status, Envelope{Success: true, Data: data})
}

func Message(w http.ResponseWriter, status int, message string, data any) {
	write(w, status, Envelope{Success: true, Data: data, Message: message})
}

// Error renders err with the status of its kind. Errors without an
// *apperror.Error in their chain are reported as internal errors. Gateway and
// internal failures are logged in full but rendered with a generic message.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		appErr = apperror.Internal(err)
	}

	status := apperror.HTTPStatus(appErr.Kind)
	log := zerolog.Ctx(r.Context())

	message := appErr.Message
	switch appErr.Kind {
	case apperror.KindGateway:
		message = apperror.Gateway(nil).Message
	case apperror.KindInternal:
		message = apperror.Internal(nil).Message
	}

	if status >= http.StatusInternalServerError {
		log.Error().Stack().Err(err).Str("code", string(appErr.Kind)).Msg("request failed")
		newrelic.FromContext(r.Context()).NoticeError(nrpkgerrors.Wrap(err))
	} else {
		log.Debug().Err(err).Str("code", string(appErr.Kind)).Msg("request rejected")
	}

	write(w, status, Envelope{Success: false, Message: message, Code: appErr.Kind})
}
