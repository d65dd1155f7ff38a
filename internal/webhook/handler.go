package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/Niiaks/Escrow/internal/database"
	"github.com/Niiaks/Escrow/internal/kafka"
	"github.com/Niiaks/Escrow/internal/middleware"
	"github.com/Niiaks/Escrow/internal/model"
	"github.com/Niiaks/Escrow/internal/psp"
	"github.com/Niiaks/Escrow/pkg/constants"
	"github.com/Niiaks/Escrow/pkg/types"
)

// maxBodyBytes caps what we read from Paystack before verifying the signature.
const maxBodyBytes = 1 << 20

type Emitter interface {
	Emit(ctx context.Context, q database.Querier, evt model.Event) error
}

type QuerierProvider interface {
	Querier() database.Querier
}

type WebhookHandler struct {
	secret  string
	db      QuerierProvider
	emitter Emitter
}

func NewWebhookHandler(secret string, db QuerierProvider, emitter Emitter) *WebhookHandler {
	return &WebhookHandler{
		secret:  secret,
		db:      db,
		emitter: emitter,
	}
}

// HandleWebhook acknowledges Paystack as soon as a signed charge event is in
// the outbox. Settlement happens in the webhook worker, which re-verifies the
// charge with Paystack before touching any wallet.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	signature := r.Header.Get(constants.HeaderPaystackSignature)
	if signature == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read webhook body")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if !psp.VerifySignature(h.secret, body, signature) {
		logger.Warn().Msg("Invalid webhook signature")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var event types.PaystackWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		logger.Warn().Err(err).Msg("Malformed webhook payload")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if !strings.HasPrefix(event.Event, "charge.") || event.Data.Reference == "" {
		logger.Info().Str("event", event.Event).Msg("Ignoring webhook event")
		w.WriteHeader(http.StatusOK)
		return
	}

	err = h.emitter.Emit(ctx, h.db.Querier(), model.Event{
		Type:         kafka.EventWebhookReceived,
		PartitionKey: event.Data.Reference,
		Payload:      json.RawMessage(body),
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to store webhook in outbox")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	logger.Info().
		Str("event", event.Event).
		Str("reference", event.Data.Reference).
		Msg("Webhook stored in outbox")
	w.WriteHeader(http.StatusOK)
}
