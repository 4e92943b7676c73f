package web

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v76"
)

// maxWebhookBody caps the webhook request body. Provider payloads are
// small; anything larger is garbage.
const maxWebhookBody = 1 << 20

// WebhookParser verifies a raw webhook body against its signature and
// returns the typed event.
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (stripe.Event, error)
}

// EventProcessor settles a verified provider event.
type EventProcessor interface {
	Handle(ctx context.Context, event *stripe.Event) error
}

// WebhookHandler receives provider webhook deliveries.
type WebhookHandler struct {
	parser    WebhookParser
	processor EventProcessor
	logger    zerolog.Logger
}

// NewWebhookHandler creates a new webhook ingress handler.
func NewWebhookHandler(parser WebhookParser, processor EventProcessor, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{parser: parser, processor: processor, logger: logger}
}

// Routes returns the chi router for webhook ingress. Mounted at /webhooks.
func (h *WebhookHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/stripe", h.HandleStripe)
	return r
}

// HandleStripe handles a Stripe webhook delivery. A failed handler
// returns 500 so Stripe redelivers; deduplication makes the redelivery
// safe.
func (h *WebhookHandler) HandleStripe(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to read webhook body")
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	event, err := h.parser.ParseWebhook(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn().Err(err).Msg("webhook signature verification failed")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	h.logger.Info().
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Msg("webhook received")

	if err := h.processor.Handle(r.Context(), &event); err != nil {
		http.Error(w, "event processing failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
