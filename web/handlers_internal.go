package web

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/artpar/billgate/adapters/remote"
	"github.com/artpar/billgate/ports"
)

// InternalHandler serves the signed service-to-service lookup endpoints.
// Siblings resolve another service's subscriptions through these instead
// of sharing a database.
type InternalHandler struct {
	subs     ports.SubscriptionSource
	features ports.FeatureSource
	secret   string
	clock    ports.Clock
	logger   zerolog.Logger
}

// NewInternalHandler creates a new internal lookup handler. secret is
// the shared HMAC key sibling requests are signed with.
func NewInternalHandler(subs ports.SubscriptionSource, features ports.FeatureSource, secret string, clock ports.Clock, logger zerolog.Logger) *InternalHandler {
	return &InternalHandler{
		subs:     subs,
		features: features,
		secret:   secret,
		clock:    clock,
		logger:   logger,
	}
}

// Routes returns the chi router for internal lookups. Mounted at /internal.
func (h *InternalHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.verifySignature)
	r.Get("/organizations/{orgID}/subscription", h.GetOrganizationSubscription)
	return r
}

// GetOrganizationSubscription returns an organization's current
// subscription with its plan features. 404 means the organization has
// no subscription.
func (h *InternalHandler) GetOrganizationSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := chi.URLParam(r, "orgID")

	sub, err := h.subs.GetActiveSubscription(ctx, orgID)
	if err != nil {
		h.logger.Error().Err(err).Str("organization", orgID).Msg("subscription lookup failed")
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	if sub == nil {
		http.Error(w, "no subscription", http.StatusNotFound)
		return
	}

	features, err := h.features.GetFeatures(ctx, orgID)
	if err != nil {
		h.logger.Error().Err(err).Str("organization", orgID).Msg("features lookup failed")
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(remote.PayloadFromDomain(*sub, features))
}

// verifySignature rejects requests not signed with the shared secret.
func (h *InternalHandler) verifySignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok := remote.Verify(
			h.secret,
			r.Method,
			r.URL.Path,
			r.Header.Get(remote.HeaderTimestamp),
			r.Header.Get(remote.HeaderSignature),
			h.clock.Now(),
		)
		if !ok {
			h.logger.Warn().
				Str("path", r.URL.Path).
				Str("remote", r.RemoteAddr).
				Msg("rejected unsigned internal request")
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
