package app

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/artpar/billgate/adapters/metrics"
	"github.com/artpar/billgate/adapters/remote"
	"github.com/artpar/billgate/domain/billing"
	"github.com/artpar/billgate/ports"
)

// Outcome classifies how a surfaced value was obtained. A degraded
// outcome means the source failed and the caller got the safe default;
// absence of a subscription is a miss-turned-hit, never degraded.
type Outcome string

const (
	OutcomeHit      Outcome = "hit"
	OutcomeMiss     Outcome = "miss"
	OutcomeDegraded Outcome = "degraded"
)

// SubscriptionResolver surfaces a party's current subscription. It never
// returns an error: failure degrades to nil so request paths that gate
// on subscription state stay available.
type SubscriptionResolver func(ctx context.Context, partyID string) (*billing.Subscription, Outcome)

// FeaturesResolver surfaces a party's feature set. It never returns an
// error: failure degrades to the empty set, which denies gated features
// without failing the request.
type FeaturesResolver func(ctx context.Context, partyID string) (map[string]struct{}, Outcome)

// Surfacer builds the resolvers request-path code consults. Each
// resolver checks the billing cache first, falls back to its source, and
// repopulates the cache on the way out.
type Surfacer struct {
	cache   *BillingCache
	logger  zerolog.Logger
	metrics *metrics.Collector
}

// NewSurfacer creates a resolver factory. metrics may be nil.
func NewSurfacer(cache *BillingCache, logger zerolog.Logger, m *metrics.Collector) *Surfacer {
	return &Surfacer{cache: cache, logger: logger, metrics: m}
}

// SubscriptionLocally resolves subscriptions from a local source,
// typically the entitlement service over the canonical store.
func (s *Surfacer) SubscriptionLocally(src ports.SubscriptionSource) SubscriptionResolver {
	return s.subscription("subscription_local", src.GetActiveSubscription)
}

// SubscriptionRemotely resolves subscriptions from a sibling service
// through the signed transport.
func (s *Surfacer) SubscriptionRemotely(registry *remote.Registry, baseURL, secret string) SubscriptionResolver {
	fetch := func(ctx context.Context, partyID string) (*billing.Subscription, error) {
		payload, err := registry.Client(baseURL, secret).GetOrganizationSubscription(ctx, partyID)
		if err != nil || payload == nil {
			return nil, err
		}
		sub := payload.ToDomain()
		return &sub, nil
	}
	return s.subscription("subscription_remote", fetch)
}

// FeaturesLocally resolves feature sets from a local source.
func (s *Surfacer) FeaturesLocally(src ports.FeatureSource) FeaturesResolver {
	return s.features("features_local", src.GetFeatures)
}

// FeaturesRemotely resolves feature sets from a sibling service. The
// sibling reports features alongside the subscription, so one call
// serves both.
func (s *Surfacer) FeaturesRemotely(registry *remote.Registry, baseURL, secret string) FeaturesResolver {
	fetch := func(ctx context.Context, partyID string) ([]string, error) {
		payload, err := registry.Client(baseURL, secret).GetOrganizationSubscription(ctx, partyID)
		if err != nil || payload == nil {
			return nil, err
		}
		return payload.Features, nil
	}
	return s.features("features_remote", fetch)
}

func (s *Surfacer) subscription(name string, fetch func(context.Context, string) (*billing.Subscription, error)) SubscriptionResolver {
	return func(ctx context.Context, partyID string) (*billing.Subscription, Outcome) {
		if partyID == "" {
			return nil, s.outcome(name, OutcomeMiss)
		}

		if sub, err := s.cache.GetSubscription(ctx, partyID); err == nil && sub != nil {
			return sub, s.outcome(name, OutcomeHit)
		} else if err != nil {
			s.logger.Warn().Err(err).Str("party", partyID).Msg("subscription cache read failed")
		}

		sub, err := fetch(ctx, partyID)
		if err != nil {
			s.logger.Error().Err(err).Str("party", partyID).Msg("subscription source failed, degrading to none")
			return nil, s.outcome(name, OutcomeDegraded)
		}
		if sub == nil {
			return nil, s.outcome(name, OutcomeMiss)
		}

		if err := s.cache.SetSubscription(ctx, partyID, *sub); err != nil {
			s.logger.Warn().Err(err).Str("party", partyID).Msg("subscription cache write failed")
		}
		return sub, s.outcome(name, OutcomeMiss)
	}
}

func (s *Surfacer) features(name string, fetch func(context.Context, string) ([]string, error)) FeaturesResolver {
	return func(ctx context.Context, partyID string) (map[string]struct{}, Outcome) {
		if partyID == "" {
			return map[string]struct{}{}, s.outcome(name, OutcomeMiss)
		}

		if set, found, err := s.cache.GetFeatures(ctx, partyID); err == nil && found {
			return set, s.outcome(name, OutcomeHit)
		} else if err != nil {
			s.logger.Warn().Err(err).Str("party", partyID).Msg("features cache read failed")
		}

		slugs, err := fetch(ctx, partyID)
		if err != nil {
			s.logger.Error().Err(err).Str("party", partyID).Msg("features source failed, degrading to empty set")
			return map[string]struct{}{}, s.outcome(name, OutcomeDegraded)
		}

		set := make(map[string]struct{}, len(slugs))
		for _, slug := range slugs {
			set[slug] = struct{}{}
		}

		// The empty set is cached too: "no features" is an answer worth
		// not recomputing for an hour.
		if err := s.cache.SetFeatures(ctx, partyID, set); err != nil {
			s.logger.Warn().Err(err).Str("party", partyID).Msg("features cache write failed")
		}
		return set, s.outcome(name, OutcomeMiss)
	}
}

func (s *Surfacer) outcome(resolver string, o Outcome) Outcome {
	if s.metrics != nil {
		s.metrics.SurfaceOutcomes.WithLabelValues(resolver, string(o)).Inc()
	}
	return o
}
