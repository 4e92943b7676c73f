package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/artpar/billgate/domain/billing"
	"github.com/artpar/billgate/ports"
)

// EntitlementService answers subscription and feature questions from the
// canonical store. It is the local authority the surfacing resolvers and
// the internal lookup endpoint are built on.
type EntitlementService struct {
	subs   ports.SubscriptionStore
	plans  ports.PlanStore
	logger zerolog.Logger
}

var (
	_ ports.SubscriptionSource = (*EntitlementService)(nil)
	_ ports.FeatureSource      = (*EntitlementService)(nil)
)

// NewEntitlementService creates a new entitlement service.
func NewEntitlementService(subs ports.SubscriptionStore, plans ports.PlanStore, logger zerolog.Logger) *EntitlementService {
	return &EntitlementService{subs: subs, plans: plans, logger: logger}
}

// GetActiveSubscription returns the party's current access-granting
// subscription, or nil when the party has none. Absence is an answer,
// not an error.
func (s *EntitlementService) GetActiveSubscription(ctx context.Context, organizationID string) (*billing.Subscription, error) {
	sub, err := s.subs.GetActiveByParty(ctx, organizationID)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active subscription for %s: %w", organizationID, err)
	}
	return &sub, nil
}

// GetFeatures returns the feature slugs of the party's active plan. A
// party with no subscription, or whose subscription references no known
// plan, has no features.
func (s *EntitlementService) GetFeatures(ctx context.Context, organizationID string) ([]string, error) {
	sub, err := s.GetActiveSubscription(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	if sub == nil || sub.PlanID == "" {
		return nil, nil
	}

	plan, err := s.plans.Get(ctx, sub.PlanID)
	if errors.Is(err, ports.ErrNotFound) {
		s.logger.Warn().
			Str("organization", organizationID).
			Str("plan", sub.PlanID).
			Msg("active subscription references unknown plan")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get plan %s: %w", sub.PlanID, err)
	}
	return plan.Features, nil
}
