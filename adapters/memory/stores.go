package memory

import (
	"context"
	"sync"
	"time"

	"github.com/artpar/billgate/domain/billing"
	"github.com/artpar/billgate/ports"
)

// PlanStore is an in-memory implementation of ports.PlanStore.
type PlanStore struct {
	mu    sync.RWMutex
	plans map[string]billing.Plan // keyed by internal ID
}

// NewPlanStore creates a new in-memory plan store.
func NewPlanStore() *PlanStore {
	return &PlanStore{plans: make(map[string]billing.Plan)}
}

// Get retrieves a plan by internal ID.
func (s *PlanStore) Get(ctx context.Context, id string) (billing.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[id]
	if !ok {
		return billing.Plan{}, ports.ErrNotFound
	}
	return p, nil
}

// GetByProviderID retrieves a plan by external provider ID.
func (s *PlanStore) GetByProviderID(ctx context.Context, providerID string) (billing.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.plans {
		if p.ProviderID == providerID {
			return p, nil
		}
	}
	return billing.Plan{}, ports.ErrNotFound
}

// ListByProduct returns plans attached to a provider product.
func (s *PlanStore) ListByProduct(ctx context.Context, providerProductID string) ([]billing.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []billing.Plan
	for _, p := range s.plans {
		if p.ProviderProductID == providerProductID {
			out = append(out, p)
		}
	}
	return out, nil
}

// Create stores a new plan.
func (s *PlanStore) Create(ctx context.Context, p billing.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.plans {
		if existing.ProviderID == p.ProviderID {
			return ports.ErrDuplicate
		}
	}
	s.plans[p.ID] = p
	return nil
}

// Update modifies a plan.
func (s *PlanStore) Update(ctx context.Context, p billing.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[p.ID]; !ok {
		return ports.ErrNotFound
	}
	s.plans[p.ID] = p
	return nil
}

// DeleteByProviderID removes a plan by external provider ID.
func (s *PlanStore) DeleteByProviderID(ctx context.Context, providerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.plans {
		if p.ProviderID == providerID {
			delete(s.plans, id)
			return nil
		}
	}
	return ports.ErrNotFound
}

// SubscriptionStore is an in-memory implementation of ports.SubscriptionStore.
type SubscriptionStore struct {
	mu   sync.RWMutex
	subs map[string]billing.Subscription
}

// NewSubscriptionStore creates a new in-memory subscription store.
func NewSubscriptionStore() *SubscriptionStore {
	return &SubscriptionStore{subs: make(map[string]billing.Subscription)}
}

// Get retrieves a subscription by internal ID.
func (s *SubscriptionStore) Get(ctx context.Context, id string) (billing.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	if !ok {
		return billing.Subscription{}, ports.ErrNotFound
	}
	return sub, nil
}

// GetByProviderID retrieves a subscription by external provider ID.
func (s *SubscriptionStore) GetByProviderID(ctx context.Context, providerID string) (billing.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if sub.ProviderID == providerID {
			return sub, nil
		}
	}
	return billing.Subscription{}, ports.ErrNotFound
}

// GetActiveByParty retrieves the current access-granting subscription.
func (s *SubscriptionStore) GetActiveByParty(ctx context.Context, partyID string) (billing.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best billing.Subscription
	found := false
	for _, sub := range s.subs {
		if sub.PartyID != partyID || !sub.IsActive() {
			continue
		}
		if !found || sub.CreatedAt.After(best.CreatedAt) {
			best = sub
			found = true
		}
	}
	if !found {
		return billing.Subscription{}, ports.ErrNotFound
	}
	return best, nil
}

// Create stores a new subscription.
func (s *SubscriptionStore) Create(ctx context.Context, sub billing.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.subs {
		if existing.ProviderID == sub.ProviderID {
			return ports.ErrDuplicate
		}
	}
	s.subs[sub.ID] = sub
	return nil
}

// Update modifies a subscription.
func (s *SubscriptionStore) Update(ctx context.Context, sub billing.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub.ID]; !ok {
		return ports.ErrNotFound
	}
	s.subs[sub.ID] = sub
	return nil
}

// DeleteByProviderID removes a subscription by external provider ID.
func (s *SubscriptionStore) DeleteByProviderID(ctx context.Context, providerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sub := range s.subs {
		if sub.ProviderID == providerID {
			delete(s.subs, id)
			return nil
		}
	}
	return ports.ErrNotFound
}

// CheckoutSessionStore is an in-memory implementation of
// ports.CheckoutSessionStore.
type CheckoutSessionStore struct {
	mu       sync.RWMutex
	sessions map[string]billing.CheckoutSession // keyed by provider ID
}

// NewCheckoutSessionStore creates a new in-memory checkout session store.
func NewCheckoutSessionStore() *CheckoutSessionStore {
	return &CheckoutSessionStore{sessions: make(map[string]billing.CheckoutSession)}
}

// GetByProviderID retrieves a session by provider ID.
func (s *CheckoutSessionStore) GetByProviderID(ctx context.Context, providerID string) (billing.CheckoutSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.sessions[providerID]
	if !ok {
		return billing.CheckoutSession{}, ports.ErrNotFound
	}
	return cs, nil
}

// Create stores a new session.
func (s *CheckoutSessionStore) Create(ctx context.Context, cs billing.CheckoutSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[cs.ProviderID]; ok {
		return ports.ErrDuplicate
	}
	s.sessions[cs.ProviderID] = cs
	return nil
}

// UpdateStatus transitions a session identified by provider ID.
func (s *CheckoutSessionStore) UpdateStatus(ctx context.Context, providerID string, status billing.SessionStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.sessions[providerID]
	if !ok {
		return ports.ErrNotFound
	}
	cs.Status = status
	cs.UpdatedAt = at
	s.sessions[providerID] = cs
	return nil
}

// PaymentLinkStore is an in-memory implementation of ports.PaymentLinkStore.
type PaymentLinkStore struct {
	mu    sync.RWMutex
	links map[string]billing.PaymentLink // keyed by provider ID
}

// NewPaymentLinkStore creates a new in-memory payment link store.
func NewPaymentLinkStore() *PaymentLinkStore {
	return &PaymentLinkStore{links: make(map[string]billing.PaymentLink)}
}

// GetByProviderID retrieves a link by provider ID.
func (s *PaymentLinkStore) GetByProviderID(ctx context.Context, providerID string) (billing.PaymentLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pl, ok := s.links[providerID]
	if !ok {
		return billing.PaymentLink{}, ports.ErrNotFound
	}
	return pl, nil
}

// Create stores a new link.
func (s *PaymentLinkStore) Create(ctx context.Context, pl billing.PaymentLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[pl.ProviderID]; ok {
		return ports.ErrDuplicate
	}
	s.links[pl.ProviderID] = pl
	return nil
}

// Update modifies a link.
func (s *PaymentLinkStore) Update(ctx context.Context, pl billing.PaymentLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[pl.ProviderID]; !ok {
		return ports.ErrNotFound
	}
	s.links[pl.ProviderID] = pl
	return nil
}

// PortalSessionStore is an in-memory implementation of
// ports.PortalSessionStore.
type PortalSessionStore struct {
	mu       sync.RWMutex
	sessions []billing.PortalSession
}

// NewPortalSessionStore creates a new in-memory portal session store.
func NewPortalSessionStore() *PortalSessionStore {
	return &PortalSessionStore{}
}

// Create stores a new portal session.
func (s *PortalSessionStore) Create(ctx context.Context, ps billing.PortalSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, ps)
	return nil
}

// List returns all stored sessions (for testing).
func (s *PortalSessionStore) List() []billing.PortalSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]billing.PortalSession, len(s.sessions))
	copy(out, s.sessions)
	return out
}

// WebhookEventStore is an in-memory implementation of
// ports.WebhookEventStore.
type WebhookEventStore struct {
	mu     sync.RWMutex
	events []billing.WebhookEvent
}

// NewWebhookEventStore creates a new in-memory webhook ledger.
func NewWebhookEventStore() *WebhookEventStore {
	return &WebhookEventStore{}
}

// GetByIdempotencyKey looks up a ledger entry by idempotency key.
func (s *WebhookEventStore) GetByIdempotencyKey(ctx context.Context, key string) (billing.WebhookEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ev := range s.events {
		if ev.IdempotencyKey != "" && ev.IdempotencyKey == key {
			return ev, nil
		}
	}
	return billing.WebhookEvent{}, ports.ErrNotFound
}

// Create appends a ledger entry.
func (s *WebhookEventStore) Create(ctx context.Context, ev billing.WebhookEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.IdempotencyKey != "" {
		for _, existing := range s.events {
			if existing.IdempotencyKey == ev.IdempotencyKey {
				return ports.ErrDuplicate
			}
		}
	}
	s.events = append(s.events, ev)
	return nil
}

// Count returns the ledger length (for testing).
func (s *WebhookEventStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Ensure interface compliance.
var (
	_ ports.PlanStore            = (*PlanStore)(nil)
	_ ports.SubscriptionStore    = (*SubscriptionStore)(nil)
	_ ports.CheckoutSessionStore = (*CheckoutSessionStore)(nil)
	_ ports.PaymentLinkStore     = (*PaymentLinkStore)(nil)
	_ ports.PortalSessionStore   = (*PortalSessionStore)(nil)
	_ ports.WebhookEventStore    = (*WebhookEventStore)(nil)
)
