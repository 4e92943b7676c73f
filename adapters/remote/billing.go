package remote

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/artpar/billgate/domain/billing"
)

// SubscriptionPayload is the wire form of a subscription served by the
// sibling service's internal lookup endpoint, together with the features
// derived from its plan.
type SubscriptionPayload struct {
	ID         string     `json:"id"`
	PartyID    string     `json:"party_id"`
	PartyType  string     `json:"party_type"`
	Active     bool       `json:"active"`
	PlanID     string     `json:"plan_id"`
	ProviderID string     `json:"provider_id"`
	Provider   string     `json:"provider"`
	StartDate  time.Time  `json:"start_date"`
	EndDate    *time.Time `json:"end_date,omitempty"`
	Status     string     `json:"status"`
	Features   []string   `json:"features"`
}

// ToDomain converts the wire form to the domain value.
func (p SubscriptionPayload) ToDomain() billing.Subscription {
	return billing.Subscription{
		ID:         p.ID,
		PartyID:    p.PartyID,
		PartyType:  billing.PartyType(p.PartyType),
		Active:     p.Active,
		PlanID:     p.PlanID,
		ProviderID: p.ProviderID,
		Provider:   p.Provider,
		StartDate:  p.StartDate,
		EndDate:    p.EndDate,
		Status:     p.Status,
	}
}

// PayloadFromDomain converts a domain subscription plus its feature list
// to the wire form.
func PayloadFromDomain(sub billing.Subscription, features []string) SubscriptionPayload {
	return SubscriptionPayload{
		ID:         sub.ID,
		PartyID:    sub.PartyID,
		PartyType:  string(sub.PartyType),
		Active:     sub.Active,
		PlanID:     sub.PlanID,
		ProviderID: sub.ProviderID,
		Provider:   sub.Provider,
		StartDate:  sub.StartDate,
		EndDate:    sub.EndDate,
		Status:     sub.Status,
		Features:   features,
	}
}

// BillingClient calls a sibling service's organization-subscription
// lookup over the signed transport.
type BillingClient struct {
	client *Client
}

// NewBillingClient creates a new sibling billing client.
func NewBillingClient(cfg ClientConfig) *BillingClient {
	return &BillingClient{client: NewClient(cfg)}
}

// GetOrganizationSubscription fetches an organization's current
// subscription and features. A 404 from the sibling means the
// organization has no subscription; that is returned as (nil, nil).
func (c *BillingClient) GetOrganizationSubscription(ctx context.Context, organizationID string) (*SubscriptionPayload, error) {
	path := "/internal/organizations/" + url.PathEscape(organizationID) + "/subscription"

	var payload SubscriptionPayload
	err := c.client.Get(ctx, path, &payload)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get organization subscription: %w", err)
	}
	return &payload, nil
}

// Registry owns per-host billing clients so repeated calls to the same
// sibling reuse one HTTP client. It is an explicitly constructed value
// handed to whoever needs it, never a package-level singleton.
type Registry struct {
	mu      sync.Mutex
	timeout time.Duration
	clients map[string]*BillingClient
}

// NewRegistry creates an empty client registry.
func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{
		timeout: timeout,
		clients: make(map[string]*BillingClient),
	}
}

// Client returns the client for a base URL, creating it on first use.
// Clients live for the registry's lifetime; there is no eviction.
func (r *Registry) Client(baseURL, secret string) *BillingClient {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[baseURL]; ok {
		return c
	}
	c := NewBillingClient(ClientConfig{
		BaseURL: baseURL,
		Secret:  secret,
		Timeout: r.timeout,
	})
	r.clients[baseURL] = c
	return c
}

// Len returns the number of cached clients (for testing).
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
