// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/billgate/domain/billing"
)

// Storage contract errors. Every store implementation returns these so
// callers can branch with errors.Is regardless of the backing adapter.
var (
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a uniqueness constraint is violated.
	ErrDuplicate = errors.New("duplicate")
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Cache Port
// -----------------------------------------------------------------------------

// Cache is the generic TTL key/value primitive the billing cache service
// is built over. Values are JSON-encoded bytes. A missing key is reported
// through the found flag, never through an error.
type Cache interface {
	// Get retrieves a value. found is false when the key is absent or expired.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set stores a value with a TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// -----------------------------------------------------------------------------
// Canonical Store Ports
// -----------------------------------------------------------------------------

// PlanStore persists plans in the canonical store.
type PlanStore interface {
	// Get retrieves a plan by internal ID.
	Get(ctx context.Context, id string) (billing.Plan, error)

	// GetByProviderID retrieves a plan by its external provider ID.
	GetByProviderID(ctx context.Context, providerID string) (billing.Plan, error)

	// ListByProduct returns plans attached to a provider product.
	ListByProduct(ctx context.Context, providerProductID string) ([]billing.Plan, error)

	// Create stores a new plan.
	Create(ctx context.Context, p billing.Plan) error

	// Update modifies a plan.
	Update(ctx context.Context, p billing.Plan) error

	// DeleteByProviderID removes a plan by its external provider ID.
	DeleteByProviderID(ctx context.Context, providerID string) error
}

// SubscriptionStore persists subscriptions in the canonical store.
type SubscriptionStore interface {
	// Get retrieves a subscription by internal ID.
	Get(ctx context.Context, id string) (billing.Subscription, error)

	// GetByProviderID retrieves a subscription by its external provider ID.
	GetByProviderID(ctx context.Context, providerID string) (billing.Subscription, error)

	// GetActiveByParty retrieves the current access-granting subscription
	// for a party. At most one is expected per party.
	GetActiveByParty(ctx context.Context, partyID string) (billing.Subscription, error)

	// Create stores a new subscription.
	Create(ctx context.Context, sub billing.Subscription) error

	// Update modifies a subscription.
	Update(ctx context.Context, sub billing.Subscription) error

	// DeleteByProviderID removes a subscription by its external provider ID.
	DeleteByProviderID(ctx context.Context, providerID string) error
}

// CheckoutSessionStore persists checkout sessions.
type CheckoutSessionStore interface {
	// GetByProviderID retrieves a session by its external provider ID.
	GetByProviderID(ctx context.Context, providerID string) (billing.CheckoutSession, error)

	// Create stores a new session.
	Create(ctx context.Context, cs billing.CheckoutSession) error

	// UpdateStatus transitions a session identified by provider ID.
	UpdateStatus(ctx context.Context, providerID string, status billing.SessionStatus, at time.Time) error
}

// PaymentLinkStore persists payment links.
type PaymentLinkStore interface {
	// GetByProviderID retrieves a link by its external provider ID.
	GetByProviderID(ctx context.Context, providerID string) (billing.PaymentLink, error)

	// Create stores a new link.
	Create(ctx context.Context, pl billing.PaymentLink) error

	// Update modifies a link.
	Update(ctx context.Context, pl billing.PaymentLink) error
}

// PortalSessionStore persists billing portal sessions.
type PortalSessionStore interface {
	// Create stores a new portal session.
	Create(ctx context.Context, ps billing.PortalSession) error
}

// WebhookEventStore is the processed-event ledger.
type WebhookEventStore interface {
	// GetByIdempotencyKey looks up a ledger entry by idempotency key.
	GetByIdempotencyKey(ctx context.Context, key string) (billing.WebhookEvent, error)

	// Create appends a ledger entry. A duplicate idempotency key yields
	// the store's duplicate error.
	Create(ctx context.Context, ev billing.WebhookEvent) error
}

// -----------------------------------------------------------------------------
// External Service Ports
// -----------------------------------------------------------------------------

// ProductResolver fetches provider product data referenced by plan and
// price events, which carry the product only by ID.
type ProductResolver interface {
	// Resolve fetches a product by its provider ID.
	Resolve(ctx context.Context, productID string) (billing.Product, error)
}

// SubscriptionSource is the local authoritative source the surfacing
// resolvers fall back to on a cache miss.
type SubscriptionSource interface {
	// GetActiveSubscription returns the party's current subscription,
	// or nil when none exists.
	GetActiveSubscription(ctx context.Context, organizationID string) (*billing.Subscription, error)
}

// FeatureSource resolves the feature slugs a party is entitled to.
type FeatureSource interface {
	// GetFeatures returns the party's feature slugs. An empty slice is a
	// valid answer meaning "subscribed to a plan with no features".
	GetFeatures(ctx context.Context, organizationID string) ([]string, error)
}
