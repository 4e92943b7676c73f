// Package billing provides billing value types and pure functions.
// All types are immutable values; the canonical store owns the
// authoritative copy of every entity defined here.
package billing

import "time"

// PartyType identifies what kind of party holds a subscription.
type PartyType string

const (
	PartyTypeUser         PartyType = "user"
	PartyTypeOrganization PartyType = "organization"
)

// Cadence is the billing interval of a plan.
type Cadence string

const (
	CadenceDaily   Cadence = "DAILY"
	CadenceWeekly  Cadence = "WEEKLY"
	CadenceMonthly Cadence = "MONTHLY"
	CadenceYearly  Cadence = "YEARLY"
)

// SessionStatus is the lifecycle state of a transactional artifact
// (checkout session, payment link, portal session).
type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "PENDING"
	SessionStatusCompleted SessionStatus = "COMPLETED"
	SessionStatusCancelled SessionStatus = "CANCELLED"
	SessionStatusFailed    SessionStatus = "FAILED"
	SessionStatusExpired   SessionStatus = "EXPIRED"
)

// Plan represents a purchasable plan (value type).
type Plan struct {
	ID                string
	Name              string
	Description       string
	Active            bool
	Price             int64 // minor currency units
	Currency          string
	Cadence           Cadence
	Features          []string
	ProviderID        string // external plan/price ID, unique per provider
	ProviderProductID string // external product the plan belongs to
	Provider          string // "stripe"
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Subscription represents a party's subscription (value type).
// Exactly one subscription maps to one external-provider subscription ID.
type Subscription struct {
	ID         string
	PartyID    string
	PartyType  PartyType
	Active     bool
	PlanID     string
	ProviderID string
	Provider   string
	StartDate  time.Time
	EndDate    *time.Time
	Status     string // provider-defined: "active", "trialing", "canceled", "paused", ...
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsActive returns true if the subscription grants access.
func (s Subscription) IsActive() bool {
	return s.Status == "active" || s.Status == "trialing"
}

// CheckoutSession is a short-lived checkout artifact (value type).
type CheckoutSession struct {
	ID         string
	PartyID    string
	ProviderID string
	Provider   string
	URL        string
	Status     SessionStatus
	ExpiresAt  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PaymentLink is a reusable payment URL (value type).
type PaymentLink struct {
	ID         string
	ProviderID string
	Provider   string
	URL        string
	Active     bool
	Amount     int64 // minor currency units, sum of line items
	Currency   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PortalSession is a short-lived billing portal artifact (value type).
type PortalSession struct {
	ID         string
	PartyID    string
	ProviderID string
	Provider   string
	URL        string
	ReturnURL  string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// Product is provider product data the processor resolves when handling
// plan and price events (value type).
type Product struct {
	ID          string
	Name        string
	Description string
	Active      bool
	Metadata    map[string]string
}

// WebhookEvent is a ledger entry recording a processed provider event.
// The idempotency key, when present, is unique across the ledger.
type WebhookEvent struct {
	ID              string
	ProviderEventID string
	IdempotencyKey  string // empty when the provider supplied none
	EventType       string
	Payload         []byte
	ProcessedAt     time.Time
}

// CacheSource records where a cached value was resolved from.
type CacheSource string

const (
	CacheSourceDB       CacheSource = "db"
	CacheSourceExternal CacheSource = "external"
)

// Entitlement is the resolved set of features and limits a party may use
// (computed value type). This is what gets cached and consulted at
// request time.
type Entitlement struct {
	Features []string         `json:"features"`
	Limits   map[string]int64 `json:"limits,omitempty"`
	SyncedAt time.Time        `json:"synced_at"`
	Source   CacheSource      `json:"source"`
}
