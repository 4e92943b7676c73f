// Package app contains the billing services: the webhook event
// processor, the billing cache, and the entitlement surfacing resolvers.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/billgate/adapters/metrics"
	"github.com/artpar/billgate/domain/billing"
	"github.com/artpar/billgate/ports"
)

// CacheTTL applies to every namespace in this subsystem.
const CacheTTL = time.Hour

// Cache key namespaces.
const (
	nsSubscription = "subscription:"
	nsPlan         = "plan:"
	nsFeatures     = "features:"
	nsEntitlement  = "entitlement:"
)

// BillingCache provides typed accessors over the generic cache
// primitive. It holds only derived, expiring copies: every read path
// must tolerate a cold cache, and population is always the caller's
// responsibility.
type BillingCache struct {
	cache   ports.Cache
	logger  zerolog.Logger
	metrics *metrics.Collector
}

// NewBillingCache creates a new billing cache service. metrics may be nil.
func NewBillingCache(cache ports.Cache, logger zerolog.Logger, m *metrics.Collector) *BillingCache {
	return &BillingCache{
		cache:   cache,
		logger:  logger,
		metrics: m,
	}
}

// GetSubscription returns the cached subscription for a party, or nil on
// a miss.
func (b *BillingCache) GetSubscription(ctx context.Context, partyID string) (*billing.Subscription, error) {
	var sub billing.Subscription
	found, err := b.get(ctx, "subscription", nsSubscription+partyID, &sub)
	if err != nil || !found {
		return nil, err
	}
	return &sub, nil
}

// SetSubscription caches a party's subscription.
func (b *BillingCache) SetSubscription(ctx context.Context, partyID string, sub billing.Subscription) error {
	return b.set(ctx, nsSubscription+partyID, sub)
}

// DeleteSubscription invalidates a party's cached subscription.
func (b *BillingCache) DeleteSubscription(ctx context.Context, partyID string) error {
	return b.cache.Delete(ctx, nsSubscription+partyID)
}

// GetPlan returns a cached plan, or nil on a miss.
func (b *BillingCache) GetPlan(ctx context.Context, planID string) (*billing.Plan, error) {
	var p billing.Plan
	found, err := b.get(ctx, "plan", nsPlan+planID, &p)
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}

// SetPlan caches a plan.
func (b *BillingCache) SetPlan(ctx context.Context, planID string, p billing.Plan) error {
	return b.set(ctx, nsPlan+planID, p)
}

// DeletePlan invalidates a cached plan.
func (b *BillingCache) DeletePlan(ctx context.Context, planID string) error {
	return b.cache.Delete(ctx, nsPlan+planID)
}

// GetFeatures returns a party's cached feature set. found distinguishes
// a cached empty set from a never-cached party.
func (b *BillingCache) GetFeatures(ctx context.Context, partyID string) (map[string]struct{}, bool, error) {
	var slugs []string
	found, err := b.get(ctx, "features", nsFeatures+partyID, &slugs)
	if err != nil || !found {
		return nil, false, err
	}

	set := make(map[string]struct{}, len(slugs))
	for _, s := range slugs {
		set[s] = struct{}{}
	}
	return set, true, nil
}

// SetFeatures caches a party's feature set. The set is stored as a
// sorted array; Get reconstructs the set shape.
func (b *BillingCache) SetFeatures(ctx context.Context, partyID string, features map[string]struct{}) error {
	slugs := make([]string, 0, len(features))
	for s := range features {
		slugs = append(slugs, s)
	}
	sort.Strings(slugs)
	return b.set(ctx, nsFeatures+partyID, slugs)
}

// DeleteFeatures invalidates a party's cached feature set.
func (b *BillingCache) DeleteFeatures(ctx context.Context, partyID string) error {
	return b.cache.Delete(ctx, nsFeatures+partyID)
}

// GetEntitlement returns a party's cached entitlement, or nil on a miss.
// SyncedAt is always handed to the caller as a timestamp type, whatever
// shape it took inside the cache.
func (b *BillingCache) GetEntitlement(ctx context.Context, partyID string) (*billing.Entitlement, error) {
	var rec entitlementRecord
	found, err := b.get(ctx, "entitlement", nsEntitlement+partyID, &rec)
	if err != nil || !found {
		return nil, err
	}
	ent := billing.Entitlement(rec)
	return &ent, nil
}

// SetEntitlement caches a party's entitlement.
func (b *BillingCache) SetEntitlement(ctx context.Context, partyID string, ent billing.Entitlement) error {
	return b.set(ctx, nsEntitlement+partyID, ent)
}

// DeleteEntitlement invalidates a party's cached entitlement. Consumers
// call this when a subscription change makes the cached value wrong.
func (b *BillingCache) DeleteEntitlement(ctx context.Context, partyID string) error {
	return b.cache.Delete(ctx, nsEntitlement+partyID)
}

func (b *BillingCache) get(ctx context.Context, namespace, key string, out any) (bool, error) {
	raw, found, err := b.cache.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if !found {
		b.count(namespace, "miss")
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	b.count(namespace, "hit")
	return true, nil
}

func (b *BillingCache) set(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := b.cache.Set(ctx, key, raw, CacheTTL); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

func (b *BillingCache) count(namespace, result string) {
	if b.metrics != nil {
		b.metrics.CacheOps.WithLabelValues(namespace, result).Inc()
	}
}

// entitlementRecord is the cache wire form of billing.Entitlement. Its
// synced_at field tolerates both RFC3339 strings and unix-second numbers
// so entries written by older serializers still decode to a timestamp.
type entitlementRecord billing.Entitlement

func (r *entitlementRecord) UnmarshalJSON(data []byte) error {
	var raw struct {
		Features []string         `json:"features"`
		Limits   map[string]int64 `json:"limits"`
		SyncedAt json.RawMessage  `json:"synced_at"`
		Source   string           `json:"source"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.Features = raw.Features
	r.Limits = raw.Limits
	r.Source = billing.CacheSource(raw.Source)

	if len(raw.SyncedAt) == 0 || string(raw.SyncedAt) == "null" {
		r.SyncedAt = time.Time{}
		return nil
	}

	var s string
	if err := json.Unmarshal(raw.SyncedAt, &s); err == nil {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("parse synced_at %q: %w", s, err)
		}
		r.SyncedAt = t
		return nil
	}

	var unix int64
	if err := json.Unmarshal(raw.SyncedAt, &unix); err != nil {
		return fmt.Errorf("parse synced_at %s", raw.SyncedAt)
	}
	r.SyncedAt = time.Unix(unix, 0).UTC()
	return nil
}
