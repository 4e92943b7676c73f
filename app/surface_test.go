package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/billgate/adapters/clock"
	"github.com/artpar/billgate/adapters/memory"
	"github.com/artpar/billgate/domain/billing"
)

type fakeSubscriptionSource struct {
	sub   *billing.Subscription
	err   error
	calls int
}

func (f *fakeSubscriptionSource) GetActiveSubscription(ctx context.Context, organizationID string) (*billing.Subscription, error) {
	f.calls++
	return f.sub, f.err
}

type fakeFeatureSource struct {
	features []string
	err      error
	calls    int
}

func (f *fakeFeatureSource) GetFeatures(ctx context.Context, organizationID string) ([]string, error) {
	f.calls++
	return f.features, f.err
}

func newTestSurfacer(t *testing.T) (*Surfacer, *BillingCache) {
	t.Helper()
	fc := clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	bc := NewBillingCache(memory.NewCache(fc), zerolog.Nop(), nil)
	return NewSurfacer(bc, zerolog.Nop(), nil), bc
}

func TestSubscriptionResolver_MissThenHit(t *testing.T) {
	s, _ := newTestSurfacer(t)
	src := &fakeSubscriptionSource{sub: &billing.Subscription{
		ID:      "sub-1",
		PartyID: "org_1",
		Active:  true,
		Status:  "active",
	}}
	resolve := s.SubscriptionLocally(src)
	ctx := context.Background()

	sub, outcome := resolve(ctx, "org_1")
	if sub == nil || outcome != OutcomeMiss {
		t.Fatalf("first call: sub=%v outcome=%q, want value/miss", sub, outcome)
	}

	sub, outcome = resolve(ctx, "org_1")
	if sub == nil || outcome != OutcomeHit {
		t.Fatalf("second call: sub=%v outcome=%q, want value/hit", sub, outcome)
	}
	if src.calls != 1 {
		t.Errorf("source calls = %d, want 1 (second call served from cache)", src.calls)
	}
}

func TestSubscriptionResolver_AbsenceIsNotDegraded(t *testing.T) {
	s, _ := newTestSurfacer(t)
	resolve := s.SubscriptionLocally(&fakeSubscriptionSource{sub: nil})

	sub, outcome := resolve(context.Background(), "org_1")
	if sub != nil {
		t.Errorf("sub = %+v, want nil", sub)
	}
	if outcome != OutcomeMiss {
		t.Errorf("outcome = %q, want miss (no subscription is an answer)", outcome)
	}
}

func TestSubscriptionResolver_SourceFailureDegrades(t *testing.T) {
	s, _ := newTestSurfacer(t)
	src := &fakeSubscriptionSource{err: errors.New("store down")}
	resolve := s.SubscriptionLocally(src)

	sub, outcome := resolve(context.Background(), "org_1")
	if sub != nil {
		t.Errorf("sub = %+v, want nil on degradation", sub)
	}
	if outcome != OutcomeDegraded {
		t.Errorf("outcome = %q, want degraded", outcome)
	}
}

func TestSubscriptionResolver_EmptyPartySkipsEverything(t *testing.T) {
	s, _ := newTestSurfacer(t)
	src := &fakeSubscriptionSource{sub: &billing.Subscription{ID: "sub-1"}}
	resolve := s.SubscriptionLocally(src)

	sub, outcome := resolve(context.Background(), "")
	if sub != nil || outcome != OutcomeMiss {
		t.Errorf("sub=%v outcome=%q, want nil/miss", sub, outcome)
	}
	if src.calls != 0 {
		t.Errorf("source calls = %d, want 0 for empty party", src.calls)
	}
}

func TestFeaturesResolver_CachesEmptySet(t *testing.T) {
	s, _ := newTestSurfacer(t)
	src := &fakeFeatureSource{features: nil}
	resolve := s.FeaturesLocally(src)
	ctx := context.Background()

	set, outcome := resolve(ctx, "org_1")
	if len(set) != 0 || outcome != OutcomeMiss {
		t.Fatalf("first call: set=%v outcome=%q", set, outcome)
	}

	set, outcome = resolve(ctx, "org_1")
	if len(set) != 0 || outcome != OutcomeHit {
		t.Fatalf("second call: set=%v outcome=%q, want empty/hit", set, outcome)
	}
	if src.calls != 1 {
		t.Errorf("source calls = %d, want 1 (empty set was cached)", src.calls)
	}
}

func TestFeaturesResolver_SourceFailureDegradesToEmptySet(t *testing.T) {
	s, bc := newTestSurfacer(t)
	src := &fakeFeatureSource{err: errors.New("sibling unreachable")}
	resolve := s.FeaturesLocally(src)
	ctx := context.Background()

	set, outcome := resolve(ctx, "org_1")
	if set == nil || len(set) != 0 {
		t.Errorf("set = %v, want empty non-nil", set)
	}
	if outcome != OutcomeDegraded {
		t.Errorf("outcome = %q, want degraded", outcome)
	}

	// Degraded answers are not cached: a later call retries the source.
	if _, found, _ := bc.GetFeatures(ctx, "org_1"); found {
		t.Error("degraded empty set must not be written to the cache")
	}
	resolve(ctx, "org_1")
	if src.calls != 2 {
		t.Errorf("source calls = %d, want 2", src.calls)
	}
}

func TestFeaturesResolver_SetShape(t *testing.T) {
	s, _ := newTestSurfacer(t)
	src := &fakeFeatureSource{features: []string{"api", "exports", "api"}}
	resolve := s.FeaturesLocally(src)

	set, _ := resolve(context.Background(), "org_1")
	if len(set) != 2 {
		t.Errorf("set = %v, want deduplicated {api, exports}", set)
	}
	if _, ok := set["api"]; !ok {
		t.Error("missing api")
	}
	if _, ok := set["exports"]; !ok {
		t.Error("missing exports")
	}
}
