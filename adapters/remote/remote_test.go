package remote_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/artpar/billgate/adapters/remote"
)

func TestSignVerify(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	sig := remote.Sign("secret", "GET", "/internal/organizations/o1/subscription", now)

	if sig == "" {
		t.Fatal("empty signature")
	}

	ts := "1709294400" // now.Unix()
	if !remote.Verify("secret", "GET", "/internal/organizations/o1/subscription", ts, sig, now) {
		t.Error("valid signature rejected")
	}
	if remote.Verify("wrong", "GET", "/internal/organizations/o1/subscription", ts, sig, now) {
		t.Error("signature accepted with wrong secret")
	}
	if remote.Verify("secret", "POST", "/internal/organizations/o1/subscription", ts, sig, now) {
		t.Error("signature accepted for wrong method")
	}
	if remote.Verify("secret", "GET", "/other", ts, sig, now) {
		t.Error("signature accepted for wrong path")
	}
}

func TestVerify_RejectsStaleTimestamp(t *testing.T) {
	signed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	sig := remote.Sign("secret", "GET", "/p", signed)
	ts := "1709294400"

	now := signed.Add(remote.MaxClockSkew + time.Minute)
	if remote.Verify("secret", "GET", "/p", ts, sig, now) {
		t.Error("stale signature accepted")
	}

	if remote.Verify("secret", "GET", "/p", "not-a-number", sig, signed) {
		t.Error("garbage timestamp accepted")
	}
}

func TestBillingClient_GetOrganizationSubscription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The client must sign its requests.
		ts := r.Header.Get(remote.HeaderTimestamp)
		sig := r.Header.Get(remote.HeaderSignature)
		if !remote.Verify("secret", r.Method, r.URL.Path, ts, sig, time.Now().UTC()) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		json.NewEncoder(w).Encode(remote.SubscriptionPayload{
			ID:       "s-1",
			PartyID:  "o1",
			Active:   true,
			Status:   "active",
			Features: []string{"f1", "f2"},
		})
	}))
	defer srv.Close()

	c := remote.NewBillingClient(remote.ClientConfig{BaseURL: srv.URL, Secret: "secret"})

	payload, err := c.GetOrganizationSubscription(context.Background(), "o1")
	if err != nil {
		t.Fatalf("GetOrganizationSubscription: %v", err)
	}
	if payload == nil {
		t.Fatal("expected payload")
	}
	if payload.ID != "s-1" || len(payload.Features) != 2 {
		t.Errorf("unexpected payload: %+v", payload)
	}

	sub := payload.ToDomain()
	if !sub.IsActive() {
		t.Error("expected converted subscription to be active")
	}
}

func TestBillingClient_NotFoundMeansNoSubscription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := remote.NewBillingClient(remote.ClientConfig{BaseURL: srv.URL, Secret: "secret"})

	payload, err := c.GetOrganizationSubscription(context.Background(), "o1")
	if err != nil {
		t.Fatalf("expected nil error for 404, got %v", err)
	}
	if payload != nil {
		t.Errorf("expected nil payload for 404, got %+v", payload)
	}
}

func TestRegistry_ReusesClientsPerHost(t *testing.T) {
	reg := remote.NewRegistry(5 * time.Second)

	a := reg.Client("http://a.internal", "s")
	b := reg.Client("http://b.internal", "s")
	a2 := reg.Client("http://a.internal", "s")

	if a != a2 {
		t.Error("expected same client instance for same base URL")
	}
	if a == b {
		t.Error("expected distinct clients for distinct hosts")
	}
	if reg.Len() != 2 {
		t.Errorf("registry holds %d clients, want 2", reg.Len())
	}
}
