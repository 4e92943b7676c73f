package bootstrap

import (
	"context"
	"testing"

	"github.com/artpar/billgate/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Database: config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"},
		Cache:    config.CacheConfig{Mode: "memory"},
		Provider: config.ProviderConfig{
			Name:          "stripe",
			SecretKey:     "sk_test_x",
			WebhookSecret: "whsec_x",
		},
		Surfacing: config.SurfacingConfig{Mode: "local"},
		Logging:   config.LoggingConfig{Level: "error", Format: "json"},
	}
}

func TestNew_WiresEverything(t *testing.T) {
	a, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown()

	if a.Processor == nil {
		t.Error("Processor not wired")
	}
	if a.ResolveSubscription == nil || a.ResolveFeatures == nil {
		t.Error("resolvers not wired")
	}
	if a.HTTPServer == nil {
		t.Error("HTTP server not wired")
	}

	// Local surfacing against an empty store answers with safe defaults.
	sub, _ := a.ResolveSubscription(context.Background(), "org_1")
	if sub != nil {
		t.Errorf("empty store surfaced %+v", sub)
	}
	set, _ := a.ResolveFeatures(context.Background(), "org_1")
	if len(set) != 0 {
		t.Errorf("empty store surfaced features %v", set)
	}
}

func TestNew_RemoteSurfacing(t *testing.T) {
	cfg := testConfig()
	cfg.Surfacing.Mode = "remote"
	cfg.Surfacing.URL = "http://sibling.internal:8080"
	cfg.Surfacing.Secret = "shared"

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown()

	if a.registry == nil {
		t.Error("remote surfacing should create a client registry")
	}
}

func TestProviderHolder_Swap(t *testing.T) {
	a, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown()

	before := a.provider.get()
	a.provider.swap(before)
	if a.provider.get() != before {
		t.Error("swap lost the provider")
	}
}
