// Package payment provides payment provider adapters.
package payment

import (
	"context"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/product"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/artpar/billgate/domain/billing"
	"github.com/artpar/billgate/ports"
)

// ProviderStripe tags entities sourced from Stripe.
const ProviderStripe = "stripe"

// StripeConfig holds Stripe configuration.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

// StripeProvider resolves products and verifies webhooks against Stripe.
type StripeProvider struct {
	config StripeConfig
}

// NewStripeProvider creates a new Stripe provider.
func NewStripeProvider(config StripeConfig) *StripeProvider {
	stripe.Key = config.SecretKey
	return &StripeProvider{config: config}
}

// Name returns the provider name.
func (p *StripeProvider) Name() string {
	return ProviderStripe
}

// Resolve fetches a product by its Stripe ID. Plan and price events carry
// the product only by reference, so the processor calls this before
// extracting features.
func (p *StripeProvider) Resolve(ctx context.Context, productID string) (billing.Product, error) {
	params := &stripe.ProductParams{}
	params.Context = ctx

	prod, err := product.Get(productID, params)
	if err != nil {
		return billing.Product{}, err
	}
	return ProductFromStripe(prod), nil
}

// ParseWebhook verifies a webhook signature and returns the typed event.
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, signature, p.config.WebhookSecret)
}

// ProductFromStripe converts a Stripe product to the domain value.
func ProductFromStripe(prod *stripe.Product) billing.Product {
	if prod == nil {
		return billing.Product{}
	}
	return billing.Product{
		ID:          prod.ID,
		Name:        prod.Name,
		Description: prod.Description,
		Active:      prod.Active,
		Metadata:    prod.Metadata,
	}
}

// Ensure interface compliance.
var _ ports.ProductResolver = (*StripeProvider)(nil)
