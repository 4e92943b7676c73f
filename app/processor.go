package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v76"

	"github.com/artpar/billgate/adapters/metrics"
	"github.com/artpar/billgate/domain/billing"
	"github.com/artpar/billgate/domain/feature"
	"github.com/artpar/billgate/ports"
)

// portalSessionWindow is the fixed expiry applied to billing portal
// sessions, computed from the event's creation timestamp.
const portalSessionWindow = 5 * time.Minute

// Subscription metadata keys identifying the party that owns it.
const (
	metaOrganizationID = "organization_id"
	metaUserID         = "user_id"
)

type handlerFunc func(ctx context.Context, event *stripe.Event) error

// Processor maps provider webhook events onto canonical-store mutations.
// Processing is idempotent per idempotency key and at-least-once per
// mutation: the ledger entry is only written after a handler succeeds,
// so a mid-handler failure leaves the event eligible for provider retry
// with any already-committed sub-operations still applied.
type Processor struct {
	plans     ports.PlanStore
	subs      ports.SubscriptionStore
	checkouts ports.CheckoutSessionStore
	links     ports.PaymentLinkStore
	portals   ports.PortalSessionStore
	ledger    ports.WebhookEventStore
	products  ports.ProductResolver
	idGen     ports.IDGenerator
	clock     ports.Clock
	logger    zerolog.Logger
	metrics   *metrics.Collector
	provider  string

	handlers map[string]handlerFunc
}

// NewProcessor creates a new webhook event processor. metrics may be nil.
func NewProcessor(
	plans ports.PlanStore,
	subs ports.SubscriptionStore,
	checkouts ports.CheckoutSessionStore,
	links ports.PaymentLinkStore,
	portals ports.PortalSessionStore,
	ledger ports.WebhookEventStore,
	products ports.ProductResolver,
	idGen ports.IDGenerator,
	clock ports.Clock,
	logger zerolog.Logger,
	m *metrics.Collector,
) *Processor {
	p := &Processor{
		plans:     plans,
		subs:      subs,
		checkouts: checkouts,
		links:     links,
		portals:   portals,
		ledger:    ledger,
		products:  products,
		idGen:     idGen,
		clock:     clock,
		logger:    logger,
		metrics:   m,
		provider:  "stripe",
	}

	// One handler per provider event family. Adding an event type means
	// adding an entry here, not growing a conditional.
	p.handlers = map[string]handlerFunc{
		"billing_portal.session.created": p.handlePortalSessionCreated,
		"checkout.session.completed":     p.handleCheckoutCompleted,
		"checkout.session.expired":       p.handleCheckoutExpired,
		"payment_link.created":           p.handlePaymentLinkUpsert,
		"payment_link.updated":           p.handlePaymentLinkUpsert,
		"plan.created":                   p.handlePlanUpsert,
		"plan.updated":                   p.handlePlanUpsert,
		"plan.deleted":                   p.handlePlanDeleted,
		"product.created":                p.handleProductUpsert,
		"product.updated":                p.handleProductUpsert,
		"price.created":                  p.handlePriceUpsert,
		"price.updated":                  p.handlePriceUpsert,
		"customer.subscription.created":  p.handleSubscriptionUpsert,
		"customer.subscription.updated":  p.handleSubscriptionUpsert,
		"customer.subscription.deleted":  p.handleSubscriptionDeleted,
		"customer.subscription.paused":   p.handleSubscriptionPaused,
		"customer.subscription.resumed":  p.handleSubscriptionResumed,
	}

	return p
}

// Handle processes a single provider event. A nil error means the event
// is settled: handled, deduplicated, or ignored as unrecognized. A
// non-nil error means no ledger entry was written and the provider
// should redeliver.
func (p *Processor) Handle(ctx context.Context, event *stripe.Event) error {
	eventType := string(event.Type)
	idemKey := idempotencyKey(event)

	if idemKey != "" {
		_, err := p.ledger.GetByIdempotencyKey(ctx, idemKey)
		switch {
		case err == nil:
			p.logger.Info().
				Str("event_id", event.ID).
				Str("event_type", eventType).
				Str("idempotency_key", idemKey).
				Msg("event already processed, skipping")
			p.count(eventType, metrics.ResultDeduplicated)
			return nil
		case !errors.Is(err, ports.ErrNotFound):
			return fmt.Errorf("ledger lookup: %w", err)
		}
	}

	handler, known := p.handlers[eventType]
	if !known {
		p.logger.Debug().
			Str("event_id", event.ID).
			Str("event_type", eventType).
			Msg("unhandled event type, ignoring")
		p.count(eventType, metrics.ResultIgnored)
	} else {
		start := p.clock.Now()
		if err := handler(ctx, event); err != nil {
			p.logger.Error().Err(err).
				Str("event_id", event.ID).
				Str("event_type", eventType).
				Msg("event handler failed")
			p.count(eventType, metrics.ResultFailed)
			return err
		}
		if p.metrics != nil {
			p.metrics.EventDuration.WithLabelValues(eventType).
				Observe(p.clock.Now().Sub(start).Seconds())
		}
		p.count(eventType, metrics.ResultProcessed)
	}

	entry := billing.WebhookEvent{
		ID:              p.idGen.New(),
		ProviderEventID: event.ID,
		IdempotencyKey:  idemKey,
		EventType:       eventType,
		Payload:         event.Data.Raw,
		ProcessedAt:     p.clock.Now(),
	}
	if err := p.ledger.Create(ctx, entry); err != nil {
		if errors.Is(err, ports.ErrDuplicate) {
			// A concurrent delivery won the ledger race after our
			// check; the mutation already ran here, so treat as settled.
			p.logger.Warn().
				Str("event_id", event.ID).
				Str("idempotency_key", idemKey).
				Msg("ledger entry already written by concurrent delivery")
			if p.metrics != nil {
				p.metrics.LedgerConflicts.Inc()
			}
			return nil
		}
		return fmt.Errorf("write ledger entry: %w", err)
	}

	return nil
}

// EventTypes returns the event types the processor handles (for docs and
// diagnostics).
func (p *Processor) EventTypes() []string {
	types := make([]string, 0, len(p.handlers))
	for t := range p.handlers {
		types = append(types, t)
	}
	return types
}

func (p *Processor) count(eventType, result string) {
	if p.metrics != nil {
		p.metrics.EventsTotal.WithLabelValues(eventType, result).Inc()
	}
}

func idempotencyKey(event *stripe.Event) string {
	if event.Request != nil && event.Request.IdempotencyKey != "" {
		return event.Request.IdempotencyKey
	}
	return ""
}

// -----------------------------------------------------------------------------
// Portal sessions
// -----------------------------------------------------------------------------

func (p *Processor) handlePortalSessionCreated(ctx context.Context, event *stripe.Event) error {
	var sess stripe.BillingPortalSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("decode portal session: %w", err)
	}

	created := time.Unix(event.Created, 0).UTC()
	ps := billing.PortalSession{
		ID:         p.idGen.New(),
		PartyID:    sess.Customer,
		ProviderID: sess.ID,
		Provider:   p.provider,
		URL:        sess.URL,
		ReturnURL:  sess.ReturnURL,
		ExpiresAt:  created.Add(portalSessionWindow),
		CreatedAt:  created,
	}
	if err := p.portals.Create(ctx, ps); err != nil {
		return fmt.Errorf("create portal session: %w", err)
	}

	p.logger.Info().
		Str("portal_session", sess.ID).
		Time("expires_at", ps.ExpiresAt).
		Msg("billing portal session recorded")
	return nil
}

// -----------------------------------------------------------------------------
// Checkout sessions
// -----------------------------------------------------------------------------

func (p *Processor) handleCheckoutCompleted(ctx context.Context, event *stripe.Event) error {
	return p.transitionCheckout(ctx, event, billing.SessionStatusCompleted)
}

func (p *Processor) handleCheckoutExpired(ctx context.Context, event *stripe.Event) error {
	return p.transitionCheckout(ctx, event, billing.SessionStatusFailed)
}

func (p *Processor) transitionCheckout(ctx context.Context, event *stripe.Event, status billing.SessionStatus) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("decode checkout session: %w", err)
	}

	err := p.checkouts.UpdateStatus(ctx, sess.ID, status, p.clock.Now())
	if errors.Is(err, ports.ErrNotFound) {
		// Session was never recorded here; create it in its final state
		// so the artifact is queryable.
		cs := billing.CheckoutSession{
			ID:         p.idGen.New(),
			PartyID:    customerRefID(sess.Customer),
			ProviderID: sess.ID,
			Provider:   p.provider,
			URL:        sess.URL,
			Status:     status,
			ExpiresAt:  time.Unix(sess.ExpiresAt, 0).UTC(),
			CreatedAt:  time.Unix(event.Created, 0).UTC(),
		}
		if createErr := p.checkouts.Create(ctx, cs); createErr != nil {
			return fmt.Errorf("create checkout session: %w", createErr)
		}
		err = nil
	}
	if err != nil {
		return fmt.Errorf("update checkout session %s: %w", sess.ID, err)
	}

	p.logger.Info().
		Str("checkout_session", sess.ID).
		Str("status", string(status)).
		Msg("checkout session transitioned")
	return nil
}

// -----------------------------------------------------------------------------
// Payment links
// -----------------------------------------------------------------------------

func (p *Processor) handlePaymentLinkUpsert(ctx context.Context, event *stripe.Event) error {
	var link stripe.PaymentLink
	if err := json.Unmarshal(event.Data.Raw, &link); err != nil {
		return fmt.Errorf("decode payment link: %w", err)
	}

	// The amount field is not trusted from the payload; it is recomputed
	// from line items and sums to 0 when none are present.
	var amount int64
	if link.LineItems != nil {
		for _, item := range link.LineItems.Data {
			if item != nil {
				amount += item.AmountTotal
			}
		}
	}

	pl := billing.PaymentLink{
		ProviderID: link.ID,
		Provider:   p.provider,
		URL:        link.URL,
		Active:     link.Active,
		Amount:     amount,
		Currency:   string(link.Currency),
	}

	existing, err := p.links.GetByProviderID(ctx, link.ID)
	switch {
	case errors.Is(err, ports.ErrNotFound):
		pl.ID = p.idGen.New()
		pl.CreatedAt = p.clock.Now()
		if err := p.links.Create(ctx, pl); err != nil {
			return fmt.Errorf("create payment link: %w", err)
		}
	case err != nil:
		return fmt.Errorf("lookup payment link: %w", err)
	default:
		pl.ID = existing.ID
		pl.CreatedAt = existing.CreatedAt
		if err := p.links.Update(ctx, pl); err != nil {
			return fmt.Errorf("update payment link: %w", err)
		}
	}

	p.logger.Info().
		Str("payment_link", link.ID).
		Int64("amount", amount).
		Msg("payment link stored")
	return nil
}

// -----------------------------------------------------------------------------
// Plans, products, prices
// -----------------------------------------------------------------------------

func (p *Processor) handlePlanUpsert(ctx context.Context, event *stripe.Event) error {
	var plan stripe.Plan
	if err := json.Unmarshal(event.Data.Raw, &plan); err != nil {
		return fmt.Errorf("decode plan: %w", err)
	}

	// A plan without its product or amount cannot be represented; fail
	// the event so the provider redelivers once the payload is sane.
	if plan.Product == nil || plan.Product.ID == "" {
		return fmt.Errorf("plan %s has no product reference", plan.ID)
	}
	if !fieldPresent(event.Data.Raw, "amount") {
		return fmt.Errorf("plan %s has no amount", plan.ID)
	}

	product, err := p.products.Resolve(ctx, plan.Product.ID)
	if err != nil {
		return fmt.Errorf("resolve product %s: %w", plan.Product.ID, err)
	}

	name := plan.Nickname
	if name == "" {
		name = product.Name
	}

	return p.upsertPlan(ctx, billing.Plan{
		Name:              name,
		Description:       product.Description,
		Active:            plan.Active,
		Price:             plan.Amount,
		Currency:          string(plan.Currency),
		Cadence:           cadenceFromInterval(string(plan.Interval)),
		Features:          feature.Extract(product.Metadata),
		ProviderID:        plan.ID,
		ProviderProductID: product.ID,
	})
}

func (p *Processor) handlePlanDeleted(ctx context.Context, event *stripe.Event) error {
	var plan stripe.Plan
	if err := json.Unmarshal(event.Data.Raw, &plan); err != nil {
		return fmt.Errorf("decode plan: %w", err)
	}

	err := p.plans.DeleteByProviderID(ctx, plan.ID)
	if errors.Is(err, ports.ErrNotFound) {
		p.logger.Warn().Str("plan", plan.ID).Msg("delete for unknown plan, ignoring")
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete plan %s: %w", plan.ID, err)
	}

	p.logger.Info().Str("plan", plan.ID).Msg("plan deleted")
	return nil
}

func (p *Processor) handleProductUpsert(ctx context.Context, event *stripe.Event) error {
	var prod stripe.Product
	if err := json.Unmarshal(event.Data.Raw, &prod); err != nil {
		return fmt.Errorf("decode product: %w", err)
	}

	features := feature.Extract(prod.Metadata)

	plans, err := p.plans.ListByProduct(ctx, prod.ID)
	if err != nil {
		return fmt.Errorf("list plans for product %s: %w", prod.ID, err)
	}

	// Fan-out: one plan's failure must not starve its siblings.
	for _, plan := range plans {
		if !plan.Active {
			continue
		}
		plan.Features = features
		plan.Description = prod.Description
		if err := p.plans.Update(ctx, plan); err != nil {
			p.logger.Error().Err(err).
				Str("plan", plan.ID).
				Str("product", prod.ID).
				Msg("failed to update plan from product event, continuing")
			continue
		}
	}

	p.logger.Info().
		Str("product", prod.ID).
		Int("plans", len(plans)).
		Msg("product features fanned out to plans")
	return nil
}

func (p *Processor) handlePriceUpsert(ctx context.Context, event *stripe.Event) error {
	var price stripe.Price
	if err := json.Unmarshal(event.Data.Raw, &price); err != nil {
		return fmt.Errorf("decode price: %w", err)
	}

	// One-time prices are not plans.
	if price.Recurring == nil {
		p.logger.Debug().Str("price", price.ID).Msg("non-recurring price, ignoring")
		return nil
	}

	if price.Product == nil || price.Product.ID == "" {
		return fmt.Errorf("price %s has no product reference", price.ID)
	}
	if !fieldPresent(event.Data.Raw, "unit_amount") {
		return fmt.Errorf("price %s has no unit amount", price.ID)
	}

	product, err := p.products.Resolve(ctx, price.Product.ID)
	if err != nil {
		return fmt.Errorf("resolve product %s: %w", price.Product.ID, err)
	}

	name := price.Nickname
	if name == "" {
		name = product.Name
	}

	return p.upsertPlan(ctx, billing.Plan{
		Name:              name,
		Description:       product.Description,
		Active:            price.Active,
		Price:             price.UnitAmount,
		Currency:          string(price.Currency),
		Cadence:           cadenceFromInterval(string(price.Recurring.Interval)),
		Features:          feature.Extract(product.Metadata),
		ProviderID:        price.ID,
		ProviderProductID: product.ID,
	})
}

func (p *Processor) upsertPlan(ctx context.Context, plan billing.Plan) error {
	plan.Provider = p.provider

	existing, err := p.plans.GetByProviderID(ctx, plan.ProviderID)
	switch {
	case errors.Is(err, ports.ErrNotFound):
		plan.ID = p.idGen.New()
		plan.CreatedAt = p.clock.Now()
		if err := p.plans.Create(ctx, plan); err != nil {
			return fmt.Errorf("create plan: %w", err)
		}
	case err != nil:
		return fmt.Errorf("lookup plan: %w", err)
	default:
		plan.ID = existing.ID
		plan.CreatedAt = existing.CreatedAt
		if err := p.plans.Update(ctx, plan); err != nil {
			return fmt.Errorf("update plan: %w", err)
		}
	}

	p.logger.Info().
		Str("plan", plan.ProviderID).
		Str("cadence", string(plan.Cadence)).
		Int64("price", plan.Price).
		Strs("features", plan.Features).
		Msg("plan stored")
	return nil
}

// -----------------------------------------------------------------------------
// Subscriptions
// -----------------------------------------------------------------------------

func (p *Processor) handleSubscriptionUpsert(ctx context.Context, event *stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("decode subscription: %w", err)
	}

	planProviderID := subscriptionPlanID(&sub)
	if planProviderID == "" {
		return fmt.Errorf("subscription %s has no resolvable plan reference", sub.ID)
	}

	var planID string
	plan, err := p.plans.GetByProviderID(ctx, planProviderID)
	switch {
	case err == nil:
		planID = plan.ID
	case errors.Is(err, ports.ErrNotFound):
		p.logger.Warn().
			Str("subscription", sub.ID).
			Str("provider_plan", planProviderID).
			Msg("subscription references unknown plan")
	default:
		return fmt.Errorf("lookup plan %s: %w", planProviderID, err)
	}

	partyID, partyType := subscriptionParty(&sub)
	status := string(sub.Status)

	record := billing.Subscription{
		PartyID:    partyID,
		PartyType:  partyType,
		Active:     status == "active" || status == "trialing",
		PlanID:     planID,
		ProviderID: sub.ID,
		Provider:   p.provider,
		StartDate:  time.Unix(sub.StartDate, 0).UTC(),
		Status:     status,
	}
	if sub.EndedAt > 0 {
		t := time.Unix(sub.EndedAt, 0).UTC()
		record.EndDate = &t
	}

	existing, err := p.subs.GetByProviderID(ctx, sub.ID)
	switch {
	case errors.Is(err, ports.ErrNotFound):
		record.ID = p.idGen.New()
		record.CreatedAt = p.clock.Now()
		if err := p.subs.Create(ctx, record); err != nil {
			return fmt.Errorf("create subscription: %w", err)
		}
	case err != nil:
		return fmt.Errorf("lookup subscription: %w", err)
	default:
		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
		if err := p.subs.Update(ctx, record); err != nil {
			return fmt.Errorf("update subscription: %w", err)
		}
	}

	p.logger.Info().
		Str("subscription", sub.ID).
		Str("party", partyID).
		Str("status", status).
		Msg("subscription stored")
	return nil
}

func (p *Processor) handleSubscriptionDeleted(ctx context.Context, event *stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("decode subscription: %w", err)
	}

	err := p.subs.DeleteByProviderID(ctx, sub.ID)
	if errors.Is(err, ports.ErrNotFound) {
		p.logger.Warn().Str("subscription", sub.ID).Msg("delete for unknown subscription, ignoring")
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete subscription %s: %w", sub.ID, err)
	}

	p.logger.Info().Str("subscription", sub.ID).Msg("subscription deleted")
	return nil
}

func (p *Processor) handleSubscriptionPaused(ctx context.Context, event *stripe.Event) error {
	return p.setSubscriptionState(ctx, event, false, "paused")
}

func (p *Processor) handleSubscriptionResumed(ctx context.Context, event *stripe.Event) error {
	return p.setSubscriptionState(ctx, event, true, "active")
}

func (p *Processor) setSubscriptionState(ctx context.Context, event *stripe.Event, active bool, status string) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("decode subscription: %w", err)
	}

	record, err := p.subs.GetByProviderID(ctx, sub.ID)
	if err != nil {
		return fmt.Errorf("lookup subscription %s: %w", sub.ID, err)
	}

	record.Active = active
	record.Status = status
	if err := p.subs.Update(ctx, record); err != nil {
		return fmt.Errorf("update subscription %s: %w", sub.ID, err)
	}

	p.logger.Info().
		Str("subscription", sub.ID).
		Str("status", status).
		Msg("subscription state changed")
	return nil
}

// -----------------------------------------------------------------------------
// Payload helpers
// -----------------------------------------------------------------------------

// subscriptionPlanID finds the first line item carrying a plan or price
// reference.
func subscriptionPlanID(sub *stripe.Subscription) string {
	if sub.Items == nil {
		return ""
	}
	for _, item := range sub.Items.Data {
		if item == nil {
			continue
		}
		if item.Price != nil && item.Price.ID != "" {
			return item.Price.ID
		}
		if item.Plan != nil && item.Plan.ID != "" {
			return item.Plan.ID
		}
	}
	return ""
}

// subscriptionParty attributes a subscription to a party. Explicit
// metadata wins; otherwise the customer is treated as an organization.
func subscriptionParty(sub *stripe.Subscription) (string, billing.PartyType) {
	if id := sub.Metadata[metaOrganizationID]; id != "" {
		return id, billing.PartyTypeOrganization
	}
	if id := sub.Metadata[metaUserID]; id != "" {
		return id, billing.PartyTypeUser
	}
	return customerRefID(sub.Customer), billing.PartyTypeOrganization
}

func customerRefID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func cadenceFromInterval(interval string) billing.Cadence {
	switch interval {
	case "day":
		return billing.CadenceDaily
	case "week":
		return billing.CadenceWeekly
	case "year":
		return billing.CadenceYearly
	default:
		return billing.CadenceMonthly
	}
}

// fieldPresent reports whether a top-level JSON field exists and is not
// null. Provider payloads sometimes null out numeric fields a handler
// cannot proceed without.
func fieldPresent(raw []byte, field string) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	v, ok := probe[field]
	return ok && string(v) != "null"
}
