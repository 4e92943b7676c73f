package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/artpar/billgate/domain/billing"
	"github.com/artpar/billgate/ports"
)

// CheckoutSessionStore implements ports.CheckoutSessionStore using SQLite.
type CheckoutSessionStore struct {
	db *DB
}

// NewCheckoutSessionStore creates a new SQLite checkout session store.
func NewCheckoutSessionStore(db *DB) *CheckoutSessionStore {
	return &CheckoutSessionStore{db: db}
}

// GetByProviderID retrieves a session by its external provider ID.
func (s *CheckoutSessionStore) GetByProviderID(ctx context.Context, providerID string) (billing.CheckoutSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, party_id, provider_id, provider, url, status,
		       expires_at, created_at, updated_at
		FROM checkout_sessions
		WHERE provider_id = ?
	`, providerID)

	var cs billing.CheckoutSession
	var status string
	err := row.Scan(
		&cs.ID, &cs.PartyID, &cs.ProviderID, &cs.Provider, &cs.URL, &status,
		&cs.ExpiresAt, &cs.CreatedAt, &cs.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.CheckoutSession{}, ports.ErrNotFound
	}
	if err != nil {
		return billing.CheckoutSession{}, err
	}
	cs.Status = billing.SessionStatus(status)
	return cs, nil
}

// Create stores a new session.
func (s *CheckoutSessionStore) Create(ctx context.Context, cs billing.CheckoutSession) error {
	now := time.Now().UTC()
	if cs.CreatedAt.IsZero() {
		cs.CreatedAt = now
	}
	if cs.UpdatedAt.IsZero() {
		cs.UpdatedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkout_sessions (
			id, party_id, provider_id, provider, url, status,
			expires_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		cs.ID, cs.PartyID, cs.ProviderID, cs.Provider, cs.URL, string(cs.Status),
		cs.ExpiresAt, cs.CreatedAt, cs.UpdatedAt,
	)
	if err != nil && isUniqueConstraintError(err) {
		return ports.ErrDuplicate
	}
	return err
}

// UpdateStatus transitions a session identified by provider ID.
func (s *CheckoutSessionStore) UpdateStatus(ctx context.Context, providerID string, status billing.SessionStatus, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE checkout_sessions
		SET status = ?, updated_at = ?
		WHERE provider_id = ?
	`, string(status), at, providerID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// PaymentLinkStore implements ports.PaymentLinkStore using SQLite.
type PaymentLinkStore struct {
	db *DB
}

// NewPaymentLinkStore creates a new SQLite payment link store.
func NewPaymentLinkStore(db *DB) *PaymentLinkStore {
	return &PaymentLinkStore{db: db}
}

// GetByProviderID retrieves a link by its external provider ID.
func (s *PaymentLinkStore) GetByProviderID(ctx context.Context, providerID string) (billing.PaymentLink, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, provider_id, provider, url, active, amount, currency,
		       created_at, updated_at
		FROM payment_links
		WHERE provider_id = ?
	`, providerID)

	var pl billing.PaymentLink
	var active int
	err := row.Scan(
		&pl.ID, &pl.ProviderID, &pl.Provider, &pl.URL, &active, &pl.Amount,
		&pl.Currency, &pl.CreatedAt, &pl.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.PaymentLink{}, ports.ErrNotFound
	}
	if err != nil {
		return billing.PaymentLink{}, err
	}
	pl.Active = active == 1
	return pl, nil
}

// Create stores a new link.
func (s *PaymentLinkStore) Create(ctx context.Context, pl billing.PaymentLink) error {
	now := time.Now().UTC()
	if pl.CreatedAt.IsZero() {
		pl.CreatedAt = now
	}
	if pl.UpdatedAt.IsZero() {
		pl.UpdatedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_links (
			id, provider_id, provider, url, active, amount, currency,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		pl.ID, pl.ProviderID, pl.Provider, pl.URL, boolToInt(pl.Active),
		pl.Amount, pl.Currency, pl.CreatedAt, pl.UpdatedAt,
	)
	if err != nil && isUniqueConstraintError(err) {
		return ports.ErrDuplicate
	}
	return err
}

// Update modifies a link.
func (s *PaymentLinkStore) Update(ctx context.Context, pl billing.PaymentLink) error {
	pl.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE payment_links
		SET url = ?, active = ?, amount = ?, currency = ?, updated_at = ?
		WHERE provider_id = ?
	`, pl.URL, boolToInt(pl.Active), pl.Amount, pl.Currency, pl.UpdatedAt, pl.ProviderID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// PortalSessionStore implements ports.PortalSessionStore using SQLite.
type PortalSessionStore struct {
	db *DB
}

// NewPortalSessionStore creates a new SQLite portal session store.
func NewPortalSessionStore(db *DB) *PortalSessionStore {
	return &PortalSessionStore{db: db}
}

// Create stores a new portal session.
func (s *PortalSessionStore) Create(ctx context.Context, ps billing.PortalSession) error {
	if ps.CreatedAt.IsZero() {
		ps.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO portal_sessions (
			id, party_id, provider_id, provider, url, return_url,
			expires_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ps.ID, ps.PartyID, ps.ProviderID, ps.Provider, ps.URL, ps.ReturnURL,
		ps.ExpiresAt, ps.CreatedAt,
	)
	return err
}

// Ensure interface compliance.
var (
	_ ports.CheckoutSessionStore = (*CheckoutSessionStore)(nil)
	_ ports.PaymentLinkStore     = (*PaymentLinkStore)(nil)
	_ ports.PortalSessionStore   = (*PortalSessionStore)(nil)
)
