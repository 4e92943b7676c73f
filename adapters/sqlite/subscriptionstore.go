package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/artpar/billgate/domain/billing"
	"github.com/artpar/billgate/ports"
)

// SubscriptionStore implements ports.SubscriptionStore using SQLite.
type SubscriptionStore struct {
	db *DB
}

// NewSubscriptionStore creates a new SQLite subscription store.
func NewSubscriptionStore(db *DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

const subscriptionColumns = `id, party_id, party_type, active, plan_id,
       provider_id, provider, start_date, end_date, status, created_at, updated_at`

// Get retrieves a subscription by internal ID.
func (s *SubscriptionStore) Get(ctx context.Context, id string) (billing.Subscription, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE id = ?
	`, id)
	return scanSubscription(row)
}

// GetByProviderID retrieves a subscription by its external provider ID.
func (s *SubscriptionStore) GetByProviderID(ctx context.Context, providerID string) (billing.Subscription, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE provider_id = ?
	`, providerID)
	return scanSubscription(row)
}

// GetActiveByParty retrieves the current access-granting subscription for
// a party.
func (s *SubscriptionStore) GetActiveByParty(ctx context.Context, partyID string) (billing.Subscription, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE party_id = ? AND status IN ('active', 'trialing')
		ORDER BY created_at DESC
		LIMIT 1
	`, partyID)
	return scanSubscription(row)
}

// Create stores a new subscription.
func (s *SubscriptionStore) Create(ctx context.Context, sub billing.Subscription) error {
	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (
			id, party_id, party_type, active, plan_id,
			provider_id, provider, start_date, end_date, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sub.ID, sub.PartyID, string(sub.PartyType), boolToInt(sub.Active), sub.PlanID,
		sub.ProviderID, sub.Provider, sub.StartDate, nullTime(sub.EndDate),
		sub.Status, sub.CreatedAt, sub.UpdatedAt,
	)

	if err != nil && isUniqueConstraintError(err) {
		return ports.ErrDuplicate
	}
	return err
}

// Update modifies a subscription.
func (s *SubscriptionStore) Update(ctx context.Context, sub billing.Subscription) error {
	sub.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET party_id = ?, party_type = ?, active = ?, plan_id = ?,
		    start_date = ?, end_date = ?, status = ?, updated_at = ?
		WHERE id = ?
	`,
		sub.PartyID, string(sub.PartyType), boolToInt(sub.Active), sub.PlanID,
		sub.StartDate, nullTime(sub.EndDate), sub.Status, sub.UpdatedAt, sub.ID,
	)
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

// DeleteByProviderID removes a subscription by its external provider ID.
func (s *SubscriptionStore) DeleteByProviderID(ctx context.Context, providerID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE provider_id = ?`, providerID)
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

func scanSubscription(row *sql.Row) (billing.Subscription, error) {
	var sub billing.Subscription
	var partyType string
	var active int
	var endDate sql.NullTime

	err := row.Scan(
		&sub.ID, &sub.PartyID, &partyType, &active, &sub.PlanID,
		&sub.ProviderID, &sub.Provider, &sub.StartDate, &endDate,
		&sub.Status, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.Subscription{}, ports.ErrNotFound
	}
	if err != nil {
		return billing.Subscription{}, err
	}

	sub.PartyType = billing.PartyType(partyType)
	sub.Active = active == 1
	if endDate.Valid {
		sub.EndDate = &endDate.Time
	}
	return sub, nil
}

// Ensure interface compliance.
var _ ports.SubscriptionStore = (*SubscriptionStore)(nil)
