package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/artpar/billgate/domain/billing"
	"github.com/artpar/billgate/ports"
)

// WebhookEventStore implements the processed-event ledger using SQLite.
// A partial unique index on idempotency_key makes a concurrent duplicate
// lose at insert time rather than double-processing silently.
type WebhookEventStore struct {
	db *DB
}

// NewWebhookEventStore creates a new SQLite webhook ledger.
func NewWebhookEventStore(db *DB) *WebhookEventStore {
	return &WebhookEventStore{db: db}
}

// GetByIdempotencyKey looks up a ledger entry by idempotency key.
func (s *WebhookEventStore) GetByIdempotencyKey(ctx context.Context, key string) (billing.WebhookEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, provider_event_id, idempotency_key, event_type, payload, processed_at
		FROM webhook_events
		WHERE idempotency_key = ?
	`, key)

	var ev billing.WebhookEvent
	var idemKey sql.NullString
	err := row.Scan(&ev.ID, &ev.ProviderEventID, &idemKey, &ev.EventType, &ev.Payload, &ev.ProcessedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.WebhookEvent{}, ports.ErrNotFound
	}
	if err != nil {
		return billing.WebhookEvent{}, err
	}
	if idemKey.Valid {
		ev.IdempotencyKey = idemKey.String
	}
	return ev, nil
}

// Create appends a ledger entry.
func (s *WebhookEventStore) Create(ctx context.Context, ev billing.WebhookEvent) error {
	if ev.ProcessedAt.IsZero() {
		ev.ProcessedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_events (
			id, provider_event_id, idempotency_key, event_type, payload, processed_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`,
		ev.ID, ev.ProviderEventID, nullString(ev.IdempotencyKey),
		ev.EventType, ev.Payload, ev.ProcessedAt,
	)
	if err != nil && isUniqueConstraintError(err) {
		return ports.ErrDuplicate
	}
	return err
}

// Ensure interface compliance.
var _ ports.WebhookEventStore = (*WebhookEventStore)(nil)
