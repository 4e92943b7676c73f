package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/billgate/domain/billing"
	"github.com/artpar/billgate/ports"
)

// PlanStore implements ports.PlanStore using SQLite.
type PlanStore struct {
	db *DB
}

// NewPlanStore creates a new SQLite plan store.
func NewPlanStore(db *DB) *PlanStore {
	return &PlanStore{db: db}
}

const planColumns = `id, name, description, active, price, currency, cadence,
       features, provider_id, provider_product_id, provider, created_at, updated_at`

// Get retrieves a plan by internal ID.
func (s *PlanStore) Get(ctx context.Context, id string) (billing.Plan, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+planColumns+`
		FROM plans
		WHERE id = ?
	`, id)
	return scanPlan(row)
}

// GetByProviderID retrieves a plan by its external provider ID.
func (s *PlanStore) GetByProviderID(ctx context.Context, providerID string) (billing.Plan, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+planColumns+`
		FROM plans
		WHERE provider_id = ?
	`, providerID)
	return scanPlan(row)
}

// ListByProduct returns plans attached to a provider product.
func (s *PlanStore) ListByProduct(ctx context.Context, providerProductID string) ([]billing.Plan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+planColumns+`
		FROM plans
		WHERE provider_product_id = ?
		ORDER BY created_at
	`, providerProductID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []billing.Plan
	for rows.Next() {
		p, err := scanPlanRows(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// Create stores a new plan.
func (s *PlanStore) Create(ctx context.Context, p billing.Plan) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}

	features, err := json.Marshal(p.Features)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO plans (
			id, name, description, active, price, currency, cadence,
			features, provider_id, provider_product_id, provider, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.Name, p.Description, boolToInt(p.Active), p.Price, p.Currency,
		string(p.Cadence), string(features), p.ProviderID, p.ProviderProductID,
		p.Provider, p.CreatedAt, p.UpdatedAt,
	)

	if err != nil && isUniqueConstraintError(err) {
		return ports.ErrDuplicate
	}
	return err
}

// Update modifies a plan.
func (s *PlanStore) Update(ctx context.Context, p billing.Plan) error {
	p.UpdatedAt = time.Now().UTC()

	features, err := json.Marshal(p.Features)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE plans
		SET name = ?, description = ?, active = ?, price = ?, currency = ?,
		    cadence = ?, features = ?, provider_product_id = ?, updated_at = ?
		WHERE id = ?
	`,
		p.Name, p.Description, boolToInt(p.Active), p.Price, p.Currency,
		string(p.Cadence), string(features), p.ProviderProductID, p.UpdatedAt, p.ID,
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

// DeleteByProviderID removes a plan by its external provider ID.
func (s *PlanStore) DeleteByProviderID(ctx context.Context, providerID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM plans WHERE provider_id = ?`, providerID)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row *sql.Row) (billing.Plan, error) {
	p, err := scanPlanFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.Plan{}, ports.ErrNotFound
	}
	return p, err
}

func scanPlanRows(rows *sql.Rows) (billing.Plan, error) {
	return scanPlanFrom(rows)
}

func scanPlanFrom(r rowScanner) (billing.Plan, error) {
	var p billing.Plan
	var active int
	var cadence, features string

	err := r.Scan(
		&p.ID, &p.Name, &p.Description, &active, &p.Price, &p.Currency, &cadence,
		&features, &p.ProviderID, &p.ProviderProductID, &p.Provider,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return billing.Plan{}, err
	}

	p.Active = active == 1
	p.Cadence = billing.Cadence(cadence)
	if err := json.Unmarshal([]byte(features), &p.Features); err != nil {
		return billing.Plan{}, fmt.Errorf("unmarshal features: %w", err)
	}
	return p, nil
}

// Ensure interface compliance.
var _ ports.PlanStore = (*PlanStore)(nil)
