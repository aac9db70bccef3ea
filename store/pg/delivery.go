package pg

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hookwise/core/store"
)

// DeliveryStore implements store.DeliveryStore.
type DeliveryStore struct {
	pool *pgxpool.Pool
}

// Insert implements store.DeliveryStore.
func (s *DeliveryStore) Insert(ctx context.Context, d *store.Delivery) error {
	var errType *string
	if d.ErrorType != nil {
		s := string(*d.ErrorType)
		errType = &s
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO deliveries (
			id, event_id, endpoint_id, status, status_code, response_time_ms,
			response_body, error_type, attempt_number, attempted_at, next_retry_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		d.ID, d.EventID, d.EndpointID, string(d.Status), d.StatusCode, d.ResponseTimeMs,
		d.ResponseBody, errType, d.AttemptNumber, d.AttemptedAt, d.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("store/pg: insert delivery %s: %w", d.ID, err)
	}
	return nil
}

// RecentByEndpoint implements store.DeliveryStore: returns the most recent
// deliveries for an endpoint's events, newest first, used by the breaker to
// recompute its sliding window.
func (s *DeliveryStore) RecentByEndpoint(ctx context.Context, endpointID uuid.UUID, limit int) ([]store.Delivery, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, event_id, endpoint_id, status, status_code, response_time_ms,
		       response_body, error_type, attempt_number, attempted_at, next_retry_at
		FROM deliveries
		WHERE endpoint_id = $1
		ORDER BY attempted_at DESC
		LIMIT $2`, endpointID, limit)
	if err != nil {
		return nil, fmt.Errorf("store/pg: recent deliveries for endpoint %s: %w", endpointID, err)
	}
	defer rows.Close()

	var out []store.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("store/pg: scan delivery: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// DeliveredWithProviderEventID implements store.DeliveryStore, the replay
// engine's dedup check (spec.md §4.I step 2).
func (s *DeliveryStore) DeliveredWithProviderEventID(ctx context.Context, integrationID uuid.UUID, providerEventID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1
			FROM deliveries d
			JOIN events e ON e.id = d.event_id
			WHERE e.integration_id = $1
			  AND e.provider_event_id = $2
			  AND d.status = $3
		)`, integrationID, providerEventID, string(store.DeliveryDelivered)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("store/pg: check delivered provider event id %s: %w", providerEventID, err)
	}
	return exists, nil
}

func scanDelivery(row rowScanner) (*store.Delivery, error) {
	var d store.Delivery
	var status string
	var errType *string

	if err := row.Scan(
		&d.ID, &d.EventID, &d.EndpointID, &status, &d.StatusCode, &d.ResponseTimeMs,
		&d.ResponseBody, &errType, &d.AttemptNumber, &d.AttemptedAt, &d.NextRetryAt,
	); err != nil {
		return nil, err
	}

	d.Status = store.DeliveryStatus(status)
	if errType != nil {
		et := store.ErrorType(*errType)
		d.ErrorType = &et
	}
	return &d, nil
}
