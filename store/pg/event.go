package pg

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hookwise/core/store"
)

// EventStore implements store.EventStore.
type EventStore struct {
	pool *pgxpool.Pool
}

// Insert implements store.EventStore. Events are immutable once inserted.
func (s *EventStore) Insert(ctx context.Context, e *Event) error {
	headers, err := json.Marshal(e.Headers)
	if err != nil {
		return fmt.Errorf("store/pg: marshal event headers: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO events (
			id, integration_id, event_type, payload, headers, received_at,
			signature_valid, provider_event_id, source
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.IntegrationID, e.EventType, e.Payload, headers, e.ReceivedAt,
		e.SignatureValid, e.ProviderEventID, string(e.Source),
	)
	if err != nil {
		return fmt.Errorf("store/pg: insert event %s: %w", e.ID, err)
	}
	return nil
}

const eventColumns = `id, integration_id, event_type, payload, headers, received_at,
	       signature_valid, provider_event_id, source`

const eventSelect = `SELECT ` + eventColumns + ` FROM events`

func scanEvent(row rowScanner) (*store.Event, error) {
	var e store.Event
	var headers []byte
	var source string

	if err := row.Scan(
		&e.ID, &e.IntegrationID, &e.EventType, &e.Payload, &headers, &e.ReceivedAt,
		&e.SignatureValid, &e.ProviderEventID, &source,
	); err != nil {
		return nil, err
	}

	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &e.Headers); err != nil {
			return nil, fmt.Errorf("store/pg: unmarshal event headers: %w", err)
		}
	}
	e.Source = store.EventSource(source)
	return &e, nil
}

// Get implements store.EventStore.
func (s *EventStore) Get(ctx context.Context, id uuid.UUID) (*store.Event, error) {
	row := s.pool.QueryRow(ctx, eventSelect+` WHERE id = $1`, id)
	e, err := scanEvent(row)
	if err != nil {
		return nil, fmt.Errorf("store/pg: get event %s: %w", id, mapNotFound(err))
	}
	return e, nil
}

// ExistsProviderEventID implements store.EventStore, used by reconciliation
// to determine which provider event ids are already local.
func (s *EventStore) ExistsProviderEventID(ctx context.Context, integrationID uuid.UUID, providerEventID string, since time.Time) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM events
			WHERE integration_id = $1 AND provider_event_id = $2 AND received_at >= $3
		)`, integrationID, providerEventID, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("store/pg: check provider event id %s: %w", providerEventID, err)
	}
	return exists, nil
}

// WithoutDelivery implements store.EventStore, used by the orphan sweeper.
func (s *EventStore) WithoutDelivery(ctx context.Context, olderThan time.Time) ([]store.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM events e
		WHERE e.received_at < $1
		  AND NOT EXISTS (SELECT 1 FROM deliveries d WHERE d.event_id = e.id)`, olderThan)
	if err != nil {
		return nil, fmt.Errorf("store/pg: find orphaned events: %w", err)
	}
	defer rows.Close()

	var out []store.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("store/pg: scan orphaned event: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}
