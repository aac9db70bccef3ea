package pg

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hookwise/core/store"
)

// IntegrationStore implements store.IntegrationStore.
type IntegrationStore struct {
	pool *pgxpool.Pool
}

// GetIntegration implements store.IntegrationStore.
func (s *IntegrationStore) GetIntegration(ctx context.Context, id uuid.UUID) (*store.Integration, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, provider, signing_secret, destination_url, status,
		       reconciliation_credential, forward_invalid_signatures, created_at, updated_at
		FROM integrations WHERE id = $1`, id)

	i, err := scanIntegration(row)
	if err != nil {
		return nil, fmt.Errorf("store/pg: get integration %s: %w", id, mapNotFound(err))
	}
	return i, nil
}

// ListActiveWithReconciliation implements store.IntegrationStore, used by
// the reconciliation scheduler to pick cycle participants.
func (s *IntegrationStore) ListActiveWithReconciliation(ctx context.Context) ([]store.Integration, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, provider, signing_secret, destination_url, status,
		       reconciliation_credential, forward_invalid_signatures, created_at, updated_at
		FROM integrations
		WHERE status = $1 AND reconciliation_credential <> ''`, string(store.IntegrationActive))
	if err != nil {
		return nil, fmt.Errorf("store/pg: list reconciling integrations: %w", err)
	}
	defer rows.Close()

	var out []store.Integration
	for rows.Next() {
		i, err := scanIntegration(rows)
		if err != nil {
			return nil, fmt.Errorf("store/pg: scan integration: %w", err)
		}
		out = append(out, *i)
	}
	return out, rows.Err()
}

func scanIntegration(row rowScanner) (*store.Integration, error) {
	var i store.Integration
	var provider, status string

	if err := row.Scan(
		&i.ID, &i.OwnerID, &provider, &i.SigningSecret, &i.DestinationURL, &status,
		&i.ReconciliationCredential, &i.ForwardInvalidSignatures, &i.CreatedAt, &i.UpdatedAt,
	); err != nil {
		return nil, err
	}

	i.Provider = store.Provider(provider)
	i.Status = store.IntegrationStatus(status)
	return &i, nil
}
