// Package reconcile periodically pulls each active, reconciliation-enabled
// integration's provider API and synthesizes Events for any gap against
// what was received over the webhook path (spec.md §4.J).
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hookwise/core/pkg/queue"
	"github.com/hookwise/core/pkg/secrets"
	"github.com/hookwise/core/store"
	"github.com/hookwise/core/tasks"
)

const lookback = 7 * 24 * time.Hour

// providerEvent is the tuple every provider client's pull returns, per
// spec.md §4.J.
type providerEvent struct {
	ProviderEventID string
	Type            string
	CreatedAt       time.Time
	Data            []byte
}

// client pages a provider's API for events created since a cursor.
type client interface {
	Pull(ctx context.Context, credential string, since time.Time) ([]providerEvent, error)
}

// Reconciler drives the periodic pull-and-compare cycle.
type Reconciler struct {
	integrations store.IntegrationStore
	events       store.EventStore
	runs         store.ReconciliationStore
	enqueuer     *queue.Enqueuer
	appKey       []byte
	clients      map[store.Provider]client
	logger       *slog.Logger
}

// New builds a Reconciler. appKey is the application-wide secrets key used
// to decrypt each integration's reconciliation credential (pkg/secrets'
// compound-key scheme); decryption happens at the call site, immediately
// before use, and the plaintext is never logged or persisted.
func New(
	integrations store.IntegrationStore,
	events store.EventStore,
	runs store.ReconciliationStore,
	enqueuer *queue.Enqueuer,
	appKey []byte,
	stripe, shopify client,
	logger *slog.Logger,
) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	clients := map[store.Provider]client{}
	if stripe != nil {
		clients[store.ProviderStripe] = stripe
	}
	if shopify != nil {
		clients[store.ProviderShopify] = shopify
	}
	return &Reconciler{
		integrations: integrations,
		events:       events,
		runs:         runs,
		enqueuer:     enqueuer,
		appKey:       appKey,
		clients:      clients,
		logger:       logger,
	}
}

// Handler returns the queue.Handler driving the 5-minute periodic cycle.
func (r *Reconciler) Handler(taskName string) queue.Handler {
	return queue.NewPeriodicTaskHandler(taskName, r.run)
}

func (r *Reconciler) run(ctx context.Context) error {
	integrations, err := r.integrations.ListActiveWithReconciliation(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: list reconciliation-enabled integrations: %w", err)
	}

	for _, integration := range integrations {
		if err := r.reconcileOne(ctx, integration); err != nil {
			r.logger.Error("reconciliation cycle failed", "integration_id", integration.ID, "error", err)
		}
	}
	return nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, integration store.Integration) error {
	c, ok := r.clients[integration.Provider]
	if !ok {
		// P3 (GitHub) has no reconciliation client, spec.md §4.J.
		return nil
	}

	credential, err := secrets.DecryptString(r.appKey, workspaceKey(integration.OwnerID), integration.ReconciliationCredential)
	if err != nil {
		return fmt.Errorf("decrypt reconciliation credential: %w", err)
	}

	since := time.Now().Add(-lookback)
	remote, err := c.Pull(ctx, credential, since)
	if err != nil {
		r.insertRun(ctx, integration.ID, 0, 0, 0, 0)
		return fmt.Errorf("pull provider events: %w", err)
	}

	gapsDetected, gapsResolved := 0, 0
	localCount := 0
	for _, pe := range remote {
		exists, err := r.events.ExistsProviderEventID(ctx, integration.ID, pe.ProviderEventID, since)
		if err != nil {
			return fmt.Errorf("check existing event %s: %w", pe.ProviderEventID, err)
		}
		if exists {
			localCount++
			continue
		}

		gapsDetected++
		event := &store.Event{
			ID:              uuid.New(),
			IntegrationID:   integration.ID,
			EventType:       pe.Type,
			Payload:         pe.Data,
			Headers:         map[string]string{},
			ReceivedAt:      pe.CreatedAt,
			SignatureValid:  true,
			ProviderEventID: &pe.ProviderEventID,
			Source:          store.EventSourceReconciliation,
		}
		if err := r.events.Insert(ctx, event); err != nil {
			return fmt.Errorf("insert gap event %s: %w", pe.ProviderEventID, err)
		}

		payload := tasks.WebhookReceivedPayload{
			EventID:        event.ID,
			IntegrationID:  integration.ID,
			DestinationURL: integration.DestinationURL,
		}
		if err := r.enqueuer.Enqueue(ctx, payload, queue.WithTaskName(tasks.WebhookReceived)); err != nil {
			r.logger.Error("enqueue webhook/received for gap event failed", "event_id", event.ID, "error", err)
			continue
		}
		gapsResolved++
	}

	r.insertRun(ctx, integration.ID, len(remote), localCount, gapsDetected, gapsResolved)
	return nil
}

func (r *Reconciler) insertRun(ctx context.Context, integrationID uuid.UUID, providerFound, localFound, gapsDetected, gapsResolved int) {
	run := &store.ReconciliationRun{
		ID:                  uuid.New(),
		IntegrationID:       integrationID,
		ProviderEventsFound: providerFound,
		LocalEventsFound:    localFound,
		GapsDetected:        gapsDetected,
		GapsResolved:        gapsResolved,
		RanAt:               time.Now(),
	}
	if err := r.runs.Insert(ctx, run); err != nil {
		r.logger.Error("insert reconciliation run failed", "integration_id", integrationID, "error", err)
	}
}

// workspaceKey derives a per-integration-owner decryption key. The
// encryption-time path (integration onboarding) is out of this core's
// scope; it must derive the workspace key for secrets.EncryptString the
// same way, from the owner id.
func workspaceKey(ownerID uuid.UUID) []byte {
	sum := sha256Sum(ownerID[:])
	return sum[:]
}
