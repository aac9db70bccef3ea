// Package sweeper re-enqueues webhook/received for events that were
// inserted but never got a Delivery row, repairing the gap left by a
// crash between the ingestion insert and the task-queue hand-off
// (spec.md §7 "Orphan repair").
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/multierr"

	"github.com/hookwise/core/pkg/queue"
	"github.com/hookwise/core/store"
	"github.com/hookwise/core/tasks"
)

const orphanAge = 60 * time.Second

// Sweeper drains the orphan backlog every tick.
type Sweeper struct {
	events       store.EventStore
	integrations store.IntegrationStore
	enqueuer     *queue.Enqueuer
	logger       *slog.Logger
}

// New builds a Sweeper.
func New(events store.EventStore, integrations store.IntegrationStore, enqueuer *queue.Enqueuer, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{events: events, integrations: integrations, enqueuer: enqueuer, logger: logger}
}

// Handler returns the queue.Handler driving the 60s periodic sweep.
func (s *Sweeper) Handler(taskName string) queue.Handler {
	return queue.NewPeriodicTaskHandler(taskName, s.run)
}

func (s *Sweeper) run(ctx context.Context) error {
	orphans, err := s.events.WithoutDelivery(ctx, time.Now().Add(-orphanAge))
	if err != nil {
		return fmt.Errorf("sweeper: list orphaned events: %w", err)
	}

	var errs error
	for _, e := range orphans {
		integration, err := s.integrations.GetIntegration(ctx, e.IntegrationID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("load integration for orphaned event %s: %w", e.ID, err))
			continue
		}

		payload := tasks.WebhookReceivedPayload{
			EventID:        e.ID,
			IntegrationID:  e.IntegrationID,
			DestinationURL: integration.DestinationURL,
		}
		if err := s.enqueuer.Enqueue(ctx, payload, queue.WithTaskName(tasks.WebhookReceived)); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("re-enqueue orphaned event %s: %w", e.ID, err))
		}
	}
	if errs != nil {
		s.logger.Error("sweep completed with errors", "orphan_count", len(orphans), "error", errs)
	}
	return nil
}
