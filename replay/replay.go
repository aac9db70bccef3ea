// Package replay drains a recovered endpoint's ordered replay buffer:
// batches of pending items, adaptive rate tiers, dedup against already
// delivered provider events, and a bounded per-item skip budget
// (spec.md §4.I).
package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hookwise/core/breaker"
	"github.com/hookwise/core/classify"
	"github.com/hookwise/core/pkg/queue"
	"github.com/hookwise/core/store"
	"github.com/hookwise/core/tasks"
	"github.com/hookwise/core/transport"
)

const (
	batchSize          = 10
	tierAdvanceStreak  = 5
	deliverTimeout     = 5 * time.Second
)

// rateTiers mirrors spec.md §4.I's 1 → 2 → 5 → 10 ev/s ladder.
var rateTiers = []int{1, 2, 5, 10}

// Engine drains one endpoint's replay buffer per endpoint/replay-started
// task.
type Engine struct {
	events       store.EventStore
	integrations store.IntegrationStore
	endpoints    store.EndpointStore
	deliveries   store.DeliveryStore
	replay       store.ReplayQueueStore
	breaker      *breaker.Breaker
	transport    *transport.Transport
	logger       *slog.Logger
}

// New builds an Engine.
func New(
	events store.EventStore,
	integrations store.IntegrationStore,
	endpoints store.EndpointStore,
	deliveries store.DeliveryStore,
	replayQueue store.ReplayQueueStore,
	b *breaker.Breaker,
	tr *transport.Transport,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		events:       events,
		integrations: integrations,
		endpoints:    endpoints,
		deliveries:   deliveries,
		replay:       replayQueue,
		breaker:      b,
		transport:    tr,
		logger:       logger,
	}
}

// Handler returns the queue.Handler for endpoint/replay-started.
func (e *Engine) Handler() queue.Handler {
	return replayHandler{e: e}
}

type replayHandler struct{ e *Engine }

func (replayHandler) Name() string { return tasks.EndpointReplayStarted }

func (h replayHandler) Handle(ctx context.Context, payload json.RawMessage) error {
	var p tasks.EndpointReplayStartedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("replay: unmarshal %s payload: %w", tasks.EndpointReplayStarted, err)
	}
	return h.e.drain(ctx, p.EndpointID, p.IntegrationID)
}

// drain processes batches until one comes back empty or the breaker
// reopens, matching spec.md §4.I's termination rule.
func (e *Engine) drain(ctx context.Context, endpointID, integrationID uuid.UUID) error {
	tierIdx := 0
	streak := 0

	for {
		snapshot, err := e.breaker.Snapshot(ctx, endpointID)
		if err != nil {
			return fmt.Errorf("replay: snapshot endpoint %s: %w", endpointID, err)
		}
		if snapshot.CircuitState == store.CircuitOpen {
			return nil
		}

		batch, err := e.replay.NextBatch(ctx, endpointID, batchSize)
		if err != nil {
			return fmt.Errorf("replay: next batch for endpoint %s: %w", endpointID, err)
		}
		if len(batch) == 0 {
			return nil
		}

		for _, item := range batch {
			outcome, err := e.processItem(ctx, endpointID, integrationID, item, rateTiers[tierIdx])
			if err != nil {
				return err
			}
			switch outcome {
			case itemSucceeded:
				streak++
				if streak >= tierAdvanceStreak && tierIdx < len(rateTiers)-1 {
					tierIdx++
					streak = 0
				}
			case itemFailed:
				streak = 0
				tierIdx = 0
				if reopened, err := e.breakerReopened(ctx, endpointID); err != nil {
					return err
				} else if reopened {
					return nil
				}
			}
		}
	}
}

func (e *Engine) breakerReopened(ctx context.Context, endpointID uuid.UUID) (bool, error) {
	snapshot, err := e.breaker.Snapshot(ctx, endpointID)
	if err != nil {
		return false, fmt.Errorf("replay: snapshot endpoint %s: %w", endpointID, err)
	}
	return snapshot.CircuitState == store.CircuitOpen, nil
}

type itemOutcome int

const (
	itemSkippedNoSend itemOutcome = iota
	itemSucceeded
	itemFailed
)

// processItem runs spec.md §4.I's 7-step per-item loop.
func (e *Engine) processItem(ctx context.Context, endpointID, integrationID uuid.UUID, item store.ReplayQueueItem, tierRate int) (itemOutcome, error) {
	event, err := e.events.Get(ctx, item.EventID)
	if err != nil {
		return itemSkippedNoSend, fmt.Errorf("replay: load event %s: %w", item.EventID, err)
	}

	if event.ProviderEventID != nil {
		delivered, err := e.deliveries.DeliveredWithProviderEventID(ctx, integrationID, *event.ProviderEventID)
		if err != nil {
			return itemSkippedNoSend, fmt.Errorf("replay: dedup check for event %s: %w", item.EventID, err)
		}
		if delivered {
			if err := e.replay.MarkDelivered(ctx, item.ID, time.Now()); err != nil {
				return itemSkippedNoSend, fmt.Errorf("replay: mark deduped item %s delivered: %w", item.ID, err)
			}
			return itemSkippedNoSend, nil
		}
	}

	if item.SkipBudgetExceeded() {
		if err := e.replay.UpdateStatus(ctx, item.ID, store.ReplaySkipped, item.Attempts); err != nil {
			return itemSkippedNoSend, fmt.Errorf("replay: mark item %s skipped: %w", item.ID, err)
		}
		return itemSkippedNoSend, nil
	}

	attempts := item.Attempts + 1
	if err := e.replay.UpdateStatus(ctx, item.ID, store.ReplayDelivering, attempts); err != nil {
		return itemSkippedNoSend, fmt.Errorf("replay: mark item %s delivering: %w", item.ID, err)
	}

	// spec.md §4.I step 5: sleep ceil(1000/tier_rate) ms between items,
	// skipped when that pause would be under 100ms.
	if pause := time.Duration((1000+tierRate-1)/tierRate) * time.Millisecond; pause >= 100*time.Millisecond {
		time.Sleep(pause)
	}

	integration, err := e.integrations.GetIntegration(ctx, integrationID)
	if err != nil {
		return itemSkippedNoSend, fmt.Errorf("replay: load integration %s: %w", integrationID, err)
	}

	resp := e.transport.Deliver(ctx, transport.Request{
		URL:           integration.DestinationURL,
		Payload:       event.Payload,
		EventID:       event.ID.String(),
		IntegrationID: integrationID.String(),
		Timestamp:     time.Now(),
		RetryCount:    attempts - 1,
		Replay:        true,
		Timeout:       deliverTimeout,
	})

	outcome := classify.Classify(resp.StatusCode, resp.TransportErr, resp.RetryAfter)
	success := resp.StatusCode >= 200 && resp.StatusCode < 300 && resp.TransportErr == ""

	delivery := &store.Delivery{
		ID:            uuid.New(),
		EventID:       event.ID,
		EndpointID:    &endpointID,
		Status:        deliveryStatus(success),
		ResponseBody:  resp.Body,
		AttemptNumber: attempts,
		AttemptedAt:   time.Now(),
	}
	if resp.StatusCode != 0 {
		sc := resp.StatusCode
		delivery.StatusCode = &sc
	}
	ms := int(resp.ResponseTime.Milliseconds())
	delivery.ResponseTimeMs = &ms
	if !success {
		et := outcome.ErrorType
		delivery.ErrorType = &et
	}

	if err := e.deliveries.Insert(ctx, delivery); err != nil {
		return itemSkippedNoSend, fmt.Errorf("replay: insert delivery for event %s: %w", event.ID, err)
	}

	if _, _, err := e.breaker.RecordDelivery(ctx, endpointID, success, resp.ResponseTime); err != nil {
		return itemSkippedNoSend, fmt.Errorf("replay: record delivery for endpoint %s: %w", endpointID, err)
	}

	if success {
		if err := e.replay.MarkDelivered(ctx, item.ID, time.Now()); err != nil {
			return itemSkippedNoSend, fmt.Errorf("replay: mark item %s delivered: %w", item.ID, err)
		}
		return itemSucceeded, nil
	}

	if err := e.replay.UpdateStatus(ctx, item.ID, store.ReplayPending, attempts); err != nil {
		return itemSkippedNoSend, fmt.Errorf("replay: return item %s to pending: %w", item.ID, err)
	}
	return itemFailed, nil
}

func deliveryStatus(success bool) store.DeliveryStatus {
	if success {
		return store.DeliveryDelivered
	}
	return store.DeliveryFailed
}
