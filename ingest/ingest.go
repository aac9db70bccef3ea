// Package ingest implements POST /ingest/{integration_id}, the fast path
// that verifies a provider's signature, stores the Event, and hands off
// delivery to the task queue without waiting on it (spec.md §4.F).
package ingest

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hookwise/core/binder"
	"github.com/hookwise/core/handler"
	"github.com/hookwise/core/pkg/queue"
	"github.com/hookwise/core/signature"
	"github.com/hookwise/core/store"
	"github.com/hookwise/core/tasks"
)

// Service serves the ingestion endpoint.
type Service struct {
	integrations store.IntegrationStore
	events       store.EventStore
	enqueuer     *queue.Enqueuer
	errorHandler handler.ErrorHandler[handler.Context]
	logger       *slog.Logger
}

// New builds a Service.
func New(integrations store.IntegrationStore, events store.EventStore, enqueuer *queue.Enqueuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		integrations: integrations,
		events:       events,
		enqueuer:     enqueuer,
		errorHandler: handler.NewErrorHandler(logger),
		logger:       logger,
	}
}

// receiveRequest binds only the path parameter. The raw body is read
// directly off the request inside receive, bypassing the binder package's
// form/json decoding since the body must be stored unparsed (spec.md §4.F
// step 4).
type receiveRequest struct {
	IntegrationID string `path:"integration_id"`
}

// receivedResponse renders the bare 200 {"received":true} acknowledgement,
// without the {"data": ...} envelope that handler.JSON adds.
type receivedResponse struct{}

func (receivedResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	return json.NewEncoder(w).Encode(map[string]bool{"received": true})
}

// Handle mounts the endpoint, satisfying the teacher's Mountable convention
// (modules/account.Router's RouterOptions pattern).
func (s *Service) Handle() http.Handler {
	r := chi.NewRouter()
	r.Post("/{integration_id}", handler.Wrap(
		handler.HandlerFunc[handler.Context, receiveRequest](s.receive),
		handler.WithBinders[handler.Context, receiveRequest](binder.Path(chi.URLParam)),
		handler.WithErrorHandler[handler.Context, receiveRequest](s.errorHandler),
	))
	return r
}

func (s *Service) receive(ctx handler.Context, req receiveRequest) handler.Response {
	integrationID, err := uuid.Parse(req.IntegrationID)
	if err != nil {
		return handler.JSONError(handler.ErrNotFound)
	}

	integration, err := s.integrations.GetIntegration(ctx, integrationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return handler.JSONError(handler.ErrNotFound)
		}
		s.logger.Error("load integration failed", "integration_id", integrationID, "error", err)
		return handler.JSONError(handler.ErrInternalServerError)
	}
	if !integration.Active() {
		return handler.JSONError(handler.ErrConflict)
	}

	r := ctx.Request()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return handler.JSONError(handler.ErrBadRequest)
	}

	headers := lowercaseHeaders(r.Header)

	verifier, err := signature.ForProvider(string(integration.Provider), integration.SigningSecret)
	if err != nil {
		s.logger.Error("no verifier for provider", "provider", integration.Provider, "error", err)
		return handler.JSONError(handler.ErrInternalServerError)
	}
	result := verifier.Verify(body, headers)

	payloadBlob, eventType, providerEventID := parsePayload(body, result.EventType, result.ProviderEventID)

	event := &store.Event{
		ID:             uuid.New(),
		IntegrationID:  integrationID,
		EventType:      eventType,
		Payload:        payloadBlob,
		Headers:        headers,
		ReceivedAt:     time.Now(),
		SignatureValid: result.Valid,
		Source:         store.EventSourceWebhook,
	}
	if providerEventID != "" {
		id := providerEventID
		event.ProviderEventID = &id
	}

	if err := s.events.Insert(ctx, event); err != nil {
		s.logger.Error("insert event failed", "integration_id", integrationID, "error", err)
		return handler.JSONError(handler.ErrInternalServerError)
	}

	task := tasks.WebhookReceivedPayload{
		EventID:        event.ID,
		IntegrationID:  integrationID,
		DestinationURL: integration.DestinationURL,
	}
	if err := s.enqueuer.Enqueue(ctx, task, queue.WithTaskName(tasks.WebhookReceived)); err != nil {
		// Never block the producer's response on task-queue failure; an
		// orphaned event is repaired by the sweeper (spec.md §4.F, §7).
		s.logger.Error("enqueue webhook/received failed", "event_id", event.ID, "error", err)
	}

	return receivedResponse{}
}

func lowercaseHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) == 0 {
			continue
		}
		out[strings.ToLower(k)] = v[0]
	}
	return out
}

// parsePayload attempts to parse body as JSON, storing it unchanged on
// success. On parse failure it wraps the raw body as {"raw": "<string>"}
// per spec.md §4.F step 4. Stripe carries its event type and id in the
// body rather than headers, so when the verifier leaves either blank this
// falls back to the body's "type"/"id" fields.
func parsePayload(body []byte, verifierEventType, verifierEventID string) (payload []byte, eventType, providerEventID string) {
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		wrapped, _ := json.Marshal(map[string]string{"raw": string(body)})
		return wrapped, verifierEventType, verifierEventID
	}

	eventType = verifierEventType
	if eventType == "" {
		if t, ok := decoded["type"].(string); ok {
			eventType = t
		}
	}

	providerEventID = verifierEventID
	if providerEventID == "" {
		if id, ok := decoded["id"].(string); ok {
			providerEventID = id
		}
	}

	return body, eventType, providerEventID
}
