// Package events carries typed change notifications out of the core.
// Presentation collaborators subscribe to re-render from fresh reads; the
// bus is an eventual-consistency convenience, never a correctness
// mechanism, so publishing can never fail a business operation.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"pmohub/internal/platform/metrics"
)

// Kind classifies a change event.
type Kind string

const (
	KindDocumentCreated    Kind = "document.created"
	KindDocumentUpdated    Kind = "document.updated"
	KindDocumentDeleted    Kind = "document.deleted"
	KindDocumentActivated  Kind = "document.activated"
	KindSubformSaved       Kind = "subform.saved"
	KindArtifactAttached   Kind = "artifact.attached"
	KindScopeChanged       Kind = "scope.changed"
	KindProgressSaved      Kind = "progress.saved"
	KindMigrationCompleted Kind = "migration.completed"
)

// Event is one change notification. Subform is empty for document-level
// events.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Kind       Kind      `json:"kind"`
	DocumentID string    `json:"document_id"`
	Subform    string    `json:"subform,omitempty"`
	At         time.Time `json:"at"`
}

// Bus fans events out to in-process subscribers synchronously and to an
// optional outbox channel drained by a Worker. Subscribers must not call
// back into the operation that published (no recursive recomputation).
type Bus struct {
	mu      sync.RWMutex
	subs    []func(Event)
	outbox  chan Event
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewBus builds a bus with the given outbox buffer size.
func NewBus(logger *slog.Logger, m *metrics.Metrics, buffer int) *Bus {
	return &Bus{
		outbox:  make(chan Event, buffer),
		logger:  logger.With("component", "events"),
		metrics: m,
	}
}

// Subscribe registers a callback invoked synchronously for every event.
func (b *Bus) Subscribe(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

// Outbox exposes the channel a Worker drains into an external sink.
func (b *Bus) Outbox() <-chan Event {
	return b.outbox
}

// Publish emits an event. The outbox send is non-blocking: when the buffer
// is full the event is dropped and logged, keeping publishers unblocked.
func (b *Bus) Publish(kind Kind, documentID, subformName string) {
	event := Event{
		ID:         uuid.New(),
		Kind:       kind,
		DocumentID: documentID,
		Subform:    subformName,
		At:         time.Now(),
	}

	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()
	for _, fn := range subs {
		fn(event)
	}

	select {
	case b.outbox <- event:
	default:
		b.logger.Warn("outbox full, dropping event",
			"kind", string(kind), "document_id", documentID)
	}

	b.metrics.IncEventsPublished()
}
