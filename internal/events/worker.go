package events

import (
	"context"
	"log/slog"
)

// Sink receives events drained from the bus outbox.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// Worker consumes events from the outbox and forwards them to a sink. Sink
// failures are logged and the event is dropped; the sink is best-effort.
type Worker struct {
	sink   Sink
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(sink Sink, inbox <-chan Event, logger *slog.Logger) *Worker {
	return &Worker{sink: sink, inbox: inbox, logger: logger.With("component", "events-worker")}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.sink.Publish(ctx, event); err != nil {
				w.logger.WarnContext(ctx, "sink publish failed",
					"kind", string(event.Kind),
					"document_id", event.DocumentID,
					"error", err,
				)
			}
		}
	}
}
