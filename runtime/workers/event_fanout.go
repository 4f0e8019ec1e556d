package workers

import (
	"context"
	"log/slog"
	"time"

	"ocr-lab/contract"
	"ocr-lab/domain/event"
)

// EventFanout broadcasts processing events to the registered sinks.
//
// It provides best-effort fan-out with no guarantees regarding delivery,
// ordering across sinks, durability, or retries. EventFanout is not a
// message broker: it exists for observability and side effects (logs,
// search indexing, metrics), never for pipeline control flow.
//
// A sink that returns an error or panics is logged and skipped; nothing a
// sink does can fail the pipeline.
type EventFanout struct {
	log         *slog.Logger
	events      <-chan event.Event
	sinkTimeout time.Duration
	sinks       []contract.EventSink
}

func NewEventFanout(log *slog.Logger, events <-chan event.Event, sinkTimeout time.Duration) *EventFanout {
	return &EventFanout{log: log, events: events, sinkTimeout: sinkTimeout}
}

func (w *EventFanout) Add(sinks ...contract.EventSink) *EventFanout {
	w.sinks = append(w.sinks, sinks...)
	return w
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fanout")
			return nil
		case evt, ok := <-w.events:
			if !ok {
				w.log.Debug("Event channel is closed")
				return nil
			}
			w.Fanout(ctx, evt)
		}
	}
}

// Fanout delivers one event to every sink, each under its own timeout.
func (w *EventFanout) Fanout(ctx context.Context, evt event.Event) {
	for _, sink := range w.sinks {
		w.consume(ctx, sink, evt)
	}
}

func (w *EventFanout) consume(ctx context.Context, sink contract.EventSink, evt event.Event) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Sink panicked, event skipped", "type", evt.Type, "panic", r)
		}
	}()

	sinkCtx := ctx
	if w.sinkTimeout > 0 {
		var cancel context.CancelFunc
		sinkCtx, cancel = context.WithTimeout(ctx, w.sinkTimeout)
		defer cancel()
	}

	if err := sink.Consume(sinkCtx, evt); err != nil {
		w.log.Warn("Sink failed to consume event", "type", evt.Type, "error", err)
	}
}
