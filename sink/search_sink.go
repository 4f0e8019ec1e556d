package sink

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"ocr-lab/contract"
	"ocr-lab/domain"
	"ocr-lab/domain/event"
)

type indexedEvent struct {
	id    string
	entry domain.SearchEntry
}

// SearchSink feeds completed recognitions into the search index. It acts as
// a buffer that aggregates completed events; the flush is triggered either
// by reaching a size threshold (maxBuffered) or a time-based deadline
// (flushTimeout), so a slow index never sits on the event fanout path.
type SearchSink struct {
	mu           sync.Mutex
	timer        *time.Timer
	index        contract.SearchIndex
	log          *slog.Logger
	events       []indexedEvent
	maxBuffered  int
	flushTimeout time.Duration
}

func NewSearchSink(index contract.SearchIndex, log *slog.Logger, maxBuffered int, flushTimeout time.Duration) *SearchSink {
	return &SearchSink{
		index:        index,
		log:          log,
		maxBuffered:  maxBuffered,
		flushTimeout: flushTimeout,
	}
}

// Consume implements the EventSink interface. Only completed events carry
// indexable text; everything else passes through untouched.
func (s *SearchSink) Consume(_ context.Context, e event.Event) error {
	payload, ok := e.Payload.(event.CompletedPayload)
	if !ok || e.Type != event.Completed || payload.Text == "" {
		return nil
	}

	id := e.CorrelationID
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, indexedEvent{
		id: id,
		entry: domain.SearchEntry{
			Text:       payload.Text,
			Engine:     payload.Engine,
			Confidence: payload.Confidence,
			Score:      payload.Score,
			At:         e.CreatedAt,
		},
	})

	if len(s.events) >= s.maxBuffered {
		s.flushLocked()
		return nil
	}

	if s.timer == nil {
		s.timer = time.AfterFunc(s.flushTimeout, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.flushLocked()
		})
	}
	return nil
}

// Flush forces the pending buffer into the index, used at shutdown.
func (s *SearchSink) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
}

func (s *SearchSink) flushLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if len(s.events) == 0 {
		return
	}

	for _, evt := range s.events {
		if err := s.index.Index(context.Background(), evt.id, evt.entry); err != nil {
			s.log.Warn("Failed to index recognition", "id", evt.id, "error", err)
		}
	}
	s.log.Debug("Flushed recognitions to search index", "count", len(s.events))
	s.events = nil
}
