package sink

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"ocr-lab/domain"
	"ocr-lab/domain/event"
	"ocr-lab/mocks"
)

func completedEvent(id, text string) event.Event {
	return event.New(event.Completed, id, event.CompletedPayload{
		Engine:     domain.EngineTesseract,
		Text:       text,
		Confidence: 0.9,
		Score:      0.85,
	})
}

func TestSearchSink_FlushesOnThreshold(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	index := mocks.NewMockSearchIndex(ctrl)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	index.EXPECT().Index(gomock.Any(), "req-1", gomock.Any()).Return(nil)
	index.EXPECT().Index(gomock.Any(), "req-2", gomock.Any()).Return(nil)

	s := NewSearchSink(index, log, 2, time.Hour)
	req.NoError(s.Consume(context.Background(), completedEvent("req-1", "first text")))
	req.NoError(s.Consume(context.Background(), completedEvent("req-2", "second text")))
}

func TestSearchSink_FlushesOnTimeout(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	index := mocks.NewMockSearchIndex(ctrl)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	indexed := make(chan struct{}, 1)
	index.EXPECT().Index(gomock.Any(), "req-1", gomock.Any()).
		DoAndReturn(func(context.Context, string, domain.SearchEntry) error {
			indexed <- struct{}{}
			return nil
		})

	s := NewSearchSink(index, log, 100, 20*time.Millisecond)
	req.NoError(s.Consume(context.Background(), completedEvent("req-1", "timed text")))

	select {
	case <-indexed:
	case <-time.After(2 * time.Second):
		req.Fail("time-based flush did not fire")
	}
}

func TestSearchSink_IgnoresNonCompletedAndEmptyText(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	index := mocks.NewMockSearchIndex(ctrl)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	// No Index expectations: nothing below may reach the index.
	s := NewSearchSink(index, log, 1, time.Hour)
	req.NoError(s.Consume(context.Background(), event.New(event.Started, "req-1", nil)))
	req.NoError(s.Consume(context.Background(), event.New(event.Warning, "req-1", event.StageNote{Stage: "dispatch"})))
	req.NoError(s.Consume(context.Background(), completedEvent("req-1", "")))
	s.Flush()
}

func TestSearchSink_IndexErrorIsLoggedNotPropagated(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	index := mocks.NewMockSearchIndex(ctrl)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	index.EXPECT().Index(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(context.DeadlineExceeded)

	s := NewSearchSink(index, log, 1, time.Hour)
	req.NoError(s.Consume(context.Background(), completedEvent("req-1", "text")))
}

func TestSearchSink_FlushIsIdempotent(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	index := mocks.NewMockSearchIndex(ctrl)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	index.EXPECT().Index(gomock.Any(), "req-1", gomock.Any()).Return(nil).Times(1)

	s := NewSearchSink(index, log, 100, time.Hour)
	req.NoError(s.Consume(context.Background(), completedEvent("req-1", "once")))
	s.Flush()
	s.Flush()
}
