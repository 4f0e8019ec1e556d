package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"ocr-lab/domain"
	"ocr-lab/errors"
)

type stubService struct {
	lastImage []byte
	lastOpts  domain.Options
	result    *domain.CompleteResult
	err       error
}

func (s *stubService) Recognize(_ context.Context, image []byte, opts domain.Options) (*domain.CompleteResult, error) {
	s.lastImage = image
	s.lastOpts = opts
	return s.result, s.err
}

func (s *stubService) Search(context.Context, string, int) ([]domain.SearchHit, error) {
	return nil, nil
}

func (s *stubService) Health() domain.HealthStatus {
	return domain.HealthStatus{}
}

func testConsumer(service *stubService) *Consumer {
	return &Consumer{
		log:     logs.GetLoggerFromLevel(slog.LevelDebug),
		mux:     asynq.NewServeMux(),
		service: service,
	}
}

func recognizeTask(t *testing.T, payload RecognizeTask) *asynq.Task {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(TaskRecognize, raw)
}

func TestConsumer_HandleRecognize(t *testing.T) {
	req := require.New(t)
	service := &stubService{result: &domain.CompleteResult{
		Result:        &domain.EngineResult{Engine: domain.EngineTesseract, Text: "hello", Confidence: 0.92},
		Score:         0.88,
		CorrelationID: "corr-1",
	}}
	consumer := testConsumer(service)

	task := recognizeTask(t, RecognizeTask{
		Image:         []byte{0x89, 0x50, 0x4e, 0x47},
		Language:      "fra",
		Engines:       []domain.EngineID{domain.EngineTesseract},
		Threshold:     0.7,
		Fallback:      true,
		CorrelationID: "corr-1",
	})

	req.NoError(consumer.handleRecognize(context.Background(), task))
	req.Equal([]byte{0x89, 0x50, 0x4e, 0x47}, service.lastImage)
	req.Equal("fra", service.lastOpts.Language)
	req.Equal([]domain.EngineID{domain.EngineTesseract}, service.lastOpts.Engines)
	req.InDelta(0.7, service.lastOpts.ConfidenceThreshold, 1e-9)
	req.True(service.lastOpts.Fallback)
	req.Equal("corr-1", service.lastOpts.CorrelationID)
}

func TestConsumer_HandleRecognizeMalformedPayloadIsTerminal(t *testing.T) {
	req := require.New(t)
	consumer := testConsumer(&stubService{})

	err := consumer.handleRecognize(context.Background(), asynq.NewTask(TaskRecognize, []byte("{not json")))
	req.Error(err)
	req.ErrorIs(err, asynq.SkipRetry)
}

func TestConsumer_HandleRecognizeValidationFailureIsTerminal(t *testing.T) {
	req := require.New(t)
	service := &stubService{err: fmt.Errorf("%w: empty image", errors.ErrValidation)}
	consumer := testConsumer(service)

	err := consumer.handleRecognize(context.Background(), recognizeTask(t, RecognizeTask{}))
	req.Error(err)
	req.ErrorIs(err, asynq.SkipRetry)
}

func TestConsumer_HandleRecognizeEngineFailureIsRetried(t *testing.T) {
	req := require.New(t)
	service := &stubService{err: errors.ErrAllEnginesFailed}
	consumer := testConsumer(service)

	err := consumer.handleRecognize(context.Background(), recognizeTask(t, RecognizeTask{Image: []byte{0x01}}))
	req.Error(err)
	req.False(stderrors.Is(err, asynq.SkipRetry))
	req.ErrorIs(err, errors.ErrAllEnginesFailed)
}
