package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"ocr-lab/domain"
	"ocr-lab/errors"
	"ocr-lab/services"
)

const TaskRecognize = "ocr:process"

// RecognizeTask is the wire payload of a queued recognition job. Image is
// base64 in transit via encoding/json's []byte handling.
type RecognizeTask struct {
	Image         []byte            `json:"image"`
	Language      string            `json:"language,omitempty"`
	Engines       []domain.EngineID `json:"engines,omitempty"`
	Threshold     float64           `json:"threshold,omitempty"`
	Fallback      bool              `json:"fallback,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
}

// Consumer drains recognition jobs from the Redis-backed queue and hands
// them to the facade. Validation failures are terminal; a fully failed
// engine chain is retried by the queue with its own backoff.
type Consumer struct {
	log     *slog.Logger
	server  *asynq.Server
	mux     *asynq.ServeMux
	service services.IRecognitionService
}

func NewConsumer(log *slog.Logger, redisURI string, concurrency int, service services.IRecognitionService) (*Consumer, error) {
	redisOpt, err := asynq.ParseRedisURI(redisURI)
	if err != nil {
		return nil, fmt.Errorf("parse redis uri: %w", err)
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			delay := time.Duration(5*(1<<uint(n))) * time.Second
			if delay > time.Minute {
				delay = time.Minute
			}
			return delay
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Error("Queued task failed", "type", task.Type(), "error", err)
		}),
	})

	c := &Consumer{log: log, server: server, mux: asynq.NewServeMux(), service: service}
	c.mux.HandleFunc(TaskRecognize, c.handleRecognize)
	return c, nil
}

// Run blocks until Shutdown is called, satisfying the worker contract.
func (c *Consumer) Run(_ context.Context) error {
	c.log.Info("Starting queue consumer")
	return c.server.Run(c.mux)
}

func (c *Consumer) Shutdown() {
	c.server.Shutdown()
}

func (c *Consumer) handleRecognize(ctx context.Context, task *asynq.Task) error {
	var payload RecognizeTask
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal task: %v: %w", err, asynq.SkipRetry)
	}

	started := time.Now()
	result, err := c.service.Recognize(ctx, payload.Image, domain.Options{
		Language:            payload.Language,
		Engines:             payload.Engines,
		ConfidenceThreshold: payload.Threshold,
		Fallback:            payload.Fallback,
		CorrelationID:       payload.CorrelationID,
	})
	if err != nil {
		if stderrors.Is(err, errors.ErrValidation) {
			// Retrying an invalid payload can never succeed.
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	c.log.Info("Queued recognition completed",
		"correlation_id", result.CorrelationID,
		"engine", result.Result.Engine,
		"confidence", result.Result.Confidence,
		"score", result.Score,
		"duration", time.Since(started),
	)
	return nil
}
