package runtime

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"ocr-lab/domain"
	"ocr-lab/domain/event"
	"ocr-lab/errors"
	"ocr-lab/mocks"
)

const testBackoff = time.Millisecond

func testOrchestrator(t *testing.T, registry *mocks.MockIRegistry) *Orchestrator {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	return NewOrchestrator(log, registry, nil, nil, 256, testBackoff)
}

func testDoc() domain.Document {
	return domain.NewDocument([]byte("fake image bytes"))
}

func drainEvents(o *Orchestrator) []event.Event {
	var events []event.Event
	for {
		select {
		case e := <-o.events:
			events = append(events, e)
		default:
			return events
		}
	}
}

func countRetryWarnings(events []event.Event) int {
	count := 0
	for _, e := range events {
		note, ok := e.Payload.(event.StageNote)
		if e.Type == event.Warning && ok && strings.Contains(note.Detail, "retrying") {
			count++
		}
	}
	return count
}

func TestOrchestrator_RetriesThenSucceeds(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockIRegistry(ctrl)
	engine := mocks.NewMockEngine(ctrl)

	opts := domain.Options{Engines: []domain.EngineID{domain.EngineTesseract}, MaxRetries: 3}
	registry.EXPECT().Resolve(gomock.Any()).Return([]domain.EngineID{domain.EngineTesseract}, nil)
	registry.EXPECT().Engine(domain.EngineTesseract).Return(engine, true)

	success := engineResult(domain.EngineTesseract, "recovered", 0.9)
	gomock.InOrder(
		engine.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return(nil, errors.ErrEngineFailure),
		engine.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return(nil, errors.ErrEngineTimeout),
		engine.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return(success, nil),
	)

	o := testOrchestrator(t, registry)
	outcome, err := o.Process(context.Background(), testDoc(), opts)
	req.NoError(err)
	req.Equal("recovered", outcome.Result.Text)
	req.InDelta(1.0, outcome.Agreement, 1e-9)

	// Two failed attempts mean exactly two backoff delays were taken.
	req.Equal(2, countRetryWarnings(drainEvents(o)))
}

func TestOrchestrator_ProtocolErrorRetriedOnce(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockIRegistry(ctrl)
	engine := mocks.NewMockEngine(ctrl)

	opts := domain.Options{Engines: []domain.EngineID{domain.EngineEasyOCR}, MaxRetries: 5}
	registry.EXPECT().Resolve(gomock.Any()).Return([]domain.EngineID{domain.EngineEasyOCR}, nil)
	registry.EXPECT().Engine(domain.EngineEasyOCR).Return(engine, true)

	// Despite five allowed attempts, a second protocol error escalates.
	engine.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return(nil, errors.ErrBridgeProtocol).Times(2)

	o := testOrchestrator(t, registry)
	_, err := o.Process(context.Background(), testDoc(), opts)
	req.ErrorIs(err, errors.ErrAllEnginesFailed)
}

func TestOrchestrator_UnavailableEngineFailsFast(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockIRegistry(ctrl)
	engine := mocks.NewMockEngine(ctrl)

	opts := domain.Options{Engines: []domain.EngineID{domain.EngineTesseract}, MaxRetries: 5}
	registry.EXPECT().Resolve(gomock.Any()).Return([]domain.EngineID{domain.EngineTesseract}, nil)
	registry.EXPECT().Engine(domain.EngineTesseract).Return(engine, true)

	engine.EXPECT().Invoke(gomock.Any(), gomock.Any()).
		Return(nil, errors.ErrEngineUnavailable).Times(1)

	o := testOrchestrator(t, registry)
	start := time.Now()
	_, err := o.Process(context.Background(), testDoc(), opts)
	req.ErrorIs(err, errors.ErrAllEnginesFailed)
	// No backoff delays were taken.
	req.Less(time.Since(start), 500*time.Millisecond)
}

func TestOrchestrator_FallbackTagsResultWithFallbackEngine(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockIRegistry(ctrl)
	primary := mocks.NewMockEngine(ctrl)
	fallback := mocks.NewMockEngine(ctrl)

	opts := domain.Options{
		Engines:    []domain.EngineID{domain.EngineTesseract},
		MaxRetries: 2,
		Fallback:   true,
	}
	registry.EXPECT().Resolve(gomock.Any()).Return([]domain.EngineID{domain.EngineTesseract}, nil)
	registry.EXPECT().Engine(domain.EngineTesseract).Return(primary, true)
	registry.EXPECT().Engine(domain.EngineEasyOCR).Return(fallback, true)

	primary.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return(nil, errors.ErrEngineFailure).Times(2)
	// The fallback runs one-shot, no retries layered on top.
	fallback.EXPECT().Invoke(gomock.Any(), gomock.Any()).
		Return(engineResult(domain.EngineEasyOCR, "saved by fallback", 0.7), nil).Times(1)

	o := testOrchestrator(t, registry)
	outcome, err := o.Process(context.Background(), testDoc(), opts)
	req.NoError(err)
	req.Equal(domain.EngineEasyOCR, outcome.Result.Engine)
	req.NotEmpty(outcome.Warnings)
	req.Contains(outcome.Warnings[0], "falling back")
}

func TestOrchestrator_FallbackDisabledReturnsAllEnginesFailed(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockIRegistry(ctrl)
	engine := mocks.NewMockEngine(ctrl)

	opts := domain.Options{Engines: []domain.EngineID{domain.EngineTesseract}, MaxRetries: 2}
	registry.EXPECT().Resolve(gomock.Any()).Return([]domain.EngineID{domain.EngineTesseract}, nil)
	registry.EXPECT().Engine(domain.EngineTesseract).Return(engine, true)
	engine.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return(nil, errors.ErrEngineFailure).Times(2)

	o := testOrchestrator(t, registry)
	_, err := o.Process(context.Background(), testDoc(), opts)
	req.ErrorIs(err, errors.ErrAllEnginesFailed)

	var enginesErr *EnginesError
	req.ErrorAs(err, &enginesErr)
	req.Contains(enginesErr.PerEngine, domain.EngineTesseract)
}

func TestOrchestrator_DeduplicatesConcurrentIdenticalRequests(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockIRegistry(ctrl)
	engine := mocks.NewMockEngine(ctrl)

	opts := domain.Options{Engines: []domain.EngineID{domain.EngineTesseract}}
	registry.EXPECT().Resolve(gomock.Any()).
		Return([]domain.EngineID{domain.EngineTesseract}, nil).Times(1)
	registry.EXPECT().Engine(domain.EngineTesseract).Return(engine, true).Times(1)

	// The invocation is slow enough that every caller lands on the in-flight
	// execution, and strict: at most one engine call for N identical requests.
	engine.EXPECT().Invoke(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, domain.Job) (*domain.EngineResult, error) {
			time.Sleep(100 * time.Millisecond)
			return engineResult(domain.EngineTesseract, "shared", 0.9), nil
		}).Times(1)

	o := testOrchestrator(t, registry)
	doc := testDoc()

	const callers = 5
	outcomes := make([]*Outcome, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := o.Process(context.Background(), doc, opts)
			require.NoError(t, err)
			outcomes[i] = outcome
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		req.Same(outcomes[0], outcomes[i])
	}

	// The in-flight entry is removed once settled: a later identical request
	// triggers a fresh execution.
	registry.EXPECT().Resolve(gomock.Any()).
		Return([]domain.EngineID{domain.EngineTesseract}, nil).Times(1)
	registry.EXPECT().Engine(domain.EngineTesseract).Return(engine, true).Times(1)
	engine.EXPECT().Invoke(gomock.Any(), gomock.Any()).
		Return(engineResult(domain.EngineTesseract, "fresh", 0.9), nil).Times(1)

	outcome, err := o.Process(context.Background(), doc, opts)
	req.NoError(err)
	req.Equal("fresh", outcome.Result.Text)
}

func TestOrchestrator_EnsembleToleratesPartialFailure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockIRegistry(ctrl)
	good := mocks.NewMockEngine(ctrl)
	alsoGood := mocks.NewMockEngine(ctrl)
	broken := mocks.NewMockEngine(ctrl)

	opts := domain.Options{Engines: []domain.EngineID{domain.EngineEnsemble}}
	all := []domain.EngineID{domain.EngineEasyOCR, domain.EnginePaddleOCR, domain.EngineTesseract}
	registry.EXPECT().Resolve(gomock.Any()).Return(all, nil)
	registry.EXPECT().Engine(domain.EngineEasyOCR).Return(good, true)
	registry.EXPECT().Engine(domain.EnginePaddleOCR).Return(alsoGood, true)
	registry.EXPECT().Engine(domain.EngineTesseract).Return(broken, true)

	good.EXPECT().Invoke(gomock.Any(), gomock.Any()).
		Return(engineResult(domain.EngineEasyOCR, "INVOICE 100", 0.95), nil)
	alsoGood.EXPECT().Invoke(gomock.Any(), gomock.Any()).
		Return(engineResult(domain.EnginePaddleOCR, "INV0ICE 100", 0.85), nil)
	broken.EXPECT().Invoke(gomock.Any(), gomock.Any()).
		Return(nil, errors.ErrEngineFailure)

	o := testOrchestrator(t, registry)
	outcome, err := o.Process(context.Background(), testDoc(), opts)
	req.NoError(err)
	req.Equal(domain.EngineEnsemble, outcome.Result.Engine)
	req.Equal("INVOICE 100", outcome.Result.Text)
	req.Len(outcome.Sources, 2)
	req.Equal("highest-confidence", outcome.Method)
	req.NotEmpty(outcome.Warnings)
}

func TestOrchestrator_EnsembleAllFail(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockIRegistry(ctrl)
	a := mocks.NewMockEngine(ctrl)
	b := mocks.NewMockEngine(ctrl)

	opts := domain.Options{Engines: []domain.EngineID{domain.EngineEnsemble}}
	registry.EXPECT().Resolve(gomock.Any()).
		Return([]domain.EngineID{domain.EngineEasyOCR, domain.EngineTesseract}, nil)
	registry.EXPECT().Engine(domain.EngineEasyOCR).Return(a, true)
	registry.EXPECT().Engine(domain.EngineTesseract).Return(b, true)

	a.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return(nil, errors.ErrEngineTimeout)
	b.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return(nil, errors.ErrEngineFailure)

	o := testOrchestrator(t, registry)
	_, err := o.Process(context.Background(), testDoc(), opts)
	req.ErrorIs(err, errors.ErrAllEnginesFailed)

	var enginesErr *EnginesError
	req.ErrorAs(err, &enginesErr)
	req.Len(enginesErr.PerEngine, 2)
}

func TestOrchestrator_ResolveErrorPropagates(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockIRegistry(ctrl)

	registry.EXPECT().Resolve(gomock.Any()).Return(nil, errors.ErrEngineUnavailable)

	o := testOrchestrator(t, registry)
	_, err := o.Process(context.Background(), testDoc(), domain.Options{})
	req.ErrorIs(err, errors.ErrEngineUnavailable)
}

func TestOrchestrator_EmitDropsWhenChannelFull(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockIRegistry(ctrl)

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	o := NewOrchestrator(log, registry, nil, nil, 1, testBackoff)

	o.Emit(event.New(event.Started, "a", nil))
	// A full channel must never block the caller.
	done := make(chan struct{})
	go func() {
		o.Emit(event.New(event.Started, "b", nil))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("Emit blocked on a full channel")
	}
}
