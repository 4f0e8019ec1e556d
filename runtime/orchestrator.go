// Package runtime coordinates recognition engines: process bridges, the
// native worker pool, the registry, and the orchestration of one request
// into one-or-many engine invocations. It contains no scoring or storage
// logic, only execution.
package runtime

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"ocr-lab/contract"
	"ocr-lab/domain"
	"ocr-lab/domain/event"
	"ocr-lab/errors"
	"ocr-lab/quality"
)

// EnginesError carries the last error of every candidate engine when a whole
// chain failed, for diagnostics.
type EnginesError struct {
	PerEngine map[domain.EngineID]error
}

func (e *EnginesError) Error() string {
	parts := make([]string, 0, len(e.PerEngine))
	ids := make([]domain.EngineID, 0, len(e.PerEngine))
	for id := range e.PerEngine {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s: %v", id, e.PerEngine[id]))
	}
	return fmt.Sprintf("%v [%s]", errors.ErrAllEnginesFailed, strings.Join(parts, "; "))
}

func (e *EnginesError) Unwrap() error { return errors.ErrAllEnginesFailed }

// Outcome is the settled result of one orchestrated execution. Concurrent
// identical requests share a single Outcome instance.
type Outcome struct {
	Result        *domain.EngineResult
	Sources       map[domain.EngineID]*domain.EngineResult
	Method        string
	Agreement     float64
	Warnings      []string
	Preprocessing []string
}

// Orchestrator turns one document request into engine work, with retry,
// backoff, fallback substitution, deduplication, and ensemble fan-out.
type Orchestrator struct {
	log          *slog.Logger
	registry     contract.IRegistry
	combiner     *Combiner
	quality      *quality.Calculator
	preprocessor contract.Preprocessor
	group        singleflight.Group
	events       chan event.Event
	backoffBase  time.Duration
}

// NewOrchestrator wires the orchestrator. backoffBase is the unit of the
// exponential retry delay (a second in production, shrunk in tests);
// preprocessor may be nil.
func NewOrchestrator(
	log *slog.Logger,
	registry contract.IRegistry,
	calculator *quality.Calculator,
	preprocessor contract.Preprocessor,
	bufferSize int,
	backoffBase time.Duration,
) *Orchestrator {
	if backoffBase <= 0 {
		backoffBase = time.Second
	}
	return &Orchestrator{
		log:          log,
		registry:     registry,
		combiner:     NewCombiner(log),
		quality:      calculator,
		preprocessor: preprocessor,
		events:       make(chan event.Event, bufferSize),
		backoffBase:  backoffBase,
	}
}

// Events exposes the lifecycle stream consumed by the fanout worker.
func (o *Orchestrator) Events() <-chan event.Event { return o.events }

/// Emit publishes a lifecycle event. Fire-and-forget: a full channel drops
// the event rather than blocking the pipeline.
func (o *Orchestrator) Emit(e event.Event) {
	select {
	case o.events <- e:
	default:
		o.log.Debug("Event channel full, dropping event", "type", e.Type)
	}
}

// Process runs the full dispatch for one document. Concurrent calls with the
// same (document, normalized options) key share one execution: both callers
// receive the same Outcome, and the in-flight entry is removed when the
// shared execution settles regardless of how it settled.
func (o *Orchestrator) Process(ctx context.Context, doc domain.Document, opts domain.Options) (*Outcome, error) {
	opts = opts.Normalized()
	o.Emit(event.New(event.Started, opts.CorrelationID, nil))

	key := opts.Key(doc.Digest)
	v, err, shared := o.group.Do(key, func() (any, error) {
		return o.execute(ctx, doc, opts)
	})
	if shared {
		o.log.Debug("Request deduplicated onto in-flight execution", "key", key)
	}
	if err != nil {
		o.Emit(event.New(event.Failed, opts.CorrelationID, event.StageNote{Stage: "dispatch", Detail: err.Error()}))
		return nil, err
	}
	return v.(*Outcome), nil
}

func (o *Orchestrator) execute(ctx context.Context, doc domain.Document, opts domain.Options) (*Outcome, error) {
	outcome := &Outcome{Method: "single"}

	image := doc.Data
	if o.preprocessor != nil {
		o.Emit(event.New(event.Preprocessing, opts.CorrelationID, nil))
		processed, steps, err := o.preprocessor.Apply(ctx, doc.Data)
		if err != nil {
			// The pre-step is best effort: recognition proceeds on the raw image.
			o.warn(outcome, opts, fmt.Sprintf("preprocessing failed: %v", err))
		} else {
			image = processed
			outcome.Preprocessing = steps
		}
	}

	engines, err := o.registry.Resolve(opts)
	if err != nil {
		return nil, err
	}

	job := domain.Job{
		Image:         image,
		Language:      opts.Language,
		Timeout:       opts.Timeout,
		CorrelationID: opts.CorrelationID,
	}

	var result *domain.EngineResult
	if len(engines) == 1 && !opts.Ensemble() {
		outcome.Agreement = 1.0
		result, err = o.dispatchSingle(ctx, engines[0], job, opts, outcome)
	} else {
		result, err = o.dispatchParallel(ctx, engines, job, opts, outcome)
	}
	if err != nil {
		return nil, err
	}

	if o.quality != nil {
		metrics := o.quality.Calculate(result.Pages, doc.Width, doc.Height)
		result.Quality = &metrics
	}
	result.Metadata.Preprocessing = outcome.Preprocessing
	outcome.Result = result
	return outcome, nil
}

// dispatchSingle runs the attempt loop on the primary engine, then walks the
// fallback table one-shot. The first engine to succeed wins; its result is
// tagged with its own id, never the primary's.
func (o *Orchestrator) dispatchSingle(
	ctx context.Context,
	primary domain.EngineID,
	job domain.Job,
	opts domain.Options,
	outcome *Outcome,
) (*domain.EngineResult, error) {
	perEngine := make(map[domain.EngineID]error)

	result, err := o.invokeWithRetry(ctx, primary, job, opts)
	if err == nil {
		o.Emit(event.New(event.EngineDone, opts.CorrelationID, event.EngineOutcome{
			Engine: primary, Confidence: result.Confidence, Duration: result.Duration,
		}))
		return result, nil
	}
	perEngine[primary] = err

	if opts.Fallback {
		for _, id := range domain.FallbackChain(primary) {
			engine, ok := o.registry.Engine(id)
			if !ok {
				continue
			}
			o.warn(outcome, opts, fmt.Sprintf("engine %s exhausted, falling back to %s", primary, id))
			o.Emit(event.New(event.EngineSelected, opts.CorrelationID, event.EngineOutcome{Engine: id}))

			// One-shot: no retries layered on a fallback, to bound worst-case latency.
			fbResult, fbErr := engine.Invoke(ctx, job)
			if fbErr == nil {
				o.Emit(event.New(event.EngineDone, opts.CorrelationID, event.EngineOutcome{
					Engine: id, Confidence: fbResult.Confidence, Duration: fbResult.Duration,
				}))
				return fbResult, nil
			}
			perEngine[id] = fbErr
		}
	}

	return nil, &EnginesError{PerEngine: perEngine}
}

// invokeWithRetry runs up to MaxRetries attempts with exponential backoff.
// Timeouts and engine-reported failures feed the backoff policy; a protocol
// error is retried once then escalated; an unavailable engine fails fast.
func (o *Orchestrator) invokeWithRetry(
	ctx context.Context,
	id domain.EngineID,
	job domain.Job,
	opts domain.Options,
) (*domain.EngineResult, error) {
	engine, ok := o.registry.Engine(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrEngineUnavailable, id)
	}

	var last error
	protocolRetried := false

	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 1 {
			delay := o.backoffBase * time.Duration(1<<(attempt-1))
			o.Emit(event.New(event.Warning, opts.CorrelationID, event.StageNote{
				Stage:  "dispatch",
				Detail: fmt.Sprintf("retrying %s, attempt %d after %s", id, attempt, delay),
			}))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %s: %v", errors.ErrEngineTimeout, id, ctx.Err())
			}
		}

		o.Emit(event.New(event.EngineSelected, opts.CorrelationID, event.EngineOutcome{Engine: id}))
		result, err := engine.Invoke(ctx, job)
		if err == nil {
			return result, nil
		}
		last = err
		o.log.Warn("Engine attempt failed", "engine", id, "attempt", attempt, "error", err)

		switch {
		case stderrors.Is(err, errors.ErrBridgeProtocol):
			if protocolRetried {
				return nil, last
			}
			protocolRetried = true
		case stderrors.Is(err, errors.ErrEngineUnavailable):
			return nil, last
		}
	}
	return nil, last
}

// dispatchParallel fans out to every listed engine concurrently. A single
// engine's failure is isolated; the step fails only when every engine fails.
func (o *Orchestrator) dispatchParallel(
	ctx context.Context,
	engines []domain.EngineID,
	job domain.Job,
	opts domain.Options,
	outcome *Outcome,
) (*domain.EngineResult, error) {
	type engineReply struct {
		id     domain.EngineID
		result *domain.EngineResult
		err    error
	}

	replies := make(chan engineReply, len(engines))
	var wg sync.WaitGroup

	for _, id := range engines {
		engine, ok := o.registry.Engine(id)
		if !ok {
			replies <- engineReply{id: id, err: fmt.Errorf("%w: %s", errors.ErrEngineUnavailable, id)}
			continue
		}
		o.Emit(event.New(event.EngineSelected, opts.CorrelationID, event.EngineOutcome{Engine: id}))

		wg.Add(1)
		go func(id domain.EngineID, e contract.Engine) {
			defer wg.Done()
			result, err := e.Invoke(ctx, job)
			replies <- engineReply{id: id, result: result, err: err}
		}(id, engine)
	}

	go func() {
		wg.Wait()
		close(replies)
	}()

	successes := make(map[domain.EngineID]*domain.EngineResult)
	failures := make(map[domain.EngineID]error)
	for reply := range replies {
		if reply.err != nil {
			failures[reply.id] = reply.err
			o.warn(outcome, opts, fmt.Sprintf("engine %s failed: %v", reply.id, reply.err))
			continue
		}
		successes[reply.id] = reply.result
		o.Emit(event.New(event.EngineDone, opts.CorrelationID, event.EngineOutcome{
			Engine: reply.id, Confidence: reply.result.Confidence, Duration: reply.result.Duration,
		}))
	}

	if len(successes) == 0 {
		return nil, &EnginesError{PerEngine: failures}
	}

	combined := o.combiner.Combine(successes)
	outcome.Sources = combined.Sources
	outcome.Method = combined.Method
	outcome.Agreement = combined.Agreement
	return &combined.EngineResult, nil
}

func (o *Orchestrator) warn(outcome *Outcome, opts domain.Options, msg string) {
	outcome.Warnings = append(outcome.Warnings, msg)
	o.Emit(event.New(event.Warning, opts.CorrelationID, event.StageNote{Stage: "dispatch", Detail: msg}))
}
