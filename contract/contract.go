//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"ocr-lab/domain"
	"ocr-lab/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself; the supervisor restarts it on panic.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker,
// avoiding a manual naming method on the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink consumes processing events. A sink must tolerate being called
// concurrently; errors are logged by the fanout and never propagated.
type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

// Engine is the common invoke capability behind every EngineID variant.
type Engine interface {
	ID() domain.EngineID
	Invoke(ctx context.Context, job domain.Job) (*domain.EngineResult, error)
}

type IRegistry interface {
	AvailableEngines() []domain.EngineID
	CapabilitiesOf(id domain.EngineID) (domain.Capabilities, bool)
	Engine(id domain.EngineID) (Engine, bool)
	Resolve(opts domain.Options) ([]domain.EngineID, error)
	Health() domain.HealthStatus
}

// ResultCache is the best-effort cache collaborator. A lookup or store
// failure is logged and ignored by the facade.
type ResultCache interface {
	Lookup(ctx context.Context, key string) (*domain.CompleteResult, bool, error)
	Store(ctx context.Context, key string, result *domain.CompleteResult) error
}

// PostProcessed is what the downstream text collaborator returns.
type PostProcessed struct {
	CorrectedText      string
	Corrections        int
	SemanticConfidence float64
	// HasSemantic distinguishes "no semantic scoring available" from a zero score.
	HasSemantic bool
}

// PostProcessor is the external text post-processing collaborator. Consumed
// only after a successful engine result; its failure downgrades to a warning.
type PostProcessor interface {
	Process(ctx context.Context, text string, opts domain.Options) (PostProcessed, error)
}

// Preprocessor is the pluggable image pre-step. It returns the transformed
// image and the names of the steps applied.
type Preprocessor interface {
	Apply(ctx context.Context, image []byte) ([]byte, []string, error)
}

// SearchIndex receives recognized text for later retrieval.
type SearchIndex interface {
	Index(ctx context.Context, id string, entry domain.SearchEntry) error
}
