// Package event defines the processing lifecycle events emitted by the
// orchestrator. The stream is append-only and observational: nothing in the
// pipeline depends on a sink having consumed an event.
package event

import (
	"time"

	"ocr-lab/domain"
)

type Type string

const (
	Started        Type = "started"
	EngineSelected Type = "engine-selected"
	Preprocessing  Type = "preprocessing"
	EngineDone     Type = "engine-completed"
	PostProcessing Type = "post-processing"
	Completed      Type = "completed"
	Failed         Type = "error"
	Warning        Type = "warning"
	Telemetry      Type = "telemetry"
)

type Event struct {
	Type          Type
	CorrelationID string
	CreatedAt     time.Time
	Payload       any
}

func New(t Type, correlationID string, payload any) Event {
	return Event{Type: t, CorrelationID: correlationID, CreatedAt: time.Now().UTC(), Payload: payload}
}

// EngineOutcome reports one engine invocation inside a request.
type EngineOutcome struct {
	Engine     domain.EngineID
	Confidence float64
	Duration   time.Duration
	Err        string
}

// StageNote carries free-form stage information (preprocessing steps applied,
// post-processing corrections, warnings).
type StageNote struct {
	Stage  string
	Detail string
}

// CompletedPayload summarizes a finished request for sinks.
type CompletedPayload struct {
	Engine     domain.EngineID
	Text       string
	Confidence float64
	Score      float64
	Agreement  float64
	Duration   time.Duration
}

// ProcessTracker reports resource usage of a bridged engine process.
type ProcessTracker struct {
	Engine domain.EngineID
	PID    int
	Status string
	CPU    float64
	RAM    float32
}
