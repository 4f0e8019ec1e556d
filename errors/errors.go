package errors

import "fmt"

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	// ErrEngineTimeout marks a call that exceeded its wall-clock budget.
	// The bridge protocol has no cancel message, so the process behind a
	// timed-out call is tainted and scheduled for eviction.
	ErrEngineTimeout = fmt.Errorf("engine call timed out")

	// ErrEngineFailure marks a logical failure reported by an engine that
	// did run and answered on the wire.
	ErrEngineFailure = fmt.Errorf("engine reported failure")

	// ErrBridgeProtocol marks a malformed or unparseable bridge response.
	// Retried once (transient framing), then escalated.
	ErrBridgeProtocol = fmt.Errorf("bridge protocol error")

	ErrAllEnginesFailed  = fmt.Errorf("all engines failed")
	ErrValidation        = fmt.Errorf("invalid request")
	ErrEngineUnavailable = fmt.Errorf("engine unavailable")
	ErrBridgeTerminated  = fmt.Errorf("bridge process terminated")
	ErrEngineNotFound    = fmt.Errorf("engine binary not found")
	ErrOCRNotEnabled     = fmt.Errorf("native recognizer not compiled in (rebuild with -tags ocr)")
)
