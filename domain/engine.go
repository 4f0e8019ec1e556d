package domain

import (
	"fmt"

	"ocr-lab/errors"
)

// EngineID identifies a recognition backend. The set is closed: adding an
// engine means adding a constant here and an implementation behind it.
type EngineID string

const (
	// EngineTesseract is the native in-process engine, served by the worker pool.
	EngineTesseract EngineID = "tesseract"
	// EngineEasyOCR is an external Python process bridged over stdio.
	EngineEasyOCR EngineID = "easyocr"
	// EnginePaddleOCR is an external Python process bridged over stdio.
	EnginePaddleOCR EngineID = "paddleocr"
	// EngineEnsemble is a synthetic identifier tagging combined results.
	// It is never a dispatch target.
	EngineEnsemble EngineID = "ensemble"
)

// Dispatchable reports whether the identifier can be sent work directly.
func (e EngineID) Dispatchable() bool {
	switch e {
	case EngineTesseract, EngineEasyOCR, EnginePaddleOCR:
		return true
	}
	return false
}

func ParseEngineID(s string) (EngineID, error) {
	switch EngineID(s) {
	case EngineTesseract, EngineEasyOCR, EnginePaddleOCR, EngineEnsemble:
		return EngineID(s), nil
	}
	return "", fmt.Errorf("%w: unknown engine %q", errors.ErrValidation, s)
}

// fallbackOrder is the static substitution table: when a primary engine
// exhausts its retries, untried engines are attempted one-shot in this order.
var fallbackOrder = []EngineID{EngineTesseract, EngineEasyOCR, EnginePaddleOCR}

// FallbackChain returns the engines to try after primary failed, in table
// order, excluding the primary itself.
func FallbackChain(primary EngineID) []EngineID {
	var chain []EngineID
	for _, id := range fallbackOrder {
		if id != primary {
			chain = append(chain, id)
		}
	}
	return chain
}

// Capabilities describes what a probed engine can handle.
type Capabilities struct {
	Languages []string
	Formats   []string
	Features  []string
}
