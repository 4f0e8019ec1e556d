//go:build !ocr

// Package ocr wraps the Tesseract engine via gosseract for the native
// in-process recognizer.
//
// This is the stub used when the "ocr" build tag is not set: every call
// returns ErrOCRNotEnabled and the registry reports the native engine as
// unavailable, which partial-availability handling absorbs.
package ocr

import (
	"context"

	"ocr-lab/domain"
	"ocr-lab/errors"
)

// Enabled reports whether the native recognizer is compiled in.
const Enabled = false

type Recognizer struct{}

func New() *Recognizer {
	return &Recognizer{}
}

func (r *Recognizer) Recognize(ctx context.Context, image []byte, language string) ([]domain.Word, error) {
	return nil, errors.ErrOCRNotEnabled
}

func (r *Recognizer) Version() string {
	return "disabled"
}
