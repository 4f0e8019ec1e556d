//go:build ocr

// Package ocr wraps the Tesseract engine via gosseract for the native
// in-process recognizer. It requires Tesseract to be installed; rebuild with
// the "ocr" build tag to enable it:
//
//	go build -tags ocr
//
// On Ubuntu/Debian:
//
//	apt-get install tesseract-ocr libtesseract-dev
package ocr

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"

	"ocr-lab/domain"
)

// Enabled reports whether the native recognizer is compiled in.
const Enabled = true

// Recognizer runs Tesseract on raw image bytes. Not safe for concurrent use;
// each pool worker owns one instance.
type Recognizer struct{}

func New() *Recognizer {
	return &Recognizer{}
}

// Recognize extracts word-level text and boxes from the image.
func (r *Recognizer) Recognize(ctx context.Context, image []byte, language string) ([]domain.Word, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if language != "" {
		if err := client.SetLanguage(language); err != nil {
			return nil, fmt.Errorf("failed to set language %q: %w", language, err)
		}
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("tesseract recognition failed: %w", err)
	}

	words := make([]domain.Word, 0, len(boxes))
	for _, b := range boxes {
		if b.Word == "" {
			continue
		}
		words = append(words, domain.Word{
			Text:       b.Word,
			Confidence: b.Confidence / 100,
			Box: domain.BoundingBox{
				X0: float64(b.Box.Min.X),
				Y0: float64(b.Box.Min.Y),
				X1: float64(b.Box.Max.X),
				Y1: float64(b.Box.Max.Y),
			},
		})
	}
	return words, nil
}

// Version returns the linked Tesseract version string.
func (r *Recognizer) Version() string {
	client := gosseract.NewClient()
	defer client.Close()
	return client.Version()
}
