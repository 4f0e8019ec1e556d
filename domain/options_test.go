package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ocr-lab/errors"
)

func TestOptions_Normalized_Defaults(t *testing.T) {
	req := require.New(t)

	n := Options{}.Normalized()
	req.Equal(DefaultLanguage, n.Language)
	req.Equal(DefaultTimeout, n.Timeout)
	req.Equal(DefaultMaxRetries, n.MaxRetries)
	req.Empty(n.Engines)
}

func TestOptions_Normalized_DedupesAndSortsEngines(t *testing.T) {
	req := require.New(t)

	n := Options{Engines: []EngineID{EnginePaddleOCR, EngineTesseract, EnginePaddleOCR}}.Normalized()
	req.Equal([]EngineID{EnginePaddleOCR, EngineTesseract}, n.Engines)
}

func TestOptions_Key_IgnoresEngineOrderAndCorrelationID(t *testing.T) {
	req := require.New(t)

	a := Options{
		Engines:       []EngineID{EngineTesseract, EngineEasyOCR},
		CorrelationID: "first",
	}
	b := Options{
		Engines:       []EngineID{EngineEasyOCR, EngineTesseract},
		CorrelationID: "second",
	}

	req.Equal(a.Key("digest"), b.Key("digest"))
}

func TestOptions_Key_DistinguishesRequests(t *testing.T) {
	req := require.New(t)

	base := Options{Language: "eng", Timeout: 10 * time.Second}
	tests := []struct {
		name  string
		other Options
	}{
		{name: "different language", other: Options{Language: "fra", Timeout: 10 * time.Second}},
		{name: "different timeout", other: Options{Language: "eng", Timeout: 20 * time.Second}},
		{name: "different engines", other: Options{Language: "eng", Timeout: 10 * time.Second, Engines: []EngineID{EngineEasyOCR}}},
		{name: "different fallback", other: Options{Language: "eng", Timeout: 10 * time.Second, Fallback: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req.NotEqual(base.Key("digest"), tt.other.Key("digest"))
		})
	}

	req.NotEqual(base.Key("digest-a"), base.Key("digest-b"))
}

func TestOptions_Ensemble(t *testing.T) {
	req := require.New(t)

	req.False(Options{}.Ensemble())
	req.False(Options{Engines: []EngineID{EngineTesseract}}.Ensemble())
	req.True(Options{Engines: []EngineID{EngineEnsemble}}.Ensemble())
}

func TestFallbackChain_ExcludesPrimary(t *testing.T) {
	req := require.New(t)

	req.Equal([]EngineID{EngineEasyOCR, EnginePaddleOCR}, FallbackChain(EngineTesseract))
	req.Equal([]EngineID{EngineTesseract, EnginePaddleOCR}, FallbackChain(EngineEasyOCR))
	// Unknown primaries fall back to the whole table.
	req.Equal([]EngineID{EngineTesseract, EngineEasyOCR, EnginePaddleOCR}, FallbackChain(EngineEnsemble))
}

func TestParseEngineID(t *testing.T) {
	req := require.New(t)

	id, err := ParseEngineID("tesseract")
	req.NoError(err)
	req.Equal(EngineTesseract, id)

	_, err = ParseEngineID("sorcery")
	req.ErrorIs(err, errors.ErrValidation)
}

func TestEngineID_Dispatchable(t *testing.T) {
	req := require.New(t)

	req.True(EngineTesseract.Dispatchable())
	req.True(EngineEasyOCR.Dispatchable())
	req.True(EnginePaddleOCR.Dispatchable())
	req.False(EngineEnsemble.Dispatchable())
	req.False(EngineID("sorcery").Dispatchable())
}
