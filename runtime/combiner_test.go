package runtime

import (
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"ocr-lab/domain"
)

func engineResult(id domain.EngineID, text string, conf float64) *domain.EngineResult {
	return &domain.EngineResult{Engine: id, Text: text, Confidence: conf}
}

func TestSimilarity(t *testing.T) {
	req := require.New(t)

	tests := []struct {
		name     string
		a, b     string
		expected float64
		delta    float64
	}{
		{name: "identical", a: "INVOICE 100", b: "INVOICE 100", expected: 1.0, delta: 0},
		{name: "single substitution", a: "INVOICE 100", b: "INV0ICE 100", expected: 1.0 - 1.0/11.0, delta: 1e-9},
		{name: "both empty", a: "", b: "", expected: 1.0, delta: 0},
		{name: "one empty", a: "text", b: "", expected: 0.0, delta: 0},
		{name: "fully divergent", a: "aaaa", b: "bbbb", expected: 0.0, delta: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req.InDelta(tt.expected, Similarity(tt.a, tt.b), tt.delta)
			req.InDelta(tt.expected, Similarity(tt.b, tt.a), tt.delta)
		})
	}
}

// Similarity must decrease monotonically as random single-character edits
// accumulate on one side of the pair.
func TestSimilarity_MonotonicUnderEdits(t *testing.T) {
	req := require.New(t)
	rng := rand.New(rand.NewSource(7))

	base := "The quick brown fox jumps over the lazy dog near the river bank"
	mutated := []rune(base)
	previous := 1.0

	for i := 0; i < 10; i++ {
		pos := rng.Intn(len(mutated))
		mutated[pos] = '#'
		sim := Similarity(base, string(mutated))
		req.LessOrEqual(sim, previous, "edit %d should not raise similarity", i)
		previous = sim
	}
	req.Less(previous, 1.0)
}

func TestCombiner_PicksHighestConfidenceBase(t *testing.T) {
	req := require.New(t)
	combiner := NewCombiner(logs.GetLoggerFromLevel(slog.LevelDebug))

	results := map[domain.EngineID]*domain.EngineResult{
		domain.EngineTesseract: engineResult(domain.EngineTesseract, "INVOICE 100", 0.81),
		domain.EngineEasyOCR:   engineResult(domain.EngineEasyOCR, "INV0ICE 100", 0.92),
	}

	combined := combiner.Combine(results)
	req.Equal(domain.EngineEnsemble, combined.Engine)
	req.Equal("INV0ICE 100", combined.Text)
	req.InDelta(0.92, combined.Confidence, 1e-9)
	req.Equal("highest-confidence", combined.Method)
	req.InDelta(1.0-1.0/11.0, combined.Agreement, 1e-9)
	req.Len(combined.Sources, 2)
	// Sources keep their own engine tags.
	req.Equal(domain.EngineEasyOCR, combined.Sources[domain.EngineEasyOCR].Engine)
}

func TestCombiner_SingleResultAgreesFully(t *testing.T) {
	req := require.New(t)
	combiner := NewCombiner(logs.GetLoggerFromLevel(slog.LevelDebug))

	combined := combiner.Combine(map[domain.EngineID]*domain.EngineResult{
		domain.EngineTesseract: engineResult(domain.EngineTesseract, "solo", 0.5),
	})
	req.InDelta(1.0, combined.Agreement, 1e-9)
	req.Equal("solo", combined.Text)
}

func TestCombiner_AgreementIsMeanOverPairs(t *testing.T) {
	req := require.New(t)
	combiner := NewCombiner(logs.GetLoggerFromLevel(slog.LevelDebug))

	// Three engines, one outlier. Agreement averages the three pair scores.
	same := strings.Repeat("ab", 10)
	results := map[domain.EngineID]*domain.EngineResult{
		domain.EngineTesseract: engineResult(domain.EngineTesseract, same, 0.9),
		domain.EngineEasyOCR:   engineResult(domain.EngineEasyOCR, same, 0.8),
		domain.EnginePaddleOCR: engineResult(domain.EnginePaddleOCR, strings.Repeat("zz", 10), 0.7),
	}

	expected := (1.0 + 0.0 + 0.0) / 3.0
	combined := combiner.Combine(results)
	req.InDelta(expected, combined.Agreement, 1e-9)
	req.GreaterOrEqual(combined.Agreement, 0.0)
	req.LessOrEqual(combined.Agreement, 1.0)
}

func TestCombiner_TieBreaksDeterministically(t *testing.T) {
	req := require.New(t)
	combiner := NewCombiner(logs.GetLoggerFromLevel(slog.LevelDebug))

	results := map[domain.EngineID]*domain.EngineResult{
		domain.EngineTesseract: engineResult(domain.EngineTesseract, "left", 0.9),
		domain.EngineEasyOCR:   engineResult(domain.EngineEasyOCR, "right", 0.9),
	}

	var first string
	for i := 0; i < 20; i++ {
		combined := combiner.Combine(results)
		if i == 0 {
			first = combined.Text
			continue
		}
		req.Equal(first, combined.Text, fmt.Sprintf("iteration %d", i))
	}
}
