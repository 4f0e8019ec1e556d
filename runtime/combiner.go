package runtime

import (
	"log/slog"
	"sort"

	"github.com/agnivade/levenshtein"

	"ocr-lab/domain"
)

// Combiner reconciles the successful results of a multi-engine run into one
// ensemble result. Agreement is informational, never a veto: low agreement
// surfaces as a recommendation downstream, not as an error.
type Combiner struct {
	log *slog.Logger
}

func NewCombiner(log *slog.Logger) *Combiner {
	return &Combiner{log: log}
}

// Combine picks the highest-confidence result as the base and computes the
// mean pairwise text similarity across all engines.
func (c *Combiner) Combine(results map[domain.EngineID]*domain.EngineResult) *domain.EnsembleResult {
	ids := make([]domain.EngineID, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	base := results[ids[0]]
	for _, id := range ids[1:] {
		if results[id].Confidence > base.Confidence {
			base = results[id]
		}
	}

	agreement := c.agreement(ids, results)
	c.log.Debug("Combined ensemble results",
		"engines", len(results), "base", base.Engine, "agreement", agreement)

	combined := *base
	combined.Engine = domain.EngineEnsemble

	return &domain.EnsembleResult{
		EngineResult: combined,
		Sources:      results,
		Method:       "highest-confidence",
		Agreement:    agreement,
	}
}

// agreement is the mean pairwise similarity of the flattened texts, 1.0 when
// fewer than two results exist.
func (c *Combiner) agreement(ids []domain.EngineID, results map[domain.EngineID]*domain.EngineResult) float64 {
	if len(ids) < 2 {
		return 1.0
	}
	var sum float64
	var pairs int
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			sum += Similarity(results[ids[i]].Text, results[ids[j]].Text)
			pairs++
		}
	}
	return sum / float64(pairs)
}

// Similarity is the normalized edit-distance similarity of two strings in
// [0,1]: 1.0 for identical text, 0.0 for fully divergent text.
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1.0
	}
	distance := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(distance)/float64(longest)
}
