package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
)

const (
	DefaultLanguage   = "eng"
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
)

// Options is an immutable value carried through a whole recognition call.
// Callers build it once; the pipeline only ever reads it.
type Options struct {
	Language string `validate:"omitempty,alpha,min=2,max=8"`
	// Engines selects execution: empty means "first available single engine",
	// one id means single-engine with retry and fallback, several ids mean
	// parallel multi-engine, and EngineEnsemble means every available engine.
	Engines             []EngineID
	ConfidenceThreshold float64       `validate:"gte=0,lte=1"`
	Timeout             time.Duration `validate:"gte=0"`
	MaxRetries          int           `validate:"gte=0,lte=10"`
	Fallback            bool
	CorrelationID       string
}

// Normalized returns a copy with defaults applied and the engine list sorted
// and deduplicated, so that equivalent requests produce equal dedup keys.
func (o Options) Normalized() Options {
	n := o
	if n.Language == "" {
		n.Language = DefaultLanguage
	}
	if n.Timeout <= 0 {
		n.Timeout = DefaultTimeout
	}
	if n.MaxRetries <= 0 {
		n.MaxRetries = DefaultMaxRetries
	}
	if len(n.Engines) > 0 {
		engines := lo.Uniq(n.Engines)
		sort.Slice(engines, func(i, j int) bool { return engines[i] < engines[j] })
		n.Engines = engines
	}
	return n
}

// Ensemble reports whether the selector asks for an ensemble run.
func (o Options) Ensemble() bool {
	return lo.Contains(o.Engines, EngineEnsemble)
}

// Key derives the deduplication key from the document digest and the
// normalized options. The correlation id is deliberately excluded: two
// callers with different ids still share one execution.
func (o Options) Key(documentDigest string) string {
	n := o.Normalized()
	engines := make([]string, len(n.Engines))
	for i, e := range n.Engines {
		engines[i] = string(e)
	}
	return fmt.Sprintf("%s|%s|%s|%.3f|%d|%t|%s",
		documentDigest,
		n.Language,
		strings.Join(engines, ","),
		n.ConfidenceThreshold,
		n.MaxRetries,
		n.Fallback,
		n.Timeout,
	)
}
