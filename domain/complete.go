package domain

import "time"

// CompleteResult is the facade's structured answer. Errors and warnings are
// explicit arrays; the only conditions surfaced as Go errors to the caller
// are validation failures and a fully failed engine chain.
type CompleteResult struct {
	Result    *EngineResult              `json:"result"`
	Sources   map[EngineID]*EngineResult `json:"sources,omitempty"`
	Method    string                     `json:"method"`
	Agreement float64                    `json:"agreement"`

	Score           float64  `json:"score"`
	Recommendations []string `json:"recommendations,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
	Errors          []string `json:"errors,omitempty"`

	FromCache     bool      `json:"from_cache"`
	CorrelationID string    `json:"correlation_id"`
	CompletedAt   time.Time `json:"completed_at"`
}

// SearchEntry is what the search index stores per completed recognition.
type SearchEntry struct {
	Text       string
	Engine     EngineID
	Language   string
	Confidence float64
	Score      float64
	At         time.Time
}

// SearchHit is one search index match.
type SearchHit struct {
	ID         string
	Text       string
	Engine     string
	Confidence float64
}
