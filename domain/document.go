package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Document is a validated input image plus the identity and geometry the
// pipeline needs. Built once by the facade, read-only afterwards.
type Document struct {
	Data   []byte
	Digest string
	MIME   string
	Width  int
	Height int
}

// NewDocument computes the content digest used for deduplication and caching.
func NewDocument(data []byte) Document {
	sum := sha256.Sum256(data)
	return Document{Data: data, Digest: hex.EncodeToString(sum[:])}
}

// Job is one unit of recognition work handed to an engine.
type Job struct {
	Image         []byte
	Language      string
	Timeout       time.Duration
	CorrelationID string
}
