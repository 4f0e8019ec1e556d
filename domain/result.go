package domain

import (
	"strings"
	"time"
)

// BoundingBox is an axis-aligned rectangle in pixel coordinates.
type BoundingBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

func (b BoundingBox) Width() float64  { return b.X1 - b.X0 }
func (b BoundingBox) Height() float64 { return b.Y1 - b.Y0 }

func (b BoundingBox) CenterY() float64 { return (b.Y0 + b.Y1) / 2 }

// Union returns the smallest box covering both b and other.
func (b BoundingBox) Union(other BoundingBox) BoundingBox {
	return BoundingBox{
		X0: min(b.X0, other.X0),
		Y0: min(b.Y0, other.Y0),
		X1: max(b.X1, other.X1),
		Y1: max(b.Y1, other.Y1),
	}
}

// Word is a recognized text span. Words are owned by the Page that produced
// them and are never mutated after assembly.
type Word struct {
	Text       string      `json:"text"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"box"`
	// Informational indices, no back-references.
	LineIndex      int `json:"line,omitempty"`
	ParagraphIndex int `json:"paragraph,omitempty"`
	BlockIndex     int `json:"block,omitempty"`
}

// Line groups spatially adjacent words. Its confidence is the unweighted
// mean of its words, its box the union of their boxes.
type Line struct {
	Words      []Word      `json:"words"`
	Text       string      `json:"text"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"box"`
}

// Paragraph groups adjacent lines.
type Paragraph struct {
	Lines      []Line      `json:"lines"`
	Text       string      `json:"text"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"box"`
}

// Page owns its paragraphs; the tree is strict, aggregates are always the
// mean of immediate children, never recomputed from grandchildren.
type Page struct {
	Number     int         `json:"number"`
	Paragraphs []Paragraph `json:"paragraphs"`
	Text       string      `json:"text"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"box"`
}

// NewLine builds a line from left-to-right sorted words.
func NewLine(words []Word) Line {
	texts := make([]string, len(words))
	for i, w := range words {
		texts[i] = w.Text
	}
	return Line{
		Words:      words,
		Text:       strings.Join(texts, " "),
		Confidence: meanConfidence(words, func(w Word) float64 { return w.Confidence }),
		Box:        unionBoxes(words, func(w Word) BoundingBox { return w.Box }),
	}
}

func NewParagraph(lines []Line) Paragraph {
	texts := make([]string, len(lines))
	for i, l := range lines {
		texts[i] = l.Text
	}
	return Paragraph{
		Lines:      lines,
		Text:       strings.Join(texts, "\n"),
		Confidence: meanConfidence(lines, func(l Line) float64 { return l.Confidence }),
		Box:        unionBoxes(lines, func(l Line) BoundingBox { return l.Box }),
	}
}

func NewPage(number int, paragraphs []Paragraph) Page {
	texts := make([]string, len(paragraphs))
	for i, p := range paragraphs {
		texts[i] = p.Text
	}
	return Page{
		Number:     number,
		Paragraphs: paragraphs,
		Text:       strings.Join(texts, "\n\n"),
		Confidence: meanConfidence(paragraphs, func(p Paragraph) float64 { return p.Confidence }),
		Box:        unionBoxes(paragraphs, func(p Paragraph) BoundingBox { return p.Box }),
	}
}

func meanConfidence[T any](items []T, conf func(T) float64) float64 {
	if len(items) == 0 {
		return 0
	}
	var sum float64
	for _, it := range items {
		sum += conf(it)
	}
	return sum / float64(len(items))
}

func unionBoxes[T any](items []T, box func(T) BoundingBox) BoundingBox {
	if len(items) == 0 {
		return BoundingBox{}
	}
	u := box(items[0])
	for _, it := range items[1:] {
		u = u.Union(box(it))
	}
	return u
}

// FlattenPages concatenates page texts in order. EngineResult.Text is always
// equal to this for its own pages.
func FlattenPages(pages []Page) string {
	texts := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = p.Text
	}
	return strings.Join(texts, "\n\n")
}

// Metadata travels with every engine result for diagnostics.
type Metadata struct {
	CorrelationID string    `json:"correlation_id"`
	Timestamp     time.Time `json:"timestamp"`
	Preprocessing []string  `json:"preprocessing,omitempty"`
	EngineVersion string    `json:"engine_version,omitempty"`
}

// EngineResult is the immutable outcome of one engine invocation.
type EngineResult struct {
	Engine     EngineID        `json:"engine"`
	Pages      []Page          `json:"pages"`
	Text       string          `json:"text"`
	Confidence float64         `json:"confidence"`
	Duration   time.Duration   `json:"duration"`
	Language   string          `json:"language,omitempty"`
	Quality    *QualityMetrics `json:"quality,omitempty"`
	Metadata   Metadata        `json:"metadata"`
	Warnings   []string        `json:"warnings,omitempty"`
}

// NewEngineResult assembles a result from its pages, deriving the flattened
// text and the overall confidence from the immediate children.
func NewEngineResult(engine EngineID, pages []Page, language string, duration time.Duration, meta Metadata) *EngineResult {
	return &EngineResult{
		Engine:     engine,
		Pages:      pages,
		Text:       FlattenPages(pages),
		Confidence: meanConfidence(pages, func(p Page) float64 { return p.Confidence }),
		Duration:   duration,
		Language:   language,
		Metadata:   meta,
	}
}

// EnsembleResult is an EngineResult tagged EngineEnsemble plus the per-engine
// results it was derived from.
type EnsembleResult struct {
	EngineResult
	Sources   map[EngineID]*EngineResult `json:"sources,omitempty"`
	Method    string                     `json:"method"`
	Agreement float64                    `json:"agreement"`
}
