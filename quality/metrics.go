// Package quality derives a structured quality profile from a single
// engine's page tree plus the source image geometry. Every computation here
// is pure and total: malformed or empty engine output degrades to safe
// defaults, it never crashes the pipeline.
package quality

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
	goahocorasick "github.com/anknown/ahocorasick"

	"ocr-lab/domain"
)

const (
	// Image-quality bucket thresholds, in pixels.
	lowPixels    = 300_000
	mediumPixels = 1_000_000
	highPixels   = 4_000_000

	// Word-confidence variance above this suggests handwriting: printed text
	// recognizes uniformly, handwriting swings per word.
	handwritingVariance = 0.03

	// Column detection: a left-margin bucket counts as a column when at
	// least this many distinct lines start in it.
	columnMinLines = 3

	suspiciousChars = "|~^`¬®©§¤¶µ�"
)

// Calculator computes quality profiles. Safe for concurrent use: the
// automaton is built once and only read afterwards.
type Calculator struct {
	machine *goahocorasick.Machine
}

// NewCalculator loads the embedded common-word dictionaries and builds the
// Aho-Corasick automaton used for the common-word hit ratio.
func NewCalculator() (*Calculator, error) {
	loader := NewWordLoader(commonWordsFolder)
	data, err := loader.LoadAll("commonwords")
	if err != nil {
		return nil, err
	}

	patterns := make([][]rune, len(data.Words))
	for i, w := range data.Words {
		patterns[i] = []rune(w)
	}
	// The automaton requires a sorted dictionary.
	sort.Slice(patterns, func(i, j int) bool { return string(patterns[i]) < string(patterns[j]) })

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Calculator{machine: m}, nil
}

// Calculate derives the full profile. imageWidth/imageHeight may be zero for
// degenerate inputs; every dependent metric falls back to its zero value.
func (c *Calculator) Calculate(pages []domain.Page, imageWidth, imageHeight int) domain.QualityMetrics {
	words := collectWords(pages)
	lines := collectLines(pages)
	paragraphs := collectParagraphs(pages)
	text := domain.FlattenPages(pages)

	return domain.QualityMetrics{
		MeanWordConfidence:      meanBy(words, func(w domain.Word) float64 { return w.Confidence }),
		MeanLineConfidence:      meanBy(lines, func(l domain.Line) float64 { return l.Confidence }),
		MeanParagraphConfidence: meanBy(paragraphs, func(p domain.Paragraph) float64 { return p.Confidence }),

		TextDensity:      textDensity(text, imageWidth, imageHeight),
		RegionCount:      len(paragraphs),
		LayoutComplexity: c.layoutComplexity(lines, imageWidth),
		SkewDegrees:      skewAngle(lines),

		LanguagePlausibility: c.languagePlausibility(text),
		SuspiciousCharRatio:  charRatio(text, isSuspicious),
		WhitespaceRatio:      charRatio(text, unicode.IsSpace),
		DigitRatio:           charRatio(text, unicode.IsDigit),
		UppercaseRatio:       uppercaseRatio(text),

		TableLikely:       tableLikely(lines),
		HandwritingLikely: confidenceVariance(words) > handwritingVariance,

		ImageQuality: imageQualityBucket(imageWidth, imageHeight),
	}
}

func collectWords(pages []domain.Page) []domain.Word {
	var words []domain.Word
	for _, page := range pages {
		for _, par := range page.Paragraphs {
			for _, line := range par.Lines {
				words = append(words, line.Words...)
			}
		}
	}
	return words
}

func collectLines(pages []domain.Page) []domain.Line {
	var lines []domain.Line
	for _, page := range pages {
		for _, par := range page.Paragraphs {
			lines = append(lines, par.Lines...)
		}
	}
	return lines
}

func collectParagraphs(pages []domain.Page) []domain.Paragraph {
	var paragraphs []domain.Paragraph
	for _, page := range pages {
		paragraphs = append(paragraphs, page.Paragraphs...)
	}
	return paragraphs
}

func meanBy[T any](items []T, value func(T) float64) float64 {
	if len(items) == 0 {
		return 0
	}
	var sum float64
	for _, it := range items {
		sum += value(it)
	}
	return sum / float64(len(items))
}

func textDensity(text string, width, height int) float64 {
	area := float64(width) * float64(height)
	if area <= 0 {
		return 0
	}
	return float64(len([]rune(text))) / area
}

// layoutComplexity blends the spread of line left margins, right margins and
// inter-line spacing into [0,1]. A clean single-column page scores near 0,
// a page of scattered boxes near 1.
func (c *Calculator) layoutComplexity(lines []domain.Line, imageWidth int) float64 {
	if len(lines) < 2 {
		return 0
	}

	width := float64(imageWidth)
	if width <= 0 {
		// Fall back to the observed extent so the metric stays defined.
		for _, l := range lines {
			width = math.Max(width, l.Box.X1)
		}
		if width <= 0 {
			return 0
		}
	}

	lefts := make([]float64, len(lines))
	rights := make([]float64, len(lines))
	for i, l := range lines {
		lefts[i] = l.Box.X0 / width
		rights[i] = l.Box.X1 / width
	}

	var spacings []float64
	medianHeight := medianOf(mapSlice(lines, func(l domain.Line) float64 { return l.Box.Height() }))
	for i := 1; i < len(lines); i++ {
		gap := lines[i].Box.Y0 - lines[i-1].Box.Y1
		if medianHeight > 0 {
			spacings = append(spacings, gap/medianHeight)
		}
	}

	complexity := math.Sqrt(variance(lefts)) + math.Sqrt(variance(rights)) + math.Sqrt(variance(spacings))/4
	return clamp01(complexity)
}

// skewAngle is the median baseline angle of multi-word lines, in degrees.
func skewAngle(lines []domain.Line) float64 {
	var angles []float64
	for _, l := range lines {
		if len(l.Words) < 2 {
			continue
		}
		first := l.Words[0].Box
		last := l.Words[len(l.Words)-1].Box
		dx := (last.X0+last.X1)/2 - (first.X0+first.X1)/2
		dy := last.CenterY() - first.CenterY()
		if dx == 0 {
			continue
		}
		angles = append(angles, math.Atan2(dy, dx)*180/math.Pi)
	}
	if len(angles) == 0 {
		return 0
	}
	return medianOf(angles)
}

// languagePlausibility blends the alphabetic character ratio, the
// common-word hit ratio and the detector confidence.
func (c *Calculator) languagePlausibility(text string) float64 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}

	alpha := charRatio(trimmed, unicode.IsLetter)

	wordCount := len(strings.Fields(trimmed))
	hitRatio := 0.0
	if wordCount > 0 && c.machine != nil {
		hits := c.machine.MultiPatternSearch([]rune(strings.ToLower(trimmed)), false)
		hitRatio = clamp01(float64(len(hits)) / float64(wordCount))
	}

	info := whatlanggo.Detect(trimmed)
	detectorConf := clamp01(info.Confidence)

	return clamp01(0.5*alpha + 0.3*hitRatio + 0.2*detectorConf)
}

func charRatio(text string, pred func(rune) bool) float64 {
	runes := []rune(text)
	if len(runes) == 0 {
		return 0
	}
	count := 0
	for _, r := range runes {
		if pred(r) {
			count++
		}
	}
	return float64(count) / float64(len(runes))
}

func uppercaseRatio(text string) float64 {
	letters, uppers := 0, 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				uppers++
			}
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(uppers) / float64(letters)
}

func isSuspicious(r rune) bool {
	if r < 32 && r != '\n' && r != '\t' && r != '\r' {
		return true
	}
	return strings.ContainsRune(suspiciousChars, r)
}

// tableLikely detects repeated left-margin clustering: at least two distinct
// column positions, each shared by several lines' words.
func tableLikely(lines []domain.Line) bool {
	if len(lines) < columnMinLines {
		return false
	}

	var width float64
	for _, l := range lines {
		width = math.Max(width, l.Box.X1)
	}
	if width <= 0 {
		return false
	}
	bucketSize := width / 40

	// bucket -> set of line indices whose words start there
	columns := make(map[int]map[int]struct{})
	for li, l := range lines {
		for _, w := range l.Words {
			bucket := int(w.Box.X0 / bucketSize)
			if columns[bucket] == nil {
				columns[bucket] = make(map[int]struct{})
			}
			columns[bucket][li] = struct{}{}
		}
	}

	aligned := 0
	for _, linesIn := range columns {
		if len(linesIn) >= columnMinLines {
			aligned++
		}
	}
	return aligned >= 2
}

func confidenceVariance(words []domain.Word) float64 {
	if len(words) < 2 {
		return 0
	}
	return variance(mapSlice(words, func(w domain.Word) float64 { return w.Confidence }))
}

func imageQualityBucket(width, height int) domain.ImageQuality {
	pixels := width * height
	switch {
	case pixels <= 0 || pixels < lowPixels:
		return domain.ImageQualityLow
	case pixels < mediumPixels:
		return domain.ImageQualityMedium
	case pixels < highPixels:
		return domain.ImageQualityHigh
	default:
		return domain.ImageQualityExcellent
	}
}

func variance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return sq / float64(len(values))
}

func medianOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func mapSlice[T any](items []T, f func(T) float64) []float64 {
	out := make([]float64, len(items))
	for i, it := range items {
		out[i] = f(it)
	}
	return out
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
