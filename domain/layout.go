package domain

import "sort"

// Spatial grouping thresholds, expressed relative to word height so the
// assembly is resolution independent.
const (
	lineOverlapRatio  = 0.5
	paragraphGapRatio = 1.8
)

// AssemblePage groups a flat word list into lines by vertical overlap, lines
// into paragraphs by inter-line gap, and returns the finished page. Engines
// that only report word boxes (the bridged ones) go through here; the native
// recognizer reports words the same way.
func AssemblePage(number int, words []Word) Page {
	if len(words) == 0 {
		return NewPage(number, nil)
	}

	sorted := make([]Word, len(words))
	copy(sorted, words)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Box.CenterY() != sorted[j].Box.CenterY() {
			return sorted[i].Box.CenterY() < sorted[j].Box.CenterY()
		}
		return sorted[i].Box.X0 < sorted[j].Box.X0
	})

	lines := groupLines(sorted)
	paragraphs := groupParagraphs(lines)
	return NewPage(number, paragraphs)
}

// groupLines clusters words whose vertical centers fall within half a word
// height of the running line.
func groupLines(words []Word) []Line {
	var lines []Line
	var current []Word

	flush := func() {
		if len(current) == 0 {
			return
		}
		sort.SliceStable(current, func(i, j int) bool { return current[i].Box.X0 < current[j].Box.X0 })
		for i := range current {
			current[i].LineIndex = len(lines)
		}
		lines = append(lines, NewLine(current))
		current = nil
	}

	for _, w := range words {
		if len(current) == 0 {
			current = append(current, w)
			continue
		}
		last := current[len(current)-1]
		tolerance := max(last.Box.Height(), w.Box.Height()) * lineOverlapRatio
		if abs(w.Box.CenterY()-last.Box.CenterY()) <= tolerance {
			current = append(current, w)
		} else {
			flush()
			current = append(current, w)
		}
	}
	flush()
	return lines
}

// groupParagraphs splits on vertical gaps larger than paragraphGapRatio times
// the median line height.
func groupParagraphs(lines []Line) []Paragraph {
	if len(lines) == 0 {
		return nil
	}

	medianHeight := medianLineHeight(lines)
	var paragraphs []Paragraph
	var current []Line

	for i, l := range lines {
		if i > 0 {
			gap := l.Box.Y0 - current[len(current)-1].Box.Y1
			if medianHeight > 0 && gap > medianHeight*paragraphGapRatio {
				paragraphs = append(paragraphs, NewParagraph(current))
				current = nil
			}
		}
		current = append(current, l)
	}
	paragraphs = append(paragraphs, NewParagraph(current))

	for pi, p := range paragraphs {
		for li := range p.Lines {
			for wi := range p.Lines[li].Words {
				paragraphs[pi].Lines[li].Words[wi].ParagraphIndex = pi
			}
		}
	}
	return paragraphs
}

func medianLineHeight(lines []Line) float64 {
	heights := make([]float64, len(lines))
	for i, l := range lines {
		heights[i] = l.Box.Height()
	}
	sort.Float64s(heights)
	return heights[len(heights)/2]
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
