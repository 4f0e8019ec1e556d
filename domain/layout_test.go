package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssemblePage_GroupsWordsIntoLines(t *testing.T) {
	req := require.New(t)

	// Deliberately out of reading order.
	words := []Word{
		word("world", 0.8, BoundingBox{X0: 60, Y0: 0, X1: 100, Y1: 10}),
		word("again", 0.7, BoundingBox{X0: 0, Y0: 14, X1: 40, Y1: 24}),
		word("Hello", 0.9, BoundingBox{X0: 0, Y0: 0, X1: 50, Y1: 10}),
	}

	page := AssemblePage(1, words)

	req.Len(page.Paragraphs, 1)
	lines := page.Paragraphs[0].Lines
	req.Len(lines, 2)
	req.Equal("Hello world", lines[0].Text)
	req.Equal("again", lines[1].Text)
	req.Equal("Hello world\nagain", page.Text)
}

func TestAssemblePage_SplitsParagraphsOnLargeGap(t *testing.T) {
	req := require.New(t)

	words := []Word{
		word("top", 0.9, BoundingBox{X0: 0, Y0: 0, X1: 30, Y1: 10}),
		word("middle", 0.9, BoundingBox{X0: 0, Y0: 14, X1: 30, Y1: 24}),
		// Gap of 36 pixels, far beyond 1.8 times the 10 pixel line height.
		word("bottom", 0.9, BoundingBox{X0: 0, Y0: 60, X1: 30, Y1: 70}),
	}

	page := AssemblePage(1, words)

	req.Len(page.Paragraphs, 2)
	req.Equal("top\nmiddle", page.Paragraphs[0].Text)
	req.Equal("bottom", page.Paragraphs[1].Text)
	req.Equal("top\nmiddle\n\nbottom", page.Text)
}

func TestAssemblePage_SetsIndices(t *testing.T) {
	req := require.New(t)

	words := []Word{
		word("a", 0.9, BoundingBox{X0: 0, Y0: 0, X1: 10, Y1: 10}),
		word("b", 0.9, BoundingBox{X0: 12, Y0: 0, X1: 20, Y1: 10}),
		word("c", 0.9, BoundingBox{X0: 0, Y0: 60, X1: 10, Y1: 70}),
	}

	page := AssemblePage(1, words)
	req.Len(page.Paragraphs, 2)

	first := page.Paragraphs[0].Lines[0]
	req.Equal(0, first.Words[0].LineIndex)
	req.Equal(0, first.Words[0].ParagraphIndex)
	req.Equal(0, first.Words[1].LineIndex)

	second := page.Paragraphs[1].Lines[0]
	req.Equal(1, second.Words[0].LineIndex)
	req.Equal(1, second.Words[0].ParagraphIndex)
}

func TestAssemblePage_Empty(t *testing.T) {
	req := require.New(t)

	page := AssemblePage(3, nil)
	req.Equal(3, page.Number)
	req.Empty(page.Paragraphs)
	req.Equal("", page.Text)
	req.Zero(page.Confidence)
}

func TestAssemblePage_SingleWord(t *testing.T) {
	req := require.New(t)

	page := AssemblePage(1, []Word{word("solo", 0.42, BoundingBox{X0: 5, Y0: 5, X1: 25, Y1: 15})})
	req.Len(page.Paragraphs, 1)
	req.Equal("solo", page.Text)
	req.InDelta(0.42, page.Confidence, 1e-9)
}
