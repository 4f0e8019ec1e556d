package search

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/blugelabs/bluge"

	"ocr-lab/domain"
)

// Index stores recognized text in a Bluge full-text index so completed
// recognitions can be queried by content.
type Index struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewIndex(writer *bluge.Writer, log *slog.Logger) *Index {
	return &Index{writer: writer, log: log}
}

func (i *Index) Index(_ context.Context, id string, entry domain.SearchEntry) error {
	doc := bluge.NewDocument(id).
		AddField(bluge.NewTextField("text", entry.Text).StoreValue()).
		AddField(bluge.NewKeywordField("engine", string(entry.Engine)).StoreValue()).
		AddField(bluge.NewKeywordField("language", entry.Language)).
		AddField(bluge.NewStoredOnlyField("confidence", []byte(strconv.FormatFloat(entry.Confidence, 'f', -1, 64)))).
		AddField(bluge.NewDateTimeField("at", entry.At))

	if err := i.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("index document %s: %w", id, err)
	}
	return nil
}

// Search runs a match query against the recognized text and returns the
// top limit hits.
func (i *Index) Search(ctx context.Context, query string, limit int) ([]domain.SearchHit, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("open index reader: %w", err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			i.log.Warn("Failed to close index reader", "error", err)
		}
	}()

	match := bluge.NewMatchQuery(query).SetField("text")
	req := bluge.NewTopNSearch(limit, match).WithStandardAggregations()

	dmi, err := reader.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	var hits []domain.SearchHit
	next, err := dmi.Next()
	for err == nil && next != nil {
		var hit domain.SearchHit
		visitErr := next.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				hit.ID = string(value)
			case "text":
				hit.Text = string(value)
			case "engine":
				hit.Engine = string(value)
			case "confidence":
				if c, parseErr := strconv.ParseFloat(string(value), 64); parseErr == nil {
					hit.Confidence = c
				}
			}
			return true
		})
		if visitErr != nil {
			return nil, fmt.Errorf("load stored fields: %w", visitErr)
		}
		hits = append(hits, hit)
		next, err = dmi.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return hits, nil
}
