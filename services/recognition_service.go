package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"ocr-lab/contract"
	"ocr-lab/domain"
	"ocr-lab/domain/event"
	"ocr-lab/errors"
	"ocr-lab/runtime"
)

// Score weights. When no semantic confidence is available the remaining
// weights are renormalized so the score stays on a 0..1 scale.
const (
	weightEngine   = 0.50
	weightSemantic = 0.25
	weightImage    = 0.15
	weightLayout   = 0.10
)

// Orchestration is the dispatch collaborator behind the facade.
type Orchestration interface {
	Process(ctx context.Context, doc domain.Document, opts domain.Options) (*runtime.Outcome, error)
	Emit(e event.Event)
}

// Searcher queries previously indexed recognitions.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]domain.SearchHit, error)
}

type IRecognitionService interface {
	Recognize(ctx context.Context, image []byte, opts domain.Options) (*domain.CompleteResult, error)
	Search(ctx context.Context, query string, limit int) ([]domain.SearchHit, error)
	Health() domain.HealthStatus
}

// RecognitionService is the single entry point callers use. It validates the
// request, consults the cache, delegates dispatch to the orchestrator, then
// layers post-processing, scoring and recommendations on top. The only
// conditions surfaced as Go errors are invalid requests and a fully failed
// engine chain; everything else degrades into warnings on the result.
type RecognitionService struct {
	log           *slog.Logger
	registry      contract.IRegistry
	orchestrator  Orchestration
	cache         contract.ResultCache
	postProcessor contract.PostProcessor
	searcher      Searcher
	validate      *validator.Validate
}

// NewRecognitionService wires the facade. cache, postProcessor and searcher
// may be nil; the matching steps are skipped.
func NewRecognitionService(
	log *slog.Logger,
	registry contract.IRegistry,
	orchestrator Orchestration,
	cache contract.ResultCache,
	postProcessor contract.PostProcessor,
	searcher Searcher,
) *RecognitionService {
	return &RecognitionService{
		log:           log,
		registry:      registry,
		orchestrator:  orchestrator,
		cache:         cache,
		postProcessor: postProcessor,
		searcher:      searcher,
		validate:      validator.New(),
	}
}

func (s *RecognitionService) Recognize(ctx context.Context, imageData []byte, opts domain.Options) (*domain.CompleteResult, error) {
	started := time.Now()

	doc, err := s.buildDocument(imageData)
	if err != nil {
		return nil, err
	}
	if err := s.validateOptions(opts); err != nil {
		return nil, err
	}

	opts = opts.Normalized()
	if opts.CorrelationID == "" {
		opts.CorrelationID = uuid.NewString()
	}
	log := s.log.With("correlation_id", opts.CorrelationID)

	cacheKey := opts.Key(doc.Digest)
	if cached, ok := s.lookupCache(ctx, log, cacheKey); ok {
		cached.FromCache = true
		cached.CorrelationID = opts.CorrelationID
		log.Debug("Served recognition from cache", "digest", doc.Digest)
		return cached, nil
	}

	outcome, err := s.orchestrator.Process(ctx, doc, opts)
	if err != nil {
		return nil, err
	}

	complete := &domain.CompleteResult{
		Result:        outcome.Result,
		Sources:       outcome.Sources,
		Method:        outcome.Method,
		Agreement:     outcome.Agreement,
		Warnings:      outcome.Warnings,
		CorrelationID: opts.CorrelationID,
		CompletedAt:   time.Now().UTC(),
	}

	post := s.postProcess(ctx, log, complete, opts)
	s.score(complete, post)

	if opts.ConfidenceThreshold > 0 && complete.Result.Confidence < opts.ConfidenceThreshold {
		complete.Warnings = append(complete.Warnings, fmt.Sprintf(
			"confidence %.2f below requested threshold %.2f",
			complete.Result.Confidence, opts.ConfidenceThreshold,
		))
	}

	s.storeCache(ctx, log, cacheKey, complete)

	s.orchestrator.Emit(event.New(event.Completed, opts.CorrelationID, event.CompletedPayload{
		Engine:     complete.Result.Engine,
		Text:       complete.Result.Text,
		Confidence: complete.Result.Confidence,
		Score:      complete.Score,
		Agreement:  complete.Agreement,
		Duration:   time.Since(started),
	}))
	return complete, nil
}

// Search is available when a search index was wired; otherwise it fails with
// a validation error rather than panicking.
func (s *RecognitionService) Search(ctx context.Context, query string, limit int) ([]domain.SearchHit, error) {
	if s.searcher == nil {
		return nil, fmt.Errorf("%w: search index not configured", errors.ErrValidation)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty search query", errors.ErrValidation)
	}
	if limit <= 0 {
		limit = 10
	}
	return s.searcher.Search(ctx, query, limit)
}

func (s *RecognitionService) Health() domain.HealthStatus {
	return s.registry.Health()
}

func (s *RecognitionService) buildDocument(data []byte) (domain.Document, error) {
	if len(data) == 0 {
		return domain.Document{}, fmt.Errorf("%w: empty image", errors.ErrValidation)
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return domain.Document{}, fmt.Errorf("%w: unsupported content type %s", errors.ErrValidation, mtype.String())
	}

	doc := domain.NewDocument(data)
	doc.MIME = mtype.String()

	// Geometry only feeds the quality heuristics, so an undecodable config
	// leaves the dimensions at zero instead of rejecting the request.
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		doc.Width = cfg.Width
		doc.Height = cfg.Height
	}
	return doc, nil
}

func (s *RecognitionService) validateOptions(opts domain.Options) error {
	if err := s.validate.Struct(opts); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	for _, id := range opts.Engines {
		if _, err := domain.ParseEngineID(string(id)); err != nil {
			return fmt.Errorf("%w: %v", errors.ErrValidation, err)
		}
	}
	return nil
}

func (s *RecognitionService) lookupCache(ctx context.Context, log *slog.Logger, key string) (*domain.CompleteResult, bool) {
	if s.cache == nil {
		return nil, false
	}
	cached, ok, err := s.cache.Lookup(ctx, key)
	if err != nil {
		// The cache is best effort; a broken cache never fails a request.
		log.Warn("Cache lookup failed", "error", err)
		return nil, false
	}
	return cached, ok
}

func (s *RecognitionService) storeCache(ctx context.Context, log *slog.Logger, key string, result *domain.CompleteResult) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Store(ctx, key, result); err != nil {
		log.Warn("Cache store failed", "error", err)
	}
}

// postProcess runs the external text collaborator when wired. A failure
// downgrades to a warning and the raw engine text is kept.
func (s *RecognitionService) postProcess(ctx context.Context, log *slog.Logger, complete *domain.CompleteResult, opts domain.Options) contract.PostProcessed {
	if s.postProcessor == nil {
		return contract.PostProcessed{}
	}

	s.orchestrator.Emit(event.New(event.PostProcessing, opts.CorrelationID, nil))
	post, err := s.postProcessor.Process(ctx, complete.Result.Text, opts)
	if err != nil {
		log.Warn("Post-processing failed, keeping raw text", "error", err)
		complete.Warnings = append(complete.Warnings, fmt.Sprintf("post-processing failed: %v", err))
		return contract.PostProcessed{}
	}

	if post.CorrectedText != "" && post.CorrectedText != complete.Result.Text {
		complete.Result.Text = post.CorrectedText
		log.Debug("Applied text corrections", "corrections", post.Corrections)
	}
	return post
}

// score derives the overall quality score and its recommendations.
func (s *RecognitionService) score(complete *domain.CompleteResult, post contract.PostProcessed) {
	engineScore := complete.Result.Confidence

	imageScore := domain.ImageQualityMedium.Score()
	layoutScore := 0.5
	if q := complete.Result.Quality; q != nil {
		imageScore = q.ImageQuality.Score()
		layoutScore = 1 - q.LayoutComplexity
	}

	if post.HasSemantic {
		complete.Score = weightEngine*engineScore +
			weightSemantic*post.SemanticConfidence +
			weightImage*imageScore +
			weightLayout*layoutScore
	} else {
		raw := weightEngine*engineScore + weightImage*imageScore + weightLayout*layoutScore
		complete.Score = raw / (weightEngine + weightImage + weightLayout)
		complete.Recommendations = append(complete.Recommendations,
			"no semantic validation available; score derived from engine and image signals only")
	}

	if engineScore < 0.5 {
		complete.Recommendations = append(complete.Recommendations,
			"low engine confidence; review the extracted text manually")
	}
	if post.HasSemantic && post.SemanticConfidence < 0.5 {
		complete.Recommendations = append(complete.Recommendations,
			"extracted text scored poorly on semantic validation; consider another engine or language setting")
	}
	if imageScore < 0.5 {
		complete.Recommendations = append(complete.Recommendations,
			"low input resolution; rescan at a higher resolution for better accuracy")
	}
	if layoutScore < 0.5 {
		complete.Recommendations = append(complete.Recommendations,
			"complex layout detected; verify reading order of the extracted text")
	}
}
