package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/spherical/doc-ocr/internal/domain"
	"github.com/spherical/doc-ocr/internal/observability"
)

// Options configures a Service.
type Options struct {
	BatchSize           int
	ConfidenceThreshold int
	KeepEmptyElements   bool
}

// DefaultOptions returns the standard batch size and confidence threshold.
func DefaultOptions() Options {
	return Options{
		BatchSize:           8,
		ConfidenceThreshold: DefaultConfidenceThreshold,
	}
}

// Service orchestrates OCR over all pages of a document
type Service struct {
	opts   Options
	logger *observability.Logger
}

// NewService creates a new document OCR service
func NewService(opts Options, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Service{
		opts:   opts,
		logger: logger.WithOperation("extract"),
	}
}

// Fingerprint identifies the settings that shape eng's output under this
// service: batch size, confidence threshold, empty-element handling and the
// recognition backend. Results computed under a different fingerprint are
// not interchangeable.
func (s *Service) Fingerprint(eng domain.Engine) string {
	raw := fmt.Sprintf("batch=%d;threshold=%d;keep_empty=%t;backend=%s",
		s.opts.BatchSize, s.opts.ConfidenceThreshold, s.opts.KeepEmptyElements, eng.Backend)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:8])
}

// Process runs every page through the engine, strictly in page order.
// Each page image is released as soon as its page is done. Either every
// page completes or an error is returned; partial documents are never
// returned.
func (s *Service) Process(
	ctx context.Context,
	filename string,
	pages []domain.PageImage,
	eng domain.Engine,
	format domain.OutputFormat,
	eventCh chan<- domain.StreamEvent,
) (*domain.DocumentResult, error) {
	startTime := time.Now()
	log := s.logger.WithContext(ctx).WithEngine(eng.Name)

	s.emitEvent(eventCh, domain.StreamEvent{
		Type:      domain.EventStart,
		Payload:   fmt.Sprintf("Starting OCR of %s (%d pages, engine %s)", filename, len(pages), eng.Name),
		Timestamp: time.Now(),
	})

	if eng.Recognizer == nil || (eng.Mode == domain.EngineLayoutAware && eng.Segmenter == nil) {
		err := domain.ConfigError(fmt.Sprintf("engine %q is missing a service handle", eng.Name), nil)
		s.emitError(eventCh, err)
		return nil, err
	}

	var page func(context.Context, domain.PageImage) (domain.PageResult, error)
	switch eng.Mode {
	case domain.EngineFlat:
		page = s.flatPage(eng.Recognizer)
	default:
		pipeline := NewPagePipeline(eng.Segmenter, eng.Recognizer, PageOptions{
			BatchSize:         s.opts.BatchSize,
			Policy:            NewConfidencePolicy(s.opts.ConfidenceThreshold),
			Format:            format,
			KeepEmptyElements: s.opts.KeepEmptyElements,
		}, s.logger)
		page = pipeline.Run
	}

	result := &domain.DocumentResult{
		Filename: filename,
		Engine:   eng.Name,
		Pages:    make([]domain.PageResult, 0, len(pages)),
	}
	var stats domain.ProcessingStats

	for i := range pages {
		select {
		case <-ctx.Done():
			s.emitError(eventCh, ctx.Err())
			return nil, ctx.Err()
		default:
		}

		pageNumber := i + 1
		s.emitEvent(eventCh, domain.StreamEvent{
			Type:       domain.EventPageProcessing,
			PageNumber: pageNumber,
			Payload:    fmt.Sprintf("Processing page %d", pageNumber),
			Timestamp:  time.Now(),
		})

		pr, err := page(ctx, domain.PageImage{
			PageNumber: pageNumber,
			Image:      pages[i].Image,
			Width:      pages[i].Width,
			Height:     pages[i].Height,
		})
		pages[i].Image = nil
		if err != nil {
			log.Error().Err(err).Int("page", pageNumber).Msg("Page failed")
			s.emitError(eventCh, err)
			return nil, err
		}

		if pr.Path == domain.PathSafety || pr.Path == domain.PathRaw {
			s.emitEvent(eventCh, domain.StreamEvent{
				Type:       domain.EventPageFallback,
				PageNumber: pageNumber,
				Payload:    string(pr.Path),
				Timestamp:  time.Now(),
			})
		}

		stats.Record(pr.Path)
		result.Pages = append(result.Pages, pr)

		s.emitEvent(eventCh, domain.StreamEvent{
			Type:       domain.EventPageComplete,
			PageNumber: pageNumber,
			Payload:    fmt.Sprintf("Completed page %d (%d elements)", pageNumber, len(pr.Elements)),
			Timestamp:  time.Now(),
		})
	}

	stats.Duration = time.Since(startTime)
	s.emitEvent(eventCh, domain.StreamEvent{
		Type:      domain.EventComplete,
		Payload:   stats,
		Timestamp: time.Now(),
	})

	log.Info().
		Str("filename", filename).
		Int("pages", stats.TotalPages).
		Int("structured", stats.StructuredPages).
		Int("safety_fallback", stats.SafetyPages).
		Int("raw_fallback", stats.RawPages).
		Dur("duration", stats.Duration).
		Msg("OCR complete")

	return result, nil
}

// flatPage recognizes each page whole, with no layout analysis or fallback.
func (s *Service) flatPage(rec domain.Recognizer) func(context.Context, domain.PageImage) (domain.PageResult, error) {
	return func(ctx context.Context, page domain.PageImage) (domain.PageResult, error) {
		results, err := rec.Recognize(ctx, []image.Image{page.Image})
		if err != nil {
			return domain.PageResult{}, domain.RecognitionError(
				fmt.Sprintf("recognition failed on page %d", page.PageNumber), err)
		}
		if len(results) != 1 {
			return domain.PageResult{}, domain.RecognitionError(
				fmt.Sprintf("expected 1 result for page %d, got %d", page.PageNumber, len(results)), nil)
		}
		return domain.PageResult{
			Page: page.PageNumber,
			Elements: []domain.Element{{
				Type:    domain.TypeRawText,
				Content: strings.TrimSpace(results[0].Text()),
				Kind:    domain.KindTextual,
			}},
			Path: domain.PathFlat,
		}, nil
	}
}

// emitEvent sends an event without blocking; events are dropped when the
// channel is full.
func (s *Service) emitEvent(eventCh chan<- domain.StreamEvent, event domain.StreamEvent) {
	if eventCh != nil {
		select {
		case eventCh <- event:
		default:
			s.logger.Warn().Str("event", string(event.Type)).Msg("Event channel full, dropping event")
		}
	}
}

// emitError emits an error event
func (s *Service) emitError(eventCh chan<- domain.StreamEvent, err error) {
	s.emitEvent(eventCh, domain.StreamEvent{
		Type:      domain.EventError,
		Payload:   err.Error(),
		Timestamp: time.Now(),
	})
}
