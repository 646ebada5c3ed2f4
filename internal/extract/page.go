package extract

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/spherical/doc-ocr/internal/domain"
	"github.com/spherical/doc-ocr/internal/layout"
	"github.com/spherical/doc-ocr/internal/observability"
	"github.com/spherical/doc-ocr/internal/recognition"
)

// Outcome tags the result of the structured stage.
type Outcome int

const (
	// OutcomeAccepted means the structured elements are trusted as is.
	OutcomeAccepted Outcome = iota
	// OutcomeLowConfidence means too little text was found; a whole-page
	// pass is appended.
	OutcomeLowConfidence
	// OutcomeLayoutMiss means the structured stage produced nothing usable.
	OutcomeLayoutMiss
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeLowConfidence:
		return "low_confidence"
	default:
		return "layout_miss"
	}
}

// stageResult is what the structured stage hands to the state machine.
type stageResult struct {
	outcome  Outcome
	elements []domain.Element
	signal   ConfidenceSignal
	reason   error
}

// PageOptions configures a PagePipeline.
type PageOptions struct {
	BatchSize         int
	Policy            ConfidencePolicy
	Format            domain.OutputFormat
	KeepEmptyElements bool
}

// PagePipeline runs layout-aware OCR for one page with a three-tier
// fallback: structured, structured plus whole-page safety pass, whole page.
type PagePipeline struct {
	segmenter  domain.LayoutSegmenter
	recognizer domain.Recognizer
	runner     *recognition.BatchRunner
	opts       PageOptions
	logger     *observability.Logger
}

// NewPagePipeline creates a page pipeline over the given service handles.
func NewPagePipeline(seg domain.LayoutSegmenter, rec domain.Recognizer, opts PageOptions, logger *observability.Logger) *PagePipeline {
	if logger == nil {
		logger = observability.Nop()
	}
	if opts.Format == "" {
		opts.Format = domain.FormatStructured
	}
	return &PagePipeline{
		segmenter:  seg,
		recognizer: rec,
		runner:     recognition.NewBatchRunner(rec, opts.BatchSize),
		opts:       opts,
		logger:     logger,
	}
}

// Run processes one page. The only error it returns is a recognition
// failure on the last-resort whole-page pass (or ctx cancellation
// surfacing through it); every other failure becomes a fallback.
func (p *PagePipeline) Run(ctx context.Context, page domain.PageImage) (domain.PageResult, error) {
	log := p.logger.WithContext(ctx).With().Int("page", page.PageNumber).Logger()

	res := p.structured(ctx, page.Image)

	switch res.outcome {
	case OutcomeAccepted:
		log.Debug().Int("elements", len(res.elements)).Int("chars", res.signal.TotalChars).Msg("Structured output accepted")
		return domain.PageResult{Page: page.PageNumber, Elements: res.elements, Path: domain.PathStructured}, nil

	case OutcomeLowConfidence:
		log.Warn().
			Int("chars", res.signal.TotalChars).
			Int("threshold", p.opts.Policy.Threshold).
			Msg("Low text detected, running safety scan")

		text, err := p.wholePage(ctx, page.Image)
		if err == nil {
			elements := append(res.elements, domain.Element{
				Type:    domain.TypeSafetyFallback,
				Content: text,
				Kind:    domain.KindTextual,
			})
			return domain.PageResult{Page: page.PageNumber, Elements: elements, Path: domain.PathSafety}, nil
		}
		log.Warn().Err(err).Msg("Safety scan failed, falling back to raw text")

	default:
		log.Warn().Err(res.reason).Msg("Fallback triggered")
	}

	return p.raw(ctx, page)
}

// raw discards any structured output and recognizes the whole page. In
// structured mode the text is trimmed like every other structured element;
// narrative mode keeps the recognizer's text exactly as returned.
func (p *PagePipeline) raw(ctx context.Context, page domain.PageImage) (domain.PageResult, error) {
	text, err := p.wholePage(ctx, page.Image)
	if err != nil {
		return domain.PageResult{}, domain.RecognitionError(
			fmt.Sprintf("whole-page recognition failed on page %d", page.PageNumber), err)
	}
	if p.opts.Format != domain.FormatNarrative {
		text = strings.TrimSpace(text)
	}
	return domain.PageResult{
		Page: page.PageNumber,
		Elements: []domain.Element{{
			Type:    rawElementType(p.opts.Format),
			Content: text,
			Kind:    domain.KindTextual,
		}},
		Path: domain.PathRaw,
	}, nil
}

// structured segments the page and recognizes its textual regions. Any
// failure or panic is reported as OutcomeLayoutMiss.
func (p *PagePipeline) structured(ctx context.Context, img image.Image) (res stageResult) {
	defer func() {
		if r := recover(); r != nil {
			res = stageResult{outcome: OutcomeLayoutMiss, reason: fmt.Errorf("panic in structured stage: %v", r)}
		}
	}()

	if img == nil {
		return stageResult{outcome: OutcomeLayoutMiss, reason: fmt.Errorf("page image missing")}
	}

	regions, err := p.segmenter.Segment(ctx, img)
	if err != nil {
		return stageResult{outcome: OutcomeLayoutMiss, reason: domain.SegmentationError("layout detection failed", err)}
	}
	if len(regions) == 0 {
		return stageResult{outcome: OutcomeLayoutMiss, reason: fmt.Errorf("no layout found")}
	}

	regions = layout.Prepare(regions)
	textual := layout.Textual(regions)
	if len(textual) == 0 {
		return stageResult{outcome: OutcomeLayoutMiss, reason: fmt.Errorf("no textual regions among %d", len(regions))}
	}

	crops := make([]image.Image, len(textual))
	for i, idx := range textual {
		crop, err := layout.Crop(img, regions[idx].BBox)
		if err != nil {
			return stageResult{outcome: OutcomeLayoutMiss, reason: fmt.Errorf("crop %s region: %w", regions[idx].Label, err)}
		}
		crops[i] = crop
	}

	texts, err := p.runner.Run(ctx, crops)
	if err != nil {
		return stageResult{outcome: OutcomeLayoutMiss, reason: err}
	}

	byRegion := make(map[int]string, len(textual))
	for i, idx := range textual {
		byRegion[idx] = strings.TrimSpace(texts[i])
	}

	elements := make([]domain.Element, 0, len(regions))
	for i, r := range regions {
		if r.Kind == domain.KindGraphic {
			elements = append(elements, domain.Element{
				Type:    string(r.Label),
				Content: domain.GraphicPlaceholder,
				Kind:    domain.KindGraphic,
			})
			continue
		}
		content := byRegion[i]
		if content == "" && !p.opts.KeepEmptyElements {
			continue
		}
		elements = append(elements, domain.Element{
			Type:    string(r.Label),
			Content: content,
			Kind:    domain.KindTextual,
		})
	}

	signal := SignalFrom(texts)
	if !p.opts.Policy.IsReliable(signal) {
		return stageResult{outcome: OutcomeLowConfidence, elements: elements, signal: signal}
	}
	// A finished page always carries at least one element, whatever the threshold.
	if len(elements) == 0 {
		return stageResult{outcome: OutcomeLayoutMiss, signal: signal, reason: fmt.Errorf("all %d textual regions came back empty", len(textual))}
	}
	return stageResult{outcome: OutcomeAccepted, elements: elements, signal: signal}
}

// wholePage recognizes the full page image in a single call.
func (p *PagePipeline) wholePage(ctx context.Context, img image.Image) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recognizer panic: %v", r)
		}
	}()

	if img == nil {
		return "", fmt.Errorf("page image missing")
	}

	results, err := p.recognizer.Recognize(ctx, []image.Image{img})
	if err != nil {
		return "", err
	}
	if len(results) != 1 {
		return "", fmt.Errorf("expected 1 result for whole page, got %d", len(results))
	}
	return results[0].Text(), nil
}
