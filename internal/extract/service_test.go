package extract

import (
	"context"
	"errors"
	"fmt"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/doc-ocr/internal/domain"
	"github.com/spherical/doc-ocr/internal/ocrtest"
)

func pages(n int) []domain.PageImage {
	out := make([]domain.PageImage, n)
	for i := range out {
		out[i] = ocrtest.Page(i+1, pageW, pageH)
	}
	return out
}

func layoutEngine(seg domain.LayoutSegmenter, rec domain.Recognizer) domain.Engine {
	return domain.Engine{Name: "surya", Mode: domain.EngineLayoutAware, Segmenter: seg, Recognizer: rec}
}

func TestServiceScenarioStructuredDocument(t *testing.T) {
	// two pages, each with a title and a picture
	seg := &ocrtest.Segmenter{Regions: []domain.Region{
		{BBox: pictureBox, Label: domain.LabelPicture},
		{BBox: titleBox, Label: domain.LabelTitle},
	}}
	rec := &ocrtest.Recognizer{TextFor: textByOrigin(map[string]string{
		"text@0,10": "Quarterly results for the northern region, fiscal year 2024",
	}, "page")}

	in := pages(2)
	doc, err := NewService(DefaultOptions(), nil).Process(context.Background(), "report.pdf", in, layoutEngine(seg, rec), domain.FormatStructured, nil)
	require.NoError(t, err)

	assert.Equal(t, "report.pdf", doc.Filename)
	assert.Equal(t, "surya", doc.Engine)
	require.Len(t, doc.Pages, 2)
	for i, p := range doc.Pages {
		assert.Equal(t, i+1, p.Page)
		require.Len(t, p.Elements, 2)
		assert.Equal(t, "Title", p.Elements[0].Type)
		assert.Equal(t, domain.Element{Type: "Picture", Content: domain.GraphicPlaceholder, Kind: domain.KindGraphic}, p.Elements[1])
	}
	for _, p := range in {
		assert.Nil(t, p.Image, "page images are released after processing")
	}
}

func TestServiceScenarioLowText(t *testing.T) {
	seg := &ocrtest.Segmenter{Regions: []domain.Region{
		{BBox: pictureBox, Label: domain.LabelFigure},
		{BBox: textBox, Label: domain.LabelCaption},
	}}
	rec := &ocrtest.Recognizer{TextFor: textByOrigin(map[string]string{
		"text@0,300": "Fig. 3",
	}, "Fig. 3 Throughput by region, all values in thousands")}

	doc, err := NewService(DefaultOptions(), nil).Process(context.Background(), "scan.png", pages(1), layoutEngine(seg, rec), domain.FormatStructured, nil)
	require.NoError(t, err)

	require.Len(t, doc.Pages, 1)
	els := doc.Pages[0].Elements
	require.Len(t, els, 3)
	assert.Equal(t, "Figure", els[0].Type)
	assert.Equal(t, "Caption", els[1].Type)
	assert.Equal(t, domain.TypeSafetyFallback, els[2].Type)
	assert.Equal(t, "Fig. 3 Throughput by region, all values in thousands", els[2].Content)
}

func TestServiceScenarioNoLayout(t *testing.T) {
	rec := &ocrtest.Recognizer{TextFor: textByOrigin(nil, "everything on the page")}

	doc, err := NewService(DefaultOptions(), nil).Process(context.Background(), "scan.png", pages(1), layoutEngine(&ocrtest.Segmenter{}, rec), domain.FormatStructured, nil)
	require.NoError(t, err)

	require.Len(t, doc.Pages, 1)
	assert.Equal(t, []domain.Element{{Type: domain.TypeRawText, Content: "everything on the page", Kind: domain.KindTextual}}, doc.Pages[0].Elements)
}

func TestServiceEveryPageHasElements(t *testing.T) {
	// alternate between empty layout and graphics-only layout
	rec := &ocrtest.Recognizer{TextFor: textByOrigin(nil, "")}
	for _, seg := range []*ocrtest.Segmenter{
		{},
		{Regions: []domain.Region{{BBox: pictureBox, Label: domain.LabelImage}}},
	} {
		doc, err := NewService(DefaultOptions(), nil).Process(context.Background(), "x.pdf", pages(3), layoutEngine(seg, rec), domain.FormatStructured, nil)
		require.NoError(t, err)
		require.Len(t, doc.Pages, 3)
		for _, p := range doc.Pages {
			assert.NotEmpty(t, p.Elements)
		}
	}
}

func TestServiceFailsWholeDocumentOnFatalPage(t *testing.T) {
	boom := errors.New("recognizer crashed")
	rec := &ocrtest.Recognizer{
		TextFor: textByOrigin(nil, "page text"),
		FailOn: func(call int, _ []image.Image) error {
			if call == 2 {
				return boom
			}
			return nil
		},
	}
	events := make(chan domain.StreamEvent, 32)

	doc, err := NewService(DefaultOptions(), nil).Process(context.Background(), "x.pdf", pages(3), layoutEngine(&ocrtest.Segmenter{}, rec), domain.FormatStructured, events)
	require.Error(t, err)
	assert.Nil(t, doc, "no partial document")
	assert.True(t, domain.IsRecognitionFailure(err))
	assert.Equal(t, 2, rec.Calls(), "page 3 is never attempted")

	close(events)
	var last domain.StreamEvent
	for ev := range events {
		last = ev
	}
	assert.Equal(t, domain.EventError, last.Type)
}

func TestServiceFlatEngine(t *testing.T) {
	rec := &ocrtest.Recognizer{TextFor: func(img image.Image) string { return "\n  plain tesseract text \n" }}
	eng := domain.Engine{Name: "tesseract", Mode: domain.EngineFlat, Recognizer: rec}

	doc, err := NewService(DefaultOptions(), nil).Process(context.Background(), "x.pdf", pages(2), eng, domain.FormatStructured, nil)
	require.NoError(t, err)

	assert.Equal(t, "tesseract", doc.Engine)
	require.Len(t, doc.Pages, 2)
	for i, p := range doc.Pages {
		assert.Equal(t, i+1, p.Page)
		assert.Equal(t, domain.PathFlat, p.Path)
		assert.Equal(t, []domain.Element{{Type: domain.TypeRawText, Content: "plain tesseract text", Kind: domain.KindTextual}}, p.Elements)
	}
	assert.Equal(t, 2, rec.Calls())
}

func TestServiceFlatEngineFailure(t *testing.T) {
	rec := &ocrtest.Recognizer{FailOn: func(int, []image.Image) error { return errors.New("no tessdata") }}
	eng := domain.Engine{Name: "tesseract", Mode: domain.EngineFlat, Recognizer: rec}

	_, err := NewService(DefaultOptions(), nil).Process(context.Background(), "x.pdf", pages(1), eng, domain.FormatStructured, nil)
	assert.True(t, domain.IsRecognitionFailure(err))
}

func TestServiceEmitsEvents(t *testing.T) {
	rec := &ocrtest.Recognizer{TextFor: textByOrigin(nil, "fallback text")}
	events := make(chan domain.StreamEvent, 32)

	_, err := NewService(DefaultOptions(), nil).Process(context.Background(), "x.pdf", pages(2), layoutEngine(&ocrtest.Segmenter{}, rec), domain.FormatStructured, events)
	require.NoError(t, err)
	close(events)

	var types []domain.EventType
	var stats domain.ProcessingStats
	for ev := range events {
		types = append(types, ev.Type)
		if ev.Type == domain.EventComplete {
			stats = ev.Payload.(domain.ProcessingStats)
		}
	}

	assert.Equal(t, []domain.EventType{
		domain.EventStart,
		domain.EventPageProcessing, domain.EventPageFallback, domain.EventPageComplete,
		domain.EventPageProcessing, domain.EventPageFallback, domain.EventPageComplete,
		domain.EventComplete,
	}, types)
	assert.Equal(t, 2, stats.TotalPages)
	assert.Equal(t, 2, stats.RawPages)
}

func TestServiceCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewService(DefaultOptions(), nil).Process(ctx, "x.pdf", pages(2), layoutEngine(&ocrtest.Segmenter{}, &ocrtest.Recognizer{}), domain.FormatStructured, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestServiceMissingHandle(t *testing.T) {
	eng := domain.Engine{Name: "surya", Mode: domain.EngineLayoutAware, Recognizer: &ocrtest.Recognizer{}}

	_, err := NewService(DefaultOptions(), nil).Process(context.Background(), "x.pdf", pages(1), eng, domain.FormatStructured, nil)
	require.Error(t, err)
	assert.Equal(t, domain.ErrorTypeConfig, domain.ErrorTypeOf(err))
}

func TestServicePageCountMatchesInput(t *testing.T) {
	rec := &ocrtest.Recognizer{TextFor: textByOrigin(nil, "x")}
	for _, n := range []int{0, 1, 5} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			doc, err := NewService(DefaultOptions(), nil).Process(context.Background(), "x.pdf", pages(n), layoutEngine(&ocrtest.Segmenter{}, rec), domain.FormatStructured, nil)
			require.NoError(t, err)
			assert.Len(t, doc.Pages, n)
		})
	}
}

func TestServiceFingerprint(t *testing.T) {
	eng := domain.Engine{Name: "surya", Backend: "surya"}
	base := NewService(DefaultOptions(), nil).Fingerprint(eng)

	assert.Len(t, base, 16)
	assert.Equal(t, base, NewService(DefaultOptions(), nil).Fingerprint(eng))

	changed := []struct {
		name string
		opts Options
		eng  domain.Engine
	}{
		{"threshold", Options{BatchSize: 8, ConfidenceThreshold: 10}, eng},
		{"batch size", Options{BatchSize: 4, ConfidenceThreshold: DefaultConfidenceThreshold}, eng},
		{"keep empty", Options{BatchSize: 8, ConfidenceThreshold: DefaultConfidenceThreshold, KeepEmptyElements: true}, eng},
		{"backend", DefaultOptions(), domain.Engine{Name: "surya", Backend: "gemini:gemini-1.5-flash"}},
	}
	for _, tt := range changed {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base, NewService(tt.opts, nil).Fingerprint(tt.eng))
		})
	}
}
