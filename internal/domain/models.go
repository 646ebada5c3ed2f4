package domain

import (
	"image"
	"math"
	"strings"
	"time"
)

// Label is the layout label a segmenter assigns to a region.
type Label string

const (
	LabelTitle         Label = "Title"
	LabelText          Label = "Text"
	LabelSectionHeader Label = "Section-header"
	LabelListItem      Label = "List-item"
	LabelCaption       Label = "Caption"
	LabelPageHeader    Label = "Page-header"
	LabelPageFooter    Label = "Page-footer"
	LabelFootnote      Label = "Footnote"
	LabelFormula       Label = "Formula"
	LabelPicture       Label = "Picture"
	LabelFigure        Label = "Figure"
	LabelTable         Label = "Table"
	LabelImage         Label = "Image"
)

// RegionKind partitions regions into those that get recognized and those
// that are only marked.
type RegionKind int

const (
	KindTextual RegionKind = iota
	KindGraphic
)

func (k RegionKind) String() string {
	switch k {
	case KindGraphic:
		return "graphic"
	default:
		return "textual"
	}
}

// Synthetic element types produced by the fallback paths.
const (
	TypeFullPageText   = "Full-Page-Text"
	TypeRawText        = "Raw-Text"
	TypeSafetyFallback = "Safety-Fallback-Text"
)

// GraphicPlaceholder is the content of every graphic element.
const GraphicPlaceholder = "[DIAGRAM/TABLE DETECTED]"

// BBox is an axis-aligned box in page pixel space.
type BBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Rect converts the box to an integer rectangle, rounding outward.
func (b BBox) Rect() image.Rectangle {
	return image.Rect(
		int(math.Floor(b.X0)), int(math.Floor(b.Y0)),
		int(math.Ceil(b.X1)), int(math.Ceil(b.Y1)),
	)
}

// Region is one segment of a page. Kind is set by the classifier.
type Region struct {
	BBox  BBox
	Label Label
	Kind  RegionKind
}

// Element is one unit of recognized content on a page.
type Element struct {
	Type    string     `json:"type"`
	Content string     `json:"content"`
	Kind    RegionKind `json:"-"`
}

// PagePath records which route the page pipeline took.
type PagePath string

const (
	PathStructured PagePath = "structured"
	PathSafety     PagePath = "safety_fallback"
	PathRaw        PagePath = "raw_fallback"
	PathFlat       PagePath = "flat"
)

// PageResult holds the elements of one page. Page is 1-based.
type PageResult struct {
	Page     int       `json:"page"`
	Elements []Element `json:"elements"`
	Path     PagePath  `json:"-"`
}

// DocumentResult is the outcome of processing a whole document.
type DocumentResult struct {
	Filename string       `json:"filename"`
	Engine   string       `json:"engine"`
	Pages    []PageResult `json:"pages"`
}

// PageImage is a rendered page held in memory. Image is released once the
// page is done.
type PageImage struct {
	PageNumber int
	Image      image.Image
	Width      int
	Height     int
}

// TextLine is a single line reported by a recognizer.
type TextLine struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
}

// RecognitionResult is the recognizer output for one image.
type RecognitionResult struct {
	TextLines []TextLine `json:"text_lines"`
}

// Text joins the result's lines with a single space.
func (r RecognitionResult) Text() string {
	parts := make([]string, len(r.TextLines))
	for i, l := range r.TextLines {
		parts[i] = l.Text
	}
	return strings.Join(parts, " ")
}

// OutputFormat selects how a document result is rendered.
type OutputFormat string

const (
	FormatStructured OutputFormat = "json"
	FormatNarrative  OutputFormat = "text"
)

// ParseOutputFormat maps caller input to an OutputFormat. Empty means structured.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json", "structured":
		return FormatStructured, nil
	case "text", "txt", "narrative":
		return FormatNarrative, nil
	default:
		return "", ValidationError("unsupported output format: "+s, nil)
	}
}

// StreamEvent represents an event emitted while a document is processed
type StreamEvent struct {
	Type       EventType
	PageNumber int
	Payload    interface{}
	Timestamp  time.Time
}

// EventType defines the type of stream event
type EventType string

const (
	EventStart          EventType = "start"
	EventPageProcessing EventType = "page_processing"
	EventPageFallback   EventType = "page_fallback"
	EventPageComplete   EventType = "page_complete"
	EventError          EventType = "error"
	EventComplete       EventType = "complete"
)

// ProcessingStats tracks statistics during processing
type ProcessingStats struct {
	TotalPages      int
	StructuredPages int
	SafetyPages     int
	RawPages        int
	FlatPages       int
	Duration        time.Duration
}

// Record counts a finished page by the path it took.
func (s *ProcessingStats) Record(p PagePath) {
	s.TotalPages++
	switch p {
	case PathStructured:
		s.StructuredPages++
	case PathSafety:
		s.SafetyPages++
	case PathRaw:
		s.RawPages++
	case PathFlat:
		s.FlatPages++
	}
}
