package domain

import (
	"context"
	"image"
)

// LayoutSegmenter splits a page image into labeled regions
type LayoutSegmenter interface {
	// Segment returns the regions of img ordered by top edge. An empty slice
	// means no structure was found.
	Segment(ctx context.Context, img image.Image) ([]Region, error)
}

// Recognizer turns images into text lines
type Recognizer interface {
	// Recognize returns one result per input image, in input order.
	Recognize(ctx context.Context, images []image.Image) ([]RecognitionResult, error)
}

// Rasterizer turns an uploaded file into page images
type Rasterizer interface {
	// Convert decodes data according to filename and returns pages in order.
	Convert(ctx context.Context, filename string, data []byte) ([]PageImage, error)
}

// EngineMode selects how a document is recognized.
type EngineMode int

const (
	// EngineLayoutAware segments each page and recognizes regions.
	EngineLayoutAware EngineMode = iota
	// EngineFlat recognizes each whole page without layout analysis.
	EngineFlat
)

// Engine bundles the service handles used for one engine name.
// Segmenter is nil for flat engines. Backend identifies the recognition
// backend behind the handles (for example "gemini:gemini-2.0-flash") and
// is part of every stored result's settings fingerprint.
type Engine struct {
	Name       string
	Mode       EngineMode
	Backend    string
	Segmenter  LayoutSegmenter
	Recognizer Recognizer
}
