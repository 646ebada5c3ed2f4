// Package ocrtest provides in-memory segmenters and recognizers for tests.
package ocrtest

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"

	"github.com/spherical/doc-ocr/internal/domain"
)

// Page returns a white page image of the given size.
func Page(number, width, height int) domain.PageImage {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.White)
		}
	}
	return domain.PageImage{PageNumber: number, Image: img, Width: width, Height: height}
}

// Segmenter returns a fixed region list.
type Segmenter struct {
	Regions []domain.Region
	Err     error
	Panic   bool

	mu    sync.Mutex
	calls int
}

// Segment implements domain.LayoutSegmenter.
func (s *Segmenter) Segment(ctx context.Context, img image.Image) ([]domain.Region, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.Panic {
		panic("segmenter exploded")
	}
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]domain.Region, len(s.Regions))
	copy(out, s.Regions)
	return out, nil
}

// Calls returns how many times Segment was invoked.
func (s *Segmenter) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Recognizer answers every image with the text chosen by TextFor. By
// default the text names the image origin, e.g. "text@10,20".
type Recognizer struct {
	TextFor func(img image.Image) string
	// FailOn decides per call whether to fail; call numbers start at 1.
	FailOn func(call int, images []image.Image) error
	// PanicOn decides per call whether to panic.
	PanicOn func(call int, images []image.Image) bool

	mu      sync.Mutex
	batches [][]image.Image
}

// Recognize implements domain.Recognizer.
func (r *Recognizer) Recognize(ctx context.Context, images []image.Image) ([]domain.RecognitionResult, error) {
	r.mu.Lock()
	r.batches = append(r.batches, append([]image.Image(nil), images...))
	call := len(r.batches)
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.PanicOn != nil && r.PanicOn(call, images) {
		panic("recognizer exploded")
	}
	if r.FailOn != nil {
		if err := r.FailOn(call, images); err != nil {
			return nil, err
		}
	}

	out := make([]domain.RecognitionResult, len(images))
	for i, img := range images {
		text := Origin(img)
		if r.TextFor != nil {
			text = r.TextFor(img)
		}
		out[i] = domain.RecognitionResult{TextLines: []domain.TextLine{{Text: text}}}
	}
	return out, nil
}

// Batches returns the image batches seen so far.
func (r *Recognizer) Batches() [][]image.Image {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]image.Image(nil), r.batches...)
}

// Calls returns how many times Recognize was invoked.
func (r *Recognizer) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

// Origin labels an image by the top-left corner of its bounds.
func Origin(img image.Image) string {
	b := img.Bounds()
	return fmt.Sprintf("text@%d,%d", b.Min.X, b.Min.Y)
}

// IsWholePage reports whether img covers the full page of the given size.
func IsWholePage(img image.Image, width, height int) bool {
	return img.Bounds() == image.Rect(0, 0, width, height)
}

// PNG encodes a white width x height page as PNG bytes.
func PNG(width, height int) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, Page(1, width, height).Image); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
