//go:build ocr

// Package tesseract implements the flat engine with the Tesseract OCR
// library. Building it requires the "ocr" build tag and libtesseract.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/otiai10/gosseract/v2"

	"github.com/spherical/doc-ocr/internal/domain"
)

// Recognizer runs Tesseract on each image with a fresh client.
type Recognizer struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

// New creates a Tesseract recognizer for the given languages.
func New(languages ...string) (*Recognizer, error) {
	return &Recognizer{languages: languages, clientFactory: gosseract.NewClient}, nil
}

// Close is a no-op; clients are closed after each image.
func (r *Recognizer) Close() error { return nil }

// Recognize implements domain.Recognizer.
func (r *Recognizer) Recognize(ctx context.Context, images []image.Image) ([]domain.RecognitionResult, error) {
	out := make([]domain.RecognitionResult, 0, len(images))
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := r.recognizeOne(img)
		if err != nil {
			return nil, fmt.Errorf("tesseract: image %d: %w", i, err)
		}
		out = append(out, res)
	}
	return out, nil
}

func (r *Recognizer) recognizeOne(img image.Image) (domain.RecognitionResult, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return domain.RecognitionResult{}, fmt.Errorf("encode image: %w", err)
	}

	c := r.clientFactory()
	defer c.Close()

	if len(r.languages) > 0 {
		if err := c.SetLanguage(r.languages...); err != nil {
			return domain.RecognitionResult{}, fmt.Errorf("set languages: %w", err)
		}
	}
	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return domain.RecognitionResult{}, fmt.Errorf("set image: %w", err)
	}

	text, err := c.Text()
	if err != nil {
		return domain.RecognitionResult{}, fmt.Errorf("recognize text: %w", err)
	}
	return linesOf(text), nil
}
