//go:build !ocr

package tesseract

import (
	"context"
	"errors"
	"image"

	"github.com/spherical/doc-ocr/internal/domain"
)

// ErrNotEnabled is returned when the binary was built without the "ocr" tag.
var ErrNotEnabled = errors.New("tesseract support not enabled; rebuild with -tags ocr")

// Recognizer is unavailable in this build.
type Recognizer struct{}

// New always fails without the "ocr" build tag.
func New(languages ...string) (*Recognizer, error) {
	return nil, ErrNotEnabled
}

// Close is a no-op.
func (r *Recognizer) Close() error { return nil }

// Recognize always fails without the "ocr" build tag.
func (r *Recognizer) Recognize(ctx context.Context, images []image.Image) ([]domain.RecognitionResult, error) {
	return nil, ErrNotEnabled
}
