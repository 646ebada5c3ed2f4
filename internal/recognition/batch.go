// Package recognition provides batching and access control around recognizer services.
package recognition

import (
	"context"
	"fmt"
	"image"

	"github.com/spherical/doc-ocr/internal/domain"
)

// DefaultBatchSize is the number of crops sent per recognizer call.
const DefaultBatchSize = 8

// BatchRunner splits crops into fixed-size chunks and recognizes them one
// chunk at a time. Output order and length always match the input.
type BatchRunner struct {
	recognizer domain.Recognizer
	batchSize  int
}

// NewBatchRunner creates a new batch runner.
func NewBatchRunner(recognizer domain.Recognizer, batchSize int) *BatchRunner {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &BatchRunner{
		recognizer: recognizer,
		batchSize:  batchSize,
	}
}

// BatchSize returns the configured chunk size.
func (b *BatchRunner) BatchSize() int {
	return b.batchSize
}

// Run recognizes crops and returns the joined text of each, untrimmed.
// A failing chunk fails the whole run; chunks are not retried one by one.
// No further chunk is submitted once ctx is done.
func (b *BatchRunner) Run(ctx context.Context, crops []image.Image) ([]string, error) {
	texts := make([]string, 0, len(crops))

	for start := 0; start < len(crops); start += b.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start + b.batchSize
		if end > len(crops) {
			end = len(crops)
		}
		chunk := crops[start:end]

		results, err := b.recognizer.Recognize(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("recognize batch %d-%d: %w", start, end-1, err)
		}
		if len(results) != len(chunk) {
			return nil, fmt.Errorf("recognize batch %d-%d: got %d results for %d images",
				start, end-1, len(results), len(chunk))
		}

		for _, r := range results {
			texts = append(texts, r.Text())
		}
	}

	return texts, nil
}
