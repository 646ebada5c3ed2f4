package recognition

import (
	"context"
	"image"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/spherical/doc-ocr/internal/domain"
)

// Gate bounds how many calls may be in flight against one service handle
// and applies a per-call timeout. Handles that are not safe for concurrent
// use get a gate of weight 1.
type Gate struct {
	sem     *semaphore.Weighted
	timeout time.Duration
}

// NewGate creates a gate allowing maxConcurrent calls at a time.
func NewGate(maxConcurrent int64, timeout time.Duration) *Gate {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Gate{
		sem:     semaphore.NewWeighted(maxConcurrent),
		timeout: timeout,
	}
}

// Do runs fn once a slot is free. The context passed to fn carries the
// per-call timeout, which starts after the slot is acquired.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.sem.Release(1)

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	return fn(ctx)
}

type gatedRecognizer struct {
	next domain.Recognizer
	gate *Gate
}

// GuardRecognizer wraps r so that every call passes through gate.
func GuardRecognizer(r domain.Recognizer, gate *Gate) domain.Recognizer {
	return &gatedRecognizer{next: r, gate: gate}
}

func (g *gatedRecognizer) Recognize(ctx context.Context, images []image.Image) ([]domain.RecognitionResult, error) {
	var out []domain.RecognitionResult
	err := g.gate.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.next.Recognize(ctx, images)
		return err
	})
	return out, err
}

type gatedSegmenter struct {
	next domain.LayoutSegmenter
	gate *Gate
}

// GuardSegmenter wraps s so that every call passes through gate.
func GuardSegmenter(s domain.LayoutSegmenter, gate *Gate) domain.LayoutSegmenter {
	return &gatedSegmenter{next: s, gate: gate}
}

func (g *gatedSegmenter) Segment(ctx context.Context, img image.Image) ([]domain.Region, error) {
	var out []domain.Region
	err := g.gate.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.next.Segment(ctx, img)
		return err
	})
	return out, err
}
