package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/spherical/doc-ocr/internal/domain"
)

// DefaultConfidenceThreshold is the minimum number of recognized characters
// a page needs before its structured output is trusted on its own.
const DefaultConfidenceThreshold = 50

// ConfidenceSignal is the amount of text found in a page's textual regions.
type ConfidenceSignal struct {
	TotalChars int
}

// SignalFrom sums the trimmed rune counts of textual region outputs.
func SignalFrom(texts []string) ConfidenceSignal {
	var n int
	for _, t := range texts {
		n += utf8.RuneCountInString(strings.TrimSpace(t))
	}
	return ConfidenceSignal{TotalChars: n}
}

// ConfidencePolicy decides whether structured output can stand alone.
type ConfidencePolicy struct {
	Threshold int
}

// NewConfidencePolicy returns a policy with the given threshold. A negative
// threshold selects the default.
func NewConfidencePolicy(threshold int) ConfidencePolicy {
	if threshold < 0 {
		threshold = DefaultConfidenceThreshold
	}
	return ConfidencePolicy{Threshold: threshold}
}

// IsReliable reports whether the signal meets the threshold.
func (p ConfidencePolicy) IsReliable(s ConfidenceSignal) bool {
	return s.TotalChars >= p.Threshold
}

// rawElementType picks the tag used for whole-page fallback output.
func rawElementType(format domain.OutputFormat) string {
	if format == domain.FormatNarrative {
		return domain.TypeFullPageText
	}
	return domain.TypeRawText
}
