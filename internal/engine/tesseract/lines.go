package tesseract

import (
	"strings"

	"github.com/spherical/doc-ocr/internal/domain"
)

// linesOf splits Tesseract output into trimmed, non-empty lines.
func linesOf(text string) domain.RecognitionResult {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.RecognitionResult{}
	}
	raw := strings.Split(text, "\n")
	lines := make([]domain.TextLine, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, domain.TextLine{Text: l})
		}
	}
	return domain.RecognitionResult{TextLines: lines}
}
