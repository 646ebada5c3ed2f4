// Package aggregate renders document results as structured JSON or as
// narrative text.
package aggregate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spherical/doc-ocr/internal/domain"
	"github.com/spherical/doc-ocr/internal/layout"
)

// PageHeader is the delimiter written before each page in narrative output.
const PageHeader = "# Page %d"

// Structured encodes the document as nested page/element records.
func Structured(doc *domain.DocumentResult) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("nil document")
	}
	return json.Marshal(normalize(doc))
}

// StructuredIndent is Structured with indentation, for files on disk.
func StructuredIndent(doc *domain.DocumentResult) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("nil document")
	}
	return json.MarshalIndent(normalize(doc), "", "  ")
}

// normalize makes sure empty lists encode as [] rather than null.
func normalize(doc *domain.DocumentResult) *domain.DocumentResult {
	out := *doc
	if out.Pages == nil {
		out.Pages = []domain.PageResult{}
	}
	pages := make([]domain.PageResult, len(out.Pages))
	for i, p := range out.Pages {
		if p.Elements == nil {
			p.Elements = []domain.Element{}
		}
		pages[i] = p
	}
	out.Pages = pages
	return &out
}

// Narrative renders each page as text. Graphic elements become a bracketed
// tag line and textual content is joined by newlines; pages are separated
// by a "# Page N" header.
func Narrative(doc *domain.DocumentResult) string {
	if doc == nil {
		return ""
	}
	var b strings.Builder
	for i, p := range doc.Pages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, PageHeader, p.Page)
		b.WriteString("\n\n")
		b.WriteString(NarrativePage(p))
	}
	return b.String()
}

// NarrativePage renders one page's elements in order. Graphic elements are
// recognized by their type so results decoded from JSON render the same.
func NarrativePage(p domain.PageResult) string {
	lines := make([]string, 0, len(p.Elements))
	for _, el := range p.Elements {
		if layout.Classify(domain.Label(el.Type)) == domain.KindGraphic {
			lines = append(lines, "["+el.Type+"]")
			continue
		}
		lines = append(lines, el.Content)
	}
	return strings.Join(lines, "\n")
}
