// Package layout classifies and orders the regions produced by a layout segmenter.
package layout

import (
	"sort"

	"github.com/spherical/doc-ocr/internal/domain"
)

// Classify maps a region label to the kind of handling it receives.
// Unknown labels are treated as text so that nothing readable is skipped.
func Classify(label domain.Label) domain.RegionKind {
	switch label {
	case domain.LabelPicture, domain.LabelFigure, domain.LabelTable, domain.LabelImage:
		return domain.KindGraphic
	default:
		return domain.KindTextual
	}
}

// Prepare returns a copy of regions with Kind set and ordered by top edge.
// Regions sharing a top edge keep their segmenter order.
func Prepare(regions []domain.Region) []domain.Region {
	out := make([]domain.Region, len(regions))
	for i, r := range regions {
		r.Kind = Classify(r.Label)
		out[i] = r
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].BBox.Y0 < out[j].BBox.Y0
	})
	return out
}

// Textual returns the indexes of textual regions, in order.
func Textual(regions []domain.Region) []int {
	idx := make([]int, 0, len(regions))
	for i, r := range regions {
		if r.Kind == domain.KindTextual {
			idx = append(idx, i)
		}
	}
	return idx
}
