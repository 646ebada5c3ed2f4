package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spherical/doc-ocr/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		label domain.Label
		want  domain.RegionKind
	}{
		{domain.LabelPicture, domain.KindGraphic},
		{domain.LabelFigure, domain.KindGraphic},
		{domain.LabelTable, domain.KindGraphic},
		{domain.LabelImage, domain.KindGraphic},
		{domain.LabelTitle, domain.KindTextual},
		{domain.LabelText, domain.KindTextual},
		{domain.LabelSectionHeader, domain.KindTextual},
		{domain.LabelListItem, domain.KindTextual},
		{domain.LabelCaption, domain.KindTextual},
		{domain.Label("Handwriting"), domain.KindTextual},
		{domain.Label(""), domain.KindTextual},
		{domain.Label("table"), domain.KindTextual},
	}

	for _, tt := range tests {
		t.Run(string(tt.label), func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.label))
		})
	}
}

func TestPrepareOrdersByTopEdge(t *testing.T) {
	regions := []domain.Region{
		{BBox: domain.BBox{Y0: 300}, Label: domain.LabelText},
		{BBox: domain.BBox{Y0: 10}, Label: domain.LabelTitle},
		{BBox: domain.BBox{Y0: 120, X0: 50}, Label: domain.LabelPicture},
		{BBox: domain.BBox{Y0: 120, X0: 0}, Label: domain.LabelCaption},
	}

	got := Prepare(regions)

	labels := make([]domain.Label, len(got))
	for i, r := range got {
		labels[i] = r.Label
	}
	assert.Equal(t, []domain.Label{domain.LabelTitle, domain.LabelPicture, domain.LabelCaption, domain.LabelText}, labels)
	assert.Equal(t, domain.KindGraphic, got[1].Kind)
	assert.Equal(t, domain.KindTextual, got[2].Kind)
	// input untouched
	assert.Equal(t, domain.LabelText, regions[0].Label)
}

func TestTextual(t *testing.T) {
	regions := Prepare([]domain.Region{
		{BBox: domain.BBox{Y0: 0}, Label: domain.LabelTable},
		{BBox: domain.BBox{Y0: 1}, Label: domain.LabelText},
		{BBox: domain.BBox{Y0: 2}, Label: domain.LabelFigure},
		{BBox: domain.BBox{Y0: 3}, Label: domain.LabelCaption},
	})
	assert.Equal(t, []int{1, 3}, Textual(regions))
	assert.Empty(t, Textual(nil))
}
