package layout

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/spherical/doc-ocr/internal/domain"
)

// Crop cuts box out of img. The box is clipped to the image bounds; a box
// that lies entirely outside is an error.
func Crop(img image.Image, box domain.BBox) (image.Image, error) {
	rect := box.Rect().Intersect(img.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("region %v outside image bounds %v", box, img.Bounds())
	}

	if sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	}); ok {
		return sub.SubImage(rect), nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)
	return dst, nil
}
