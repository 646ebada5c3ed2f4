// Package raster turns uploaded documents into in-memory page images.
package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/spherical/doc-ocr/internal/domain"
)

// DefaultDPI renders PDF pages at twice the 72 DPI page space.
const DefaultDPI = 144

var pdfMagic = []byte("%PDF-")

// Options configures a Converter.
type Options struct {
	DPI          float64
	MaxPages     int
	MaxDimension int
	MaxBytes     int64
}

// Converter renders PDFs with MuPDF and decodes raster images. Every page
// comes back as an RGBA image.
type Converter struct {
	opts      Options
	validator *Validator
}

// NewConverter creates a new converter instance
func NewConverter(opts Options) *Converter {
	if opts.DPI <= 0 {
		opts.DPI = DefaultDPI
	}
	return &Converter{
		opts:      opts,
		validator: NewValidator(opts.MaxBytes),
	}
}

// Convert decodes data into page images, in page order.
func (c *Converter) Convert(ctx context.Context, filename string, data []byte) ([]domain.PageImage, error) {
	if err := c.validator.ValidateInput(filename, data); err != nil {
		return nil, err
	}

	if IsPDF(filename, data) {
		return c.convertPDF(ctx, data)
	}

	img, err := c.decodeImage(data)
	if err != nil {
		return nil, err
	}
	return []domain.PageImage{pageImage(1, img)}, nil
}

// IsPDF reports whether the upload is a PDF, by extension or magic bytes.
func IsPDF(filename string, data []byte) bool {
	if strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return true
	}
	return bytes.HasPrefix(data, pdfMagic)
}

func (c *Converter) convertPDF(ctx context.Context, data []byte) ([]domain.PageImage, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, domain.DecodeError("failed to open PDF", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, domain.DecodeError("PDF has no pages", nil)
	}
	if c.opts.MaxPages > 0 && pageCount > c.opts.MaxPages {
		return nil, domain.ValidationError(fmt.Sprintf("PDF has %d pages, limit is %d", pageCount, c.opts.MaxPages), nil)
	}

	pages := make([]domain.PageImage, 0, pageCount)
	for n := 0; n < pageCount; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img, err := doc.ImageDPI(n, c.opts.DPI)
		if err != nil {
			return nil, domain.DecodeError(fmt.Sprintf("failed to render page %d", n+1), err)
		}
		pages = append(pages, pageImage(n+1, c.downscale(img)))
	}

	return pages, nil
}

func (c *Converter) decodeImage(data []byte) (*image.RGBA, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, domain.DecodeError("failed to decode image", err)
	}
	return c.downscale(toRGBA(img)), nil
}

// downscale shrinks img so its longer side fits MaxDimension.
func (c *Converter) downscale(img *image.RGBA) *image.RGBA {
	limit := c.opts.MaxDimension
	b := img.Bounds()
	if limit <= 0 || (b.Dx() <= limit && b.Dy() <= limit) {
		return img
	}

	w, h := b.Dx(), b.Dy()
	if w >= h {
		h = h * limit / w
		w = limit
	} else {
		w = w * limit / h
		h = limit
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// toRGBA normalizes img to an RGBA image anchored at the origin.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func pageImage(n int, img *image.RGBA) domain.PageImage {
	b := img.Bounds()
	return domain.PageImage{
		PageNumber: n,
		Image:      img,
		Width:      b.Dx(),
		Height:     b.Dy(),
	}
}
