package raster

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/doc-ocr/internal/domain"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestConvertImage(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 40, 20))
	src.Set(5, 5, color.Gray{Y: 200})

	pages, err := NewConverter(Options{}).Convert(context.Background(), "scan.PNG", encodePNG(t, src))
	require.NoError(t, err)

	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].PageNumber)
	assert.Equal(t, 40, pages[0].Width)
	assert.Equal(t, 20, pages[0].Height)
	_, ok := pages[0].Image.(*image.RGBA)
	assert.True(t, ok, "images are normalized to RGBA")
}

func TestConvertImageDownscale(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 400, 100))

	pages, err := NewConverter(Options{MaxDimension: 200}).Convert(context.Background(), "wide.png", encodePNG(t, src))
	require.NoError(t, err)
	assert.Equal(t, 200, pages[0].Width)
	assert.Equal(t, 50, pages[0].Height)
}

func TestConvertErrors(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     []byte
		check    func(error) bool
	}{
		{"empty upload", "a.png", nil, domain.IsValidationError},
		{"spreadsheet", "book.xlsx", []byte("PK\x03\x04"), domain.IsDecodeError},
		{"corrupt image", "a.jpg", []byte("not really a jpeg"), domain.IsDecodeError},
		{"corrupt pdf", "a.pdf", []byte("%PDF-1.7 this is not a pdf"), domain.IsDecodeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConverter(Options{}).Convert(context.Background(), tt.filename, tt.data)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error type: %v", err)
		})
	}
}

func TestConvertSizeLimit(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 10, 10))
	_, err := NewConverter(Options{MaxBytes: 8}).Convert(context.Background(), "a.png", encodePNG(t, src))
	assert.True(t, domain.IsValidationError(err))
}

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF("Report.PDF", nil))
	assert.True(t, IsPDF("upload", []byte("%PDF-1.4\n")))
	assert.False(t, IsPDF("photo.png", []byte{0x89, 'P', 'N', 'G'}))
}

func TestValidatePath(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "page.png")
	require.NoError(t, os.WriteFile(good, []byte("x"), 0o644))
	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("x"), 0o644))

	v := NewValidator(0)
	assert.NoError(t, v.ValidatePath(good))
	assert.Error(t, v.ValidatePath(""))
	assert.Error(t, v.ValidatePath(dir))
	assert.Error(t, v.ValidatePath(notes))
	assert.Error(t, v.ValidatePath(filepath.Join(dir, "missing.pdf")))
}
