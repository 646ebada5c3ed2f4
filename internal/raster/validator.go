package raster

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spherical/doc-ocr/internal/domain"
)

// SupportedExtensions lists the file types the converter accepts.
var SupportedExtensions = []string{".pdf", ".png", ".jpg", ".jpeg", ".gif", ".webp", ".tif", ".tiff", ".bmp"}

// Validator provides input validation for uploaded and local files
type Validator struct {
	maxBytes int64
}

// NewValidator creates a new validator. maxBytes <= 0 disables the size check.
func NewValidator(maxBytes int64) *Validator {
	return &Validator{maxBytes: maxBytes}
}

// ValidateInput checks an in-memory upload before decoding.
func (v *Validator) ValidateInput(filename string, data []byte) error {
	if len(data) == 0 {
		return domain.ValidationError("file is empty", nil)
	}
	if v.maxBytes > 0 && int64(len(data)) > v.maxBytes {
		return domain.ValidationError(fmt.Sprintf("file is %d bytes, limit is %d", len(data), v.maxBytes), nil)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext != "" && !IsSupported(filename) {
		return domain.DecodeError(fmt.Sprintf("unsupported file type %s", ext), nil)
	}
	return nil
}

// ValidatePath validates that a local path points to a readable, supported file
func (v *Validator) ValidatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return domain.ValidationError("file path cannot be empty", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.ValidationError(fmt.Sprintf("file does not exist: %s", path), err)
		}
		return domain.ValidationError(fmt.Sprintf("cannot access file: %s", path), err)
	}

	if info.IsDir() {
		return domain.ValidationError(fmt.Sprintf("path is a directory, not a file: %s", path), nil)
	}

	if !IsSupported(path) {
		return domain.ValidationError(fmt.Sprintf("unsupported file type %q", filepath.Ext(path)), nil)
	}

	if v.maxBytes > 0 && info.Size() > v.maxBytes {
		return domain.ValidationError(fmt.Sprintf("file is %d bytes, limit is %d", info.Size(), v.maxBytes), nil)
	}

	return nil
}

// IsSupported reports whether name has a supported extension.
func IsSupported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}
