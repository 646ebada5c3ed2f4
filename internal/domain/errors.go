package domain

import (
	"errors"
	"fmt"
)

// Error types for domain-specific errors
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeDecode       ErrorType = "decode"
	ErrorTypeSegmentation ErrorType = "segmentation"
	ErrorTypeRecognition  ErrorType = "recognition"
	ErrorTypeAPI          ErrorType = "api"
	ErrorTypeConfig       ErrorType = "config"
	ErrorTypeIO           ErrorType = "io"
	ErrorTypeCache        ErrorType = "cache"
	ErrorTypeStorage      ErrorType = "storage"
)

// DomainError represents a domain-specific error with context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error
func NewError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func ValidationError(message string, err error) *DomainError {
	return NewError(ErrorTypeValidation, message, err)
}

// DecodeError reports an input that could not be turned into page images.
func DecodeError(message string, err error) *DomainError {
	return NewError(ErrorTypeDecode, message, err)
}

// SegmentationError reports a layout segmenter failure. It never leaves the
// page pipeline; the page falls back to whole-page recognition instead.
func SegmentationError(message string, err error) *DomainError {
	return NewError(ErrorTypeSegmentation, message, err)
}

// RecognitionError reports a recognizer failure on the last-resort path.
func RecognitionError(message string, err error) *DomainError {
	return NewError(ErrorTypeRecognition, message, err)
}

func APIError(message string, err error) *DomainError {
	return NewError(ErrorTypeAPI, message, err)
}

func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfig, message, err)
}

func IOError(message string, err error) *DomainError {
	return NewError(ErrorTypeIO, message, err)
}

func CacheError(message string, err error) *DomainError {
	return NewError(ErrorTypeCache, message, err)
}

func StorageError(message string, err error) *DomainError {
	return NewError(ErrorTypeStorage, message, err)
}

// ErrorTypeOf returns the type of the first DomainError in err's chain, or
// an empty string if there is none.
func ErrorTypeOf(err error) ErrorType {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type
	}
	return ""
}

// IsDecodeError reports whether err is a decode failure.
func IsDecodeError(err error) bool {
	return ErrorTypeOf(err) == ErrorTypeDecode
}

// IsRecognitionFailure reports whether err is a fatal recognizer failure.
func IsRecognitionFailure(err error) bool {
	return ErrorTypeOf(err) == ErrorTypeRecognition
}

// IsValidationError reports whether err was caused by bad caller input.
func IsValidationError(err error) bool {
	return ErrorTypeOf(err) == ErrorTypeValidation
}
