// Package handlers provides HTTP handlers for the OCR API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/spherical/doc-ocr/internal/domain"
	"github.com/spherical/doc-ocr/internal/observability"
	"github.com/spherical/doc-ocr/internal/scan"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to temp files.
const multipartMemory = 32 << 20

// Scanner runs one document through OCR.
type Scanner interface {
	Scan(ctx context.Context, req scan.Request) (*scan.Result, error)
}

// OCRHandler handles document upload requests.
type OCRHandler struct {
	logger   *observability.Logger
	scanner  Scanner
	maxBytes int64
}

// NewOCRHandler creates a new OCR handler. maxBytes <= 0 disables the
// upload limit.
func NewOCRHandler(logger *observability.Logger, scanner Scanner, maxBytes int64) *OCRHandler {
	return &OCRHandler{
		logger:   logger.WithOperation("http_ocr"),
		scanner:  scanner,
		maxBytes: maxBytes,
	}
}

// Process handles POST /ocr. The form carries the document as "file", an
// optional engine name as "engine" and an optional output format as
// "format" (json or text).
func (h *OCRHandler) Process(w http.ResponseWriter, r *http.Request) {
	if h.maxBytes > 0 {
		// room for the multipart envelope and the small text fields
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form", err.Error())
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required", err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read upload", err.Error())
		return
	}

	format, err := domain.ParseOutputFormat(r.FormValue("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	engine := r.FormValue("engine")
	h.logger.Info().
		Str("filename", header.Filename).
		Int64("bytes", int64(len(data))).
		Str("engine", engine).
		Str("format", string(format)).
		Msg("OCR request")

	res, err := h.scanner.Scan(r.Context(), scan.Request{
		Filename: header.Filename,
		Data:     data,
		Engine:   engine,
		Format:   format,
	})
	if err != nil {
		status := statusFor(err)
		h.logger.Error().Err(err).Str("filename", header.Filename).Int("status", status).Msg("OCR failed")
		writeError(w, status, err.Error(), "")
		return
	}

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("X-Scan-ID", res.ScanID)
	w.Header().Set("X-Engine", res.Engine)
	w.Header().Set("X-Cache", cacheHeader(res.Cached))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Output)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Output)
}

// statusFor maps a pipeline error to an HTTP status. Caller mistakes are
// 400; decode and recognition failures are 500.
func statusFor(err error) int {
	switch {
	case domain.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func cacheHeader(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := map[string]string{
		"error": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	_ = json.NewEncoder(w).Encode(resp)
}
