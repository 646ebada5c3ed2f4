package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/doc-ocr/internal/domain"
)

func TestProcessSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/ocr", r.URL.Path)

		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "tesseract", r.FormValue("engine"))
		assert.Equal(t, "json", r.FormValue("format"))

		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "scan.png", hdr.Filename)
		assert.Equal(t, "PNGDATA", string(data))

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Scan-ID", "scan-1")
		_ = json.NewEncoder(w).Encode(domain.DocumentResult{
			Filename: hdr.Filename,
			Engine:   "tesseract",
			Pages: []domain.PageResult{{
				Page:     1,
				Elements: []domain.Element{{Type: domain.TypeRawText, Content: "hello"}},
			}},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, 5*time.Second)
	resp, err := c.Process(context.Background(), "scan.png", []byte("PNGDATA"), "tesseract", domain.FormatStructured)
	require.NoError(t, err)
	assert.Equal(t, "scan-1", resp.ScanID)

	doc, err := resp.Document()
	require.NoError(t, err)
	require.Len(t, doc.Pages, 1)
	assert.Equal(t, "hello", doc.Pages[0].Elements[0].Content)
}

func TestProcessAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"[decode] cannot decode image"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, 0)
	_, err := c.Process(context.Background(), "bad.png", []byte("x"), "", "")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "[decode] cannot decode image", apiErr.Message)
}

func TestProcessPlainTextError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway down", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, 0).Process(context.Background(), "a.png", []byte("x"), "", "")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "gateway down", apiErr.Message)
}

func TestProcessFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		assert.Equal(t, "doc.pdf", hdr.Filename)
		assert.Empty(t, r.FormValue("engine"))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("# Page 1\n\nhi"))
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))

	resp, err := NewClient(server.URL+"/", 0).ProcessFile(context.Background(), path, "", domain.FormatNarrative)
	require.NoError(t, err)
	assert.Equal(t, "# Page 1\n\nhi", string(resp.Body))

	_, err = NewClient(server.URL, 0).ProcessFile(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"), "", "")
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, time.Second)
	assert.NoError(t, c.Health(context.Background()))

	healthy.Store(false)
	assert.Error(t, c.Health(context.Background()))
}
