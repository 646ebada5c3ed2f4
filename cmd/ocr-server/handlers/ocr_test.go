package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/doc-ocr/internal/domain"
	"github.com/spherical/doc-ocr/internal/observability"
	"github.com/spherical/doc-ocr/internal/scan"
)

type fakeScanner struct {
	got scan.Request
	res *scan.Result
	err error
}

func (f *fakeScanner) Scan(ctx context.Context, req scan.Request) (*scan.Result, error) {
	f.got = req
	return f.res, f.err
}

func uploadRequest(t *testing.T, filename string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/ocr", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestProcessSuccess(t *testing.T) {
	sc := &fakeScanner{res: &scan.Result{
		ScanID:      "scan-1",
		Engine:      "surya",
		ContentType: "application/json",
		Output:      []byte(`{"filename":"a.png","engine":"surya","pages":[]}`),
		Cached:      true,
	}}
	h := NewOCRHandler(observability.Nop(), sc, 1<<20)

	rec := httptest.NewRecorder()
	h.Process(rec, uploadRequest(t, "a.png", []byte("PNG"), map[string]string{"engine": "surya", "format": "json"}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "scan-1", rec.Header().Get("X-Scan-ID"))
	assert.Equal(t, "hit", rec.Header().Get("X-Cache"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"filename":"a.png","engine":"surya","pages":[]}`, rec.Body.String())

	assert.Equal(t, "a.png", sc.got.Filename)
	assert.Equal(t, []byte("PNG"), sc.got.Data)
	assert.Equal(t, "surya", sc.got.Engine)
	assert.Equal(t, domain.FormatStructured, sc.got.Format)
}

func TestProcessNarrativeFormat(t *testing.T) {
	sc := &fakeScanner{res: &scan.Result{ContentType: "text/plain; charset=utf-8", Output: []byte("# Page 1\n\nhi")}}
	h := NewOCRHandler(observability.Nop(), sc, 0)

	rec := httptest.NewRecorder()
	h.Process(rec, uploadRequest(t, "a.png", []byte("PNG"), map[string]string{"format": "text"}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.FormatNarrative, sc.got.Format)
	assert.Equal(t, "# Page 1\n\nhi", rec.Body.String())
}

func TestProcessErrors(t *testing.T) {
	tests := []struct {
		name       string
		filename   string
		fields     map[string]string
		scanErr    error
		wantStatus int
		wantError  string
	}{
		{
			name:       "missing file",
			wantStatus: http.StatusBadRequest,
			wantError:  "file is required",
		},
		{
			name:       "bad format",
			filename:   "a.png",
			fields:     map[string]string{"format": "xml"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown engine",
			filename:   "a.png",
			scanErr:    domain.ValidationError(`unknown engine "paddle"`, nil),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "decode failure",
			filename:   "a.png",
			scanErr:    domain.DecodeError("cannot decode image", errors.New("bad header")),
			wantStatus: http.StatusInternalServerError,
			wantError:  "[decode] cannot decode image: bad header",
		},
		{
			name:       "recognition failure",
			filename:   "a.png",
			scanErr:    domain.RecognitionError("whole-page recognition failed", errors.New("down")),
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "timeout",
			filename:   "a.png",
			scanErr:    context.DeadlineExceeded,
			wantStatus: http.StatusGatewayTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := &fakeScanner{err: tt.scanErr}
			h := NewOCRHandler(observability.Nop(), sc, 0)

			rec := httptest.NewRecorder()
			h.Process(rec, uploadRequest(t, tt.filename, []byte("data"), tt.fields))

			assert.Equal(t, tt.wantStatus, rec.Code)
			msg := decodeError(t, rec)
			assert.NotEmpty(t, msg)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, msg)
			}
		})
	}
}

func TestProcessTooLarge(t *testing.T) {
	sc := &fakeScanner{}
	h := NewOCRHandler(observability.Nop(), sc, 16)

	big := bytes.Repeat([]byte("x"), 2<<20)
	rec := httptest.NewRecorder()
	h.Process(rec, uploadRequest(t, "big.png", big, nil))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, sc.got.Filename)
}

func TestReady(t *testing.T) {
	ok := NewHealthHandler("doc-ocr", map[string]Check{
		"engines": func(context.Context) error { return nil },
	})
	rec := httptest.NewRecorder()
	ok.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	failing := NewHealthHandler("doc-ocr", map[string]Check{
		"storage": func(context.Context) error { return errors.New("db down") },
	})
	rec = httptest.NewRecorder()
	failing.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "db down")

	rec = httptest.NewRecorder()
	failing.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}
