package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/doc-ocr/internal/cache"
	"github.com/spherical/doc-ocr/internal/config"
	"github.com/spherical/doc-ocr/internal/domain"
	"github.com/spherical/doc-ocr/internal/store"
)

type resultsFixture struct {
	repo  *store.ResultRepository
	cache *cache.ResultCache
	mux   http.Handler
}

func newResultsFixture(t *testing.T) *resultsFixture {
	t.Helper()
	ctx := context.Background()

	db, driver, err := store.Open(ctx, config.StorageConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: ":memory:"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(ctx, db, driver))

	rc := cache.NewResultCache(cache.NewMemoryClient(16), time.Minute)
	t.Cleanup(func() { _ = rc.Close() })

	f := &resultsFixture{repo: store.NewResultRepository(db), cache: rc}
	h := NewResultsHandler(nil, f.repo, rc)

	r := chi.NewRouter()
	r.Get("/results", h.List)
	r.Get("/results/{key}", h.Get)
	r.Delete("/results/{key}", h.Delete)
	f.mux = r
	return f
}

func (f *resultsFixture) save(t *testing.T, hash string, format domain.OutputFormat) *store.StoredResult {
	t.Helper()
	doc := &domain.DocumentResult{
		Filename: hash + ".pdf",
		Engine:   "surya",
		Pages:    []domain.PageResult{{Page: 1, Elements: []domain.Element{{Type: "Text", Content: "stored " + hash}}}},
	}
	res := &store.StoredResult{
		ContentHash: hash,
		Filename:    doc.Filename,
		Engine:      "surya",
		Format:      format,
		Settings:    "s1",
		Document:    doc,
	}
	require.NoError(t, f.repo.Save(context.Background(), res))
	require.NoError(t, f.cache.Put(context.Background(), hash, format, "s1", doc))
	return res
}

func (f *resultsFixture) do(method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestResultsList(t *testing.T) {
	f := newResultsFixture(t)
	f.save(t, "aaa", domain.FormatStructured)
	f.save(t, "bbb", domain.FormatNarrative)

	rec := f.do(http.MethodGet, "/results")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Results []resultSummary `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Results, 2)
	for _, r := range body.Results {
		assert.NotEmpty(t, r.ID)
		assert.Equal(t, "surya", r.Engine)
		assert.Equal(t, "s1", r.Settings)
		assert.Equal(t, 1, r.PageCount)
	}

	rec = f.do(http.MethodGet, "/results?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Results, 1)
}

func TestResultsListEmpty(t *testing.T) {
	f := newResultsFixture(t)

	rec := f.do(http.MethodGet, "/results")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"results":[]}`, rec.Body.String())
}

func TestResultsListBadLimit(t *testing.T) {
	f := newResultsFixture(t)

	for _, limit := range []string{"0", "-3", "ten"} {
		rec := f.do(http.MethodGet, "/results?limit="+limit)
		assert.Equal(t, http.StatusBadRequest, rec.Code, limit)
	}
}

func TestResultsGet(t *testing.T) {
	f := newResultsFixture(t)
	saved := f.save(t, "aaa", domain.FormatStructured)

	rec := f.do(http.MethodGet, "/results/"+saved.ID.String())
	require.Equal(t, http.StatusOK, rec.Code)

	var body resultDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, saved.ID.String(), body.ID)
	assert.Equal(t, "aaa", body.ContentHash)
	assert.Equal(t, "json", body.Format)
	require.NotNil(t, body.Document)
	assert.Equal(t, "stored aaa", body.Document.Pages[0].Elements[0].Content)
}

func TestResultsGetErrors(t *testing.T) {
	f := newResultsFixture(t)

	rec := f.do(http.MethodGet, "/results/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/results/"+uuid.NewString())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResultsDeleteDropsStoreAndCache(t *testing.T) {
	f := newResultsFixture(t)
	f.save(t, "aaa", domain.FormatStructured)
	f.save(t, "aaa", domain.FormatNarrative)
	kept := f.save(t, "bbb", domain.FormatStructured)
	ctx := context.Background()

	rec := f.do(http.MethodDelete, "/results/aaa")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"content_hash":"aaa","deleted":2}`, rec.Body.String())

	_, err := f.repo.Find(ctx, "aaa", "surya", domain.FormatStructured, "s1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = f.cache.Get(ctx, "aaa", "surya", domain.FormatStructured, "s1")
	assert.True(t, cache.IsMiss(err))
	_, err = f.cache.Get(ctx, "aaa", "surya", domain.FormatNarrative, "s1")
	assert.True(t, cache.IsMiss(err))

	_, err = f.repo.GetByID(ctx, kept.ID)
	assert.NoError(t, err)
	_, err = f.cache.Get(ctx, "bbb", "surya", domain.FormatStructured, "s1")
	assert.NoError(t, err)
}

func TestResultsDeleteUnknownHash(t *testing.T) {
	f := newResultsFixture(t)

	rec := f.do(http.MethodDelete, "/results/nothing-here")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
