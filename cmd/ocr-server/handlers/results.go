package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/spherical/doc-ocr/internal/domain"
	"github.com/spherical/doc-ocr/internal/observability"
	"github.com/spherical/doc-ocr/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ResultStore is the persisted result history.
type ResultStore interface {
	ListRecent(ctx context.Context, limit int) ([]*store.StoredResult, error)
	GetByID(ctx context.Context, id uuid.UUID) (*store.StoredResult, error)
	DeleteByHash(ctx context.Context, contentHash string) (int64, error)
}

// Invalidator drops cached results of a document.
type Invalidator interface {
	Invalidate(ctx context.Context, contentHash string) error
}

// ResultsHandler serves the stored result history.
type ResultsHandler struct {
	logger *observability.Logger
	store  ResultStore
	cache  Invalidator
}

// NewResultsHandler creates a results handler. cache may be nil.
func NewResultsHandler(logger *observability.Logger, results ResultStore, cache Invalidator) *ResultsHandler {
	if logger == nil {
		logger = observability.Nop()
	}
	return &ResultsHandler{
		logger: logger.WithOperation("results"),
		store:  results,
		cache:  cache,
	}
}

type resultSummary struct {
	ID          string    `json:"id"`
	ContentHash string    `json:"content_hash"`
	Filename    string    `json:"filename"`
	Engine      string    `json:"engine"`
	Format      string    `json:"format"`
	Settings    string    `json:"settings"`
	PageCount   int       `json:"page_count"`
	CreatedAt   time.Time `json:"created_at"`
}

type resultDetail struct {
	resultSummary
	Document *domain.DocumentResult `json:"document"`
}

func summarize(r *store.StoredResult) resultSummary {
	return resultSummary{
		ID:          r.ID.String(),
		ContentHash: r.ContentHash,
		Filename:    r.Filename,
		Engine:      r.Engine,
		Format:      string(r.Format),
		Settings:    r.Settings,
		PageCount:   r.PageCount,
		CreatedAt:   r.CreatedAt,
	}
}

// List handles GET /results?limit=N, newest first.
func (h *ResultsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", "")
			return
		}
		limit = min(n, maxListLimit)
	}

	results, err := h.store.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.WithContext(r.Context()).Error().Err(err).Msg("List results failed")
		writeError(w, http.StatusInternalServerError, "failed to list results", "")
		return
	}

	out := make([]resultSummary, 0, len(results))
	for _, res := range results {
		out = append(out, summarize(res))
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

// Get handles GET /results/{key}, where key is a result ID.
func (h *ResultsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid result id", err.Error())
		return
	}

	res, err := h.store.GetByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "result not found", "")
		return
	}
	if err != nil {
		h.logger.WithContext(r.Context()).Error().Err(err).Str("id", id.String()).Msg("Get result failed")
		writeError(w, http.StatusInternalServerError, "failed to load result", "")
		return
	}

	writeJSON(w, http.StatusOK, resultDetail{resultSummary: summarize(res), Document: res.Document})
}

// Delete handles DELETE /results/{key}, where key is a document's content
// hash. Every stored and cached rendering of the document is dropped.
func (h *ResultsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "key")
	log := h.logger.WithContext(r.Context())

	if h.cache != nil {
		if err := h.cache.Invalidate(r.Context(), hash); err != nil {
			log.Warn().Err(err).Str("hash", hash).Msg("Cache invalidation failed")
		}
	}

	n, err := h.store.DeleteByHash(r.Context(), hash)
	if err != nil {
		log.Error().Err(err).Str("hash", hash).Msg("Delete results failed")
		writeError(w, http.StatusInternalServerError, "failed to delete results", "")
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, "no stored results for document", "")
		return
	}

	log.Info().Str("hash", hash).Int64("deleted", n).Msg("Deleted stored results")
	writeJSON(w, http.StatusOK, map[string]any{"content_hash": hash, "deleted": n})
}
