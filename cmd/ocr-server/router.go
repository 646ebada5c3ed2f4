package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical/doc-ocr/cmd/ocr-server/handlers"
	"github.com/spherical/doc-ocr/internal/observability"
)

// RouterConfig holds what the router needs beyond the handlers.
type RouterConfig struct {
	RequestTimeout time.Duration
}

// NewRouter creates the API router with all routes configured. results is
// nil when result storage is disabled, which leaves /results unrouted.
func NewRouter(
	logger *observability.Logger,
	cfg RouterConfig,
	ocr *handlers.OCRHandler,
	health *handlers.HealthHandler,
	results *handlers.ResultsHandler,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
	}

	r.Get("/health", health.Health)
	r.Get("/ready", health.Ready)
	r.Post("/ocr", ocr.Process)

	if results != nil {
		r.Route("/results", func(r chi.Router) {
			r.Get("/", results.List)
			r.Get("/{key}", results.Get)
			r.Delete("/{key}", results.Delete)
		})
	}

	return r
}

// requestLogger logs one line per request through the service logger.
func requestLogger(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info().
				Str("request_id", chimiddleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("HTTP request")
		})
	}
}
