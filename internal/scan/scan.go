// Package scan runs one uploaded document through decoding, engine
// selection, the page pipeline and result rendering, with optional result
// caching and persistence keyed by the document's content hash.
package scan

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/spherical/doc-ocr/internal/aggregate"
	"github.com/spherical/doc-ocr/internal/cache"
	"github.com/spherical/doc-ocr/internal/domain"
	"github.com/spherical/doc-ocr/internal/extract"
	"github.com/spherical/doc-ocr/internal/observability"
	"github.com/spherical/doc-ocr/internal/store"
)

// EngineResolver looks up an engine by name.
type EngineResolver interface {
	Resolve(name string) (domain.Engine, error)
}

// Request is one document to scan.
type Request struct {
	Filename string
	Data     []byte
	Engine   string
	Format   domain.OutputFormat
	Events   chan<- domain.StreamEvent
}

// Result is a finished scan.
type Result struct {
	ScanID      string
	ContentHash string
	Engine      string
	Format      domain.OutputFormat
	Document    *domain.DocumentResult
	Output      []byte
	ContentType string
	Cached      bool
	Duration    time.Duration
}

// Service wires decoding, engines, the pipeline and result storage.
type Service struct {
	raster   domain.Rasterizer
	engines  EngineResolver
	pipeline *extract.Service
	cache    *cache.ResultCache
	store    *store.ResultRepository
	logger   *observability.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables result caching.
func WithCache(c *cache.ResultCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithStore enables result persistence.
func WithStore(r *store.ResultRepository) Option {
	return func(s *Service) { s.store = r }
}

// NewService creates a scan service.
func NewService(
	raster domain.Rasterizer,
	engines EngineResolver,
	pipeline *extract.Service,
	logger *observability.Logger,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = observability.Nop()
	}
	s := &Service{
		raster:   raster,
		engines:  engines,
		pipeline: pipeline,
		logger:   logger.WithOperation("scan"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan processes req. The engine is resolved before the document is
// decoded so an unknown engine name fails fast with a validation error.
func (s *Service) Scan(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	scanID := uuid.NewString()
	ctx = observability.ContextWithScanID(ctx, scanID)
	log := s.logger.WithContext(ctx)

	if req.Format == "" {
		req.Format = domain.FormatStructured
	}

	eng, err := s.engines.Resolve(req.Engine)
	if err != nil {
		return nil, err
	}

	hash := ContentHash(req.Data)
	settings := s.pipeline.Fingerprint(eng)
	res := &Result{
		ScanID:      scanID,
		ContentHash: hash,
		Engine:      eng.Name,
		Format:      req.Format,
	}

	if doc := s.lookup(ctx, hash, eng.Name, req.Format, settings); doc != nil {
		doc.Filename = req.Filename
		res.Document = doc
		res.Cached = true
		log.Info().Str("filename", req.Filename).Str("hash", hash).Msg("Serving stored result")
		return s.render(res, start)
	}

	pages, err := s.raster.Convert(ctx, req.Filename, req.Data)
	if err != nil {
		log.Warn().Err(err).Str("filename", req.Filename).Msg("Decode failed")
		return nil, err
	}

	doc, err := s.pipeline.Process(ctx, req.Filename, pages, eng, req.Format, req.Events)
	if err != nil {
		return nil, err
	}
	res.Document = doc

	s.remember(ctx, hash, req.Format, settings, doc)

	return s.render(res, start)
}

// lookup returns a result previously computed under the same settings
// fingerprint from the cache, then the store. Lookup failures are logged
// and treated as misses.
func (s *Service) lookup(ctx context.Context, hash, engine string, format domain.OutputFormat, settings string) *domain.DocumentResult {
	log := s.logger.WithContext(ctx)

	if s.cache != nil {
		doc, err := s.cache.Get(ctx, hash, engine, format, settings)
		if err == nil {
			return doc
		}
		if !cache.IsMiss(err) {
			log.Warn().Err(err).Msg("Cache lookup failed")
		}
	}

	if s.store != nil {
		stored, err := s.store.Find(ctx, hash, engine, format, settings)
		if err == nil {
			if s.cache != nil {
				if err := s.cache.Put(ctx, hash, format, settings, stored.Document); err != nil {
					log.Warn().Err(err).Msg("Cache write failed")
				}
			}
			return stored.Document
		}
		if !errors.Is(err, store.ErrNotFound) {
			log.Warn().Err(err).Msg("Store lookup failed")
		}
	}

	return nil
}

func (s *Service) remember(ctx context.Context, hash string, format domain.OutputFormat, settings string, doc *domain.DocumentResult) {
	log := s.logger.WithContext(ctx)

	if s.cache != nil {
		if err := s.cache.Put(ctx, hash, format, settings, doc); err != nil {
			log.Warn().Err(err).Msg("Cache write failed")
		}
	}
	if s.store != nil {
		err := s.store.Save(ctx, &store.StoredResult{
			ContentHash: hash,
			Filename:    doc.Filename,
			Engine:      doc.Engine,
			Format:      format,
			Settings:    settings,
			Document:    doc,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Store write failed")
		}
	}
}

func (s *Service) render(res *Result, start time.Time) (*Result, error) {
	switch res.Format {
	case domain.FormatNarrative:
		res.Output = []byte(aggregate.Narrative(res.Document))
		res.ContentType = "text/plain; charset=utf-8"
	default:
		out, err := aggregate.Structured(res.Document)
		if err != nil {
			return nil, err
		}
		res.Output = out
		res.ContentType = "application/json"
	}
	res.Duration = time.Since(start)
	return res, nil
}

// ContentHash returns the hex sha256 of data.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
