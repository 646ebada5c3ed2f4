// Package engine builds the OCR engines once at startup and resolves them
// by name for each request.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spherical/doc-ocr/internal/config"
	"github.com/spherical/doc-ocr/internal/domain"
	"github.com/spherical/doc-ocr/internal/engine/gemini"
	"github.com/spherical/doc-ocr/internal/engine/surya"
	"github.com/spherical/doc-ocr/internal/engine/tesseract"
	"github.com/spherical/doc-ocr/internal/observability"
	"github.com/spherical/doc-ocr/internal/recognition"
)

// Engine names understood by Resolve.
const (
	NameSurya     = "surya"
	NameTesseract = "tesseract"
)

// Registry holds the engines available to request handlers. It is safe
// for concurrent reads once built.
type Registry struct {
	engines     map[string]domain.Engine
	aliases     map[string]string
	defaultName string
	closers     []io.Closer
}

// NewRegistry creates an empty registry whose default engine is defaultName.
func NewRegistry(defaultName string) *Registry {
	return &Registry{
		engines:     make(map[string]domain.Engine),
		aliases:     make(map[string]string),
		defaultName: defaultName,
	}
}

// Register adds an engine under its name and any aliases.
func (r *Registry) Register(eng domain.Engine, aliases ...string) {
	name := strings.ToLower(eng.Name)
	r.engines[name] = eng
	for _, a := range aliases {
		r.aliases[strings.ToLower(a)] = name
	}
}

// Resolve returns the engine for name. An empty name selects the default.
func (r *Registry) Resolve(name string) (domain.Engine, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = r.defaultName
	}
	if canonical, ok := r.aliases[key]; ok {
		key = canonical
	}
	eng, ok := r.engines[key]
	if !ok {
		return domain.Engine{}, domain.ValidationError(
			fmt.Sprintf("unknown engine %q (available: %s)", name, strings.Join(r.Names(), ", ")), nil)
	}
	return eng, nil
}

// Names lists the registered engine names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.engines))
	for n := range r.engines {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Close releases every service handle owned by the registry.
func (r *Registry) Close() error {
	var errs []error
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build creates the configured engines. Each service handle gets its own
// gate so concurrent documents never call a handle more often than
// services.max_concurrent_calls allows.
func Build(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Registry, error) {
	if logger == nil {
		logger = observability.Nop()
	}
	reg := NewRegistry(NameSurya)

	newGate := func() *recognition.Gate {
		return recognition.NewGate(cfg.Services.MaxConcurrentCalls, cfg.Recognition.CallTimeout)
	}

	client := surya.NewClient(surya.Config{
		BaseURL: cfg.Services.BaseURL,
		Timeout: cfg.Services.Timeout,
		Retry: &surya.RetryConfig{
			MaxRetries:     cfg.Services.MaxRetries,
			InitialBackoff: cfg.Services.InitialBackoff,
			MaxBackoff:     cfg.Services.MaxBackoff,
		},
	}, logger)

	var rec domain.Recognizer = client
	backend := NameSurya
	if cfg.Recognition.Backend == "gemini" {
		g, err := gemini.New(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			return nil, err
		}
		reg.closers = append(reg.closers, g)
		rec = g
		backend = "gemini:" + g.Model()
	}

	reg.Register(domain.Engine{
		Name:       NameSurya,
		Mode:       domain.EngineLayoutAware,
		Backend:    backend,
		Segmenter:  recognition.GuardSegmenter(client, newGate()),
		Recognizer: recognition.GuardRecognizer(rec, newGate()),
	}, "layout", "layout-aware")

	tess, err := tesseract.New(cfg.Tesseract.Languages...)
	if err != nil {
		logger.Warn().Err(err).Msg("Tesseract engine unavailable")
	} else {
		reg.closers = append(reg.closers, tess)
		reg.Register(domain.Engine{
			Name:       NameTesseract,
			Mode:       domain.EngineFlat,
			Backend:    "tesseract:" + strings.Join(cfg.Tesseract.Languages, "+"),
			Recognizer: recognition.GuardRecognizer(tess, newGate()),
		}, "flat")
	}

	logger.Info().
		Str("recognition_backend", backend).
		Str("engines", strings.Join(reg.Names(), ",")).
		Msg("Engines ready")

	return reg, nil
}
