package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spherical/doc-ocr/internal/aggregate"
	"github.com/spherical/doc-ocr/internal/config"
	"github.com/spherical/doc-ocr/internal/domain"
	"github.com/spherical/doc-ocr/internal/engine"
	"github.com/spherical/doc-ocr/internal/extract"
	"github.com/spherical/doc-ocr/internal/observability"
	"github.com/spherical/doc-ocr/internal/raster"
)

const (
	version = "1.0.0"
)

var (
	outputPath  string
	configPath  string
	engineName  string
	formatName  string
	showVersion bool
	verbose     bool
)

func init() {
	flag.StringVar(&outputPath, "output", "", "Output file path (default: <input-name>_<engine>.json or .txt)")
	flag.StringVar(&outputPath, "o", "", "Output file path (shorthand)")
	flag.StringVar(&configPath, "config", "", "Config file path")
	flag.StringVar(&engineName, "engine", "surya", "OCR engine: surya (layout) or tesseract (flat)")
	flag.StringVar(&engineName, "e", "surya", "OCR engine (shorthand)")
	flag.StringVar(&formatName, "format", "json", "Output format: json or text")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&verbose, "verbose", false, "Enable verbose logging")
	flag.Usage = usage
}

func main() {
	flag.Parse()

	if showVersion {
		fmt.Printf("ocr-extract version %s\n", version)
		os.Exit(0)
	}

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Error: input file path required\n\n")
		usage()
		os.Exit(1)
	}
	inputPath := flag.Arg(0)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	format, err := domain.ParseOutputFormat(formatName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logLevel := "warn"
	if verbose {
		logLevel = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:       logLevel,
		Format:      "console",
		Output:      os.Stderr,
		ServiceName: "ocr-extract",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\n\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	registry, err := engine.Build(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer registry.Close()

	eng, err := registry.Resolve(engineName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if outputPath == "" {
		baseName := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
		ext := ".json"
		if format == domain.FormatNarrative {
			ext = ".txt"
		}
		outputPath = fmt.Sprintf("%s_%s%s", baseName, eng.Name, ext)
	}

	converter := raster.NewConverter(raster.Options{
		DPI:          cfg.Raster.DPI,
		MaxPages:     cfg.Raster.MaxPages,
		MaxDimension: cfg.Raster.MaxDimension,
		MaxBytes:     cfg.Server.MaxUploadBytes,
	})
	if err := raster.NewValidator(cfg.Server.MaxUploadBytes).ValidatePath(inputPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Processing: %s (engine %s)\n", inputPath, eng.Name)
	fmt.Println(strings.Repeat("=", 60))

	pages, err := converter.Convert(ctx, filepath.Base(inputPath), data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Decode failed: %v\n", err)
		os.Exit(1)
	}

	pipeline := extract.NewService(extract.Options{
		BatchSize:           cfg.Pipeline.BatchSize,
		ConfidenceThreshold: cfg.Pipeline.ConfidenceThreshold,
		KeepEmptyElements:   cfg.Pipeline.KeepEmptyElements,
	}, logger)

	eventCh := make(chan domain.StreamEvent, 100)
	type outcome struct {
		doc *domain.DocumentResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		doc, err := pipeline.Process(ctx, filepath.Base(inputPath), pages, eng, format, eventCh)
		close(eventCh)
		done <- outcome{doc: doc, err: err}
	}()

	startTime := time.Now()
	for event := range eventCh {
		switch event.Type {
		case domain.EventStart:
			fmt.Printf("✓ %s\n", event.Payload)

		case domain.EventPageProcessing:
			fmt.Printf("📄 Processing page %d...\n", event.PageNumber)

		case domain.EventPageFallback:
			fmt.Printf("   ↳ page %d took the %s path\n", event.PageNumber, event.Payload)

		case domain.EventPageComplete:
			fmt.Printf("✓ %s\n", event.Payload)

		case domain.EventError:
			fmt.Fprintf(os.Stderr, "\n❌ Error: %v\n", event.Payload)

		case domain.EventComplete:
			fmt.Println(strings.Repeat("=", 60))
			if stats, ok := event.Payload.(domain.ProcessingStats); ok {
				fmt.Printf("✓ %d pages: %d structured, %d safety fallback, %d raw fallback, %d flat\n",
					stats.TotalPages, stats.StructuredPages, stats.SafetyPages, stats.RawPages, stats.FlatPages)
			}
			fmt.Printf("Total time: %v\n", time.Since(startTime).Round(time.Millisecond))
		}
	}

	res := <-done
	if res.err != nil {
		fmt.Fprintf(os.Stderr, "\n❌ OCR failed: %v\n", res.err)
		os.Exit(1)
	}

	var out []byte
	if format == domain.FormatNarrative {
		out = []byte(aggregate.Narrative(res.doc))
	} else {
		out, err = aggregate.StructuredIndent(res.doc)
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ Failed to encode result: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("\nWriting output to: %s\n", outputPath)
	if err := os.WriteFile(outputPath, out, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to write output file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Successfully extracted %d pages to %s\n", len(res.doc.Pages), outputPath)
}

func usage() {
	fmt.Fprintf(os.Stderr, `ocr-extract - Run OCR over one PDF or image in-process

Usage:
  ocr-extract [options] <file>

Options:
  -o, --output <file>   Output file path (default: <input-name>_<engine>.json)
  -e, --engine <name>   OCR engine: surya or tesseract (default: surya)
  --format <json|text>  Output format (default: json)
  --config <file>       YAML config file
  -v, --version         Show version information
  --verbose             Enable verbose logging

Environment Variables:
  SURYA_URL             Layout/recognition model server (default: http://localhost:8001)
  RECOGNITION_BACKEND   surya or gemini
  GEMINI_API_KEY        Required when RECOGNITION_BACKEND=gemini

Examples:
  ocr-extract scan.pdf
  ocr-extract -e tesseract -o out.json scan.png
  ocr-extract --format text brochure.pdf

`)
}
