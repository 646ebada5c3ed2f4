package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/spherical/doc-ocr/cmd/ocr-batch/ui"
	"github.com/spherical/doc-ocr/internal/client"
	"github.com/spherical/doc-ocr/internal/domain"
	"github.com/spherical/doc-ocr/internal/raster"
)

var (
	scanInput       string
	scanOutput      string
	scanEngine      string
	scanServer      string
	scanConcurrency int
	scanTimeout     time.Duration
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "OCR every document in a folder",
	Long:  "Upload every supported file in the input folder to the OCR API and save the structured results.",
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().StringVarP(&scanInput, "input", "i", "./documents_to_scan", "folder with documents to scan")
	scanCmd.Flags().StringVarP(&scanOutput, "output", "o", "./ocr_results", "folder for JSON results")
	scanCmd.Flags().StringVarP(&scanEngine, "engine", "e", "surya", "OCR engine: surya or tesseract")
	scanCmd.Flags().StringVarP(&scanServer, "server", "s", "http://localhost:8000", "OCR API base URL")
	scanCmd.Flags().IntVarP(&scanConcurrency, "concurrency", "n", 2, "documents uploaded at once")
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 15*time.Minute, "per-document request timeout")
	rootCmd.AddCommand(scanCmd)
}

// fileResult is the outcome for one document.
type fileResult struct {
	Path   string
	Output string
	Pages  int
	Err    error
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ui.Section("Batch OCR")

	files, err := discoverFiles(scanInput)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		ui.Warning("No supported documents found in %s", scanInput)
		return nil
	}

	if err := os.MkdirAll(scanOutput, 0o755); err != nil {
		return fmt.Errorf("create output folder: %w", err)
	}

	c := client.NewClient(scanServer, scanTimeout)

	spinner := ui.NewSpinner("Checking OCR server at " + scanServer)
	spinner.Start()
	err = c.Health(ctx)
	spinner.Stop()
	if err != nil {
		return fmt.Errorf("OCR server not reachable at %s: %w", scanServer, err)
	}

	ui.Info("Found %d documents, engine %s", len(files), scanEngine)

	results := scanAll(ctx, c, files, scanOutput, scanEngine, scanConcurrency)

	ui.Newline()
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			ui.Error("%s: %v", filepath.Base(r.Path), r.Err)
			continue
		}
		if ui.Verbose() {
			ui.Success("%s → %s (%d pages)", filepath.Base(r.Path), r.Output, r.Pages)
		}
	}

	ui.Summary(len(results)-failed, failed)
	if failed == len(results) {
		return fmt.Errorf("all %d documents failed", failed)
	}
	return nil
}

// scanAll uploads files with at most concurrency requests in flight.
// Per-file failures are recorded, never returned, so one bad document
// does not cancel the rest.
func scanAll(ctx context.Context, c *client.Client, files []string, outDir, engine string, concurrency int) []fileResult {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]fileResult, len(files))
	bar := ui.NewProgressBar(int64(len(files)), "Scanning")
	var (
		mu   sync.Mutex
		done int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, path := range files {
		g.Go(func() error {
			results[i] = scanOne(gctx, c, path, outDir, engine)

			mu.Lock()
			done++
			bar.Set(done)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	bar.Finish()

	return results
}

func scanOne(ctx context.Context, c *client.Client, path, outDir, engine string) fileResult {
	res := fileResult{Path: path}

	resp, err := c.ProcessFile(ctx, path, engine, domain.FormatStructured)
	if err != nil {
		res.Err = err
		return res
	}

	doc, err := resp.Document()
	if err != nil {
		res.Err = err
		return res
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		res.Err = fmt.Errorf("encode result: %w", err)
		return res
	}

	res.Output = filepath.Join(outDir, outputName(path, engine))
	if err := os.WriteFile(res.Output, out, 0o644); err != nil {
		res.Err = fmt.Errorf("write result: %w", err)
		return res
	}
	res.Pages = len(doc.Pages)
	return res
}

// discoverFiles lists supported documents directly inside dir, sorted by name.
func discoverFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input folder: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if raster.IsSupported(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// outputName is "<base>_<engine>.json" for an input path.
func outputName(path, engine string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if engine == "" {
		engine = "default"
	}
	return fmt.Sprintf("%s_%s.json", base, engine)
}
