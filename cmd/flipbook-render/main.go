// Command flipbook-render renders a PDF into numbered JPEG page images
// using the same pipeline as the render service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/drummonds/goflipbook/document"
	"github.com/drummonds/goflipbook/engine/pdfrenderer"
	"github.com/drummonds/goflipbook/engine/pipeline"
)

func main() {
	def := pipeline.DefaultOptions()
	backend := flag.String("backend", pdfrenderer.BackendFitz, "rasterization backend (fitz or pdfium)")
	maxWidth := flag.Float64("max-width", def.MaxWidth, "desired page width in pixels before device scaling")
	scaleCap := flag.Float64("scale-cap", def.ScaleCap, "largest scale relative to the page's intrinsic size")
	hidpi := flag.Bool("hidpi", false, "render at twice the resolution")
	quality := flag.Int("quality", def.Quality, "JPEG quality 1-100")
	verbose := flag.Bool("v", false, "log pipeline details to stderr")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: flipbook-render [flags] <file.pdf> <outdir>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts := pipeline.Options{
		MaxWidth:    *maxWidth,
		ScaleCap:    *scaleCap,
		DeviceScale: 1,
		Quality:     *quality,
		Logger:      logger,
	}
	if *hidpi {
		opts.DeviceScale = 2
	}

	codec, err := pdfrenderer.NewCodec(*backend)
	if err != nil {
		fmt.Fprintf(os.Stderr, "flipbook-render: %v\n", err)
		os.Exit(1)
	}
	defer codec.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, pipeline.New(codec, opts), flag.Arg(0), flag.Arg(1), newProgressPrinter(os.Stdout)); err != nil {
		fmt.Fprintf(os.Stderr, "\nflipbook-render: %s\n", document.UserMessage(err))
		logger.Debug("Render failed", "error", err)
		os.Exit(1)
	}
}

// run renders inPath and writes page-NNN.jpg files into outDir
func run(ctx context.Context, renderer *pipeline.Pipeline, inPath, outDir string, progress *progressPrinter) error {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("unable to read %s: %w", inPath, err)
	}
	file := document.File{Name: filepath.Base(inPath), Data: data}
	if !document.IsSupported(file.Name, "") {
		return document.ErrInvalidInputType
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("unable to create %s: %w", outDir, err)
	}

	start := time.Now()
	set, err := renderer.Render(ctx, file, progress.Report)
	if err != nil {
		return err
	}
	progress.Done()

	var total int64
	for _, page := range set.Pages {
		path := filepath.Join(outDir, pageFileName(page.Index))
		if err := os.WriteFile(path, page.Data, 0o644); err != nil {
			return fmt.Errorf("unable to write %s: %w", path, err)
		}
		total += int64(len(page.Data))
	}

	fmt.Fprintf(progress.out, "Wrote %d pages (%.1f MB) to %s in %s\n",
		set.Len(), float64(total)/(1<<20), outDir, time.Since(start).Round(time.Millisecond))
	return nil
}

func pageFileName(n int) string {
	return fmt.Sprintf("page-%03d.jpg", n)
}
