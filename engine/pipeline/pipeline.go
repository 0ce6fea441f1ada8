// Package pipeline turns a PDF into an ordered set of JPEG page images.
//
// Pages are rendered strictly one after another. Only one raw page surface
// exists at any time: each page is composited, encoded and released before
// the next one is rasterized, which bounds peak memory at the cost of total
// latency.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"

	"github.com/disintegration/imaging"

	"github.com/drummonds/goflipbook/document"
	"github.com/drummonds/goflipbook/engine/pdfrenderer"
)

// Options control page scale and encoding
type Options struct {
	MaxWidth    float64 // desired page width in CSS pixels
	ScaleCap    float64 // largest scale relative to the page's intrinsic size
	DeviceScale float64 // device pixel ratio applied on top of the capped scale
	Quality     int     // JPEG quality 1-100
	Logger      *slog.Logger
}

// DefaultOptions returns the settings used when nothing is configured
func DefaultOptions() Options {
	return Options{
		MaxWidth:    1200,
		ScaleCap:    2,
		DeviceScale: 1,
		Quality:     85,
	}
}

// Pipeline renders documents through a codec
type Pipeline struct {
	codec  pdfrenderer.Codec
	opts   Options
	logger *slog.Logger
}

// New creates a pipeline. Zero option fields fall back to DefaultOptions.
func New(codec pdfrenderer.Codec, opts Options) *Pipeline {
	def := DefaultOptions()
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = def.MaxWidth
	}
	if opts.ScaleCap <= 0 {
		opts.ScaleCap = def.ScaleCap
	}
	if opts.DeviceScale <= 0 {
		opts.DeviceScale = def.DeviceScale
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = def.Quality
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{codec: codec, opts: opts, logger: logger}
}

// job is the transient state of one render
type job struct {
	doc     pdfrenderer.Document
	total   int
	current int
	percent int
}

// Render decodes file.Data and renders every page. It fails with
// *document.DecodeError or *document.PageRenderError; a failed render
// returns no pages at all.
func (p *Pipeline) Render(ctx context.Context, file document.File, progress document.ProgressFunc) (*document.RenderedSet, error) {
	logger := p.logger.With("file", file.Name, "bytes", len(file.Data))

	doc, probe, err := p.decode(file.Data, logger)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	j := &job{doc: doc, total: doc.NumPage()}
	logger.Info("Starting render", "pages", j.total)

	pages := make([]document.PageImage, 0, j.total)
	for j.current < j.total {
		if err := ctx.Err(); err != nil {
			logger.Info("Render cancelled", "page", j.current+1)
			return nil, err
		}

		page, err := p.renderPage(j.doc, j.current)
		if err != nil {
			logger.Error("Page render failed, aborting", "page", j.current+1, "error", err)
			return nil, &document.PageRenderError{Page: j.current + 1, Err: err}
		}
		pages = append(pages, page)
		j.current++

		report := document.NewProgress(j.current, j.total)
		j.percent = report.Percent
		if progress != nil {
			progress(report)
		}
	}

	logger.Info("Render complete", "pages", len(pages))
	return &document.RenderedSet{Pages: pages, Title: probe.Title, PDFVersion: probe.Version}, nil
}

// decode turns the bytes into an open document with at least one page. The
// structural parse supplies the document metadata and, when the codec also
// refuses the file, the parser's reason joins the codec's.
func (p *Pipeline) decode(data []byte, logger *slog.Logger) (pdfrenderer.Document, pdfrenderer.ProbeResult, error) {
	probe, err := pdfrenderer.Probe(data)
	if err != nil {
		return nil, probe, &document.DecodeError{Err: err}
	}
	if !probe.Parsed {
		logger.Warn("Structural parse failed, relying on codec repair", "error", probe.ParseErr)
	}

	doc, err := p.codec.Open(data)
	if err != nil {
		if !probe.Parsed && probe.ParseErr != nil {
			err = errors.Join(err, probe.ParseErr)
		}
		return nil, probe, &document.DecodeError{Err: err}
	}
	if doc.NumPage() < 1 {
		doc.Close()
		return nil, probe, &document.DecodeError{Err: errors.New("document has no pages")}
	}
	if probe.Parsed && probe.Pages != doc.NumPage() {
		logger.Debug("Page count differs between parser and codec", "parser", probe.Pages, "codec", doc.NumPage())
	}
	return doc, probe, nil
}

// renderPage produces the encoded image for the 0-based page index
func (p *Pipeline) renderPage(doc pdfrenderer.Document, index int) (document.PageImage, error) {
	width, _, err := doc.PageSize(index)
	if err != nil {
		return document.PageImage{}, fmt.Errorf("unable to read page size: %w", err)
	}
	if width <= 0 {
		return document.PageImage{}, fmt.Errorf("page has no width")
	}

	scale := Scale(width, p.opts.MaxWidth, p.opts.ScaleCap, p.opts.DeviceScale)
	surface, err := doc.RenderPage(index, scale)
	if err != nil {
		return document.PageImage{}, err
	}

	data, bounds, err := Encode(surface, p.opts.Quality)
	if err != nil {
		return document.PageImage{}, err
	}
	return document.PageImage{
		Index:  index + 1,
		MIME:   document.MIMEJPEG,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Data:   data,
	}, nil
}

// Scale is min(maxWidth/intrinsicWidth, scaleCap) × deviceScale
func Scale(intrinsicWidth, maxWidth, scaleCap, deviceScale float64) float64 {
	if intrinsicWidth <= 0 {
		return scaleCap * deviceScale
	}
	return math.Min(maxWidth/intrinsicWidth, scaleCap) * deviceScale
}

// Encode flattens the surface onto opaque white and encodes it as JPEG
func Encode(surface image.Image, quality int) ([]byte, image.Rectangle, error) {
	bounds := surface.Bounds()
	background := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	flat := imaging.Overlay(background, surface, image.Pt(0, 0), 1.0)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flat, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, bounds, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), flat.Bounds(), nil
}
