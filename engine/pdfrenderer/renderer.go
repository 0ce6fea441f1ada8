package pdfrenderer

import (
	"fmt"
	"image"
	"strings"
)

// Backend names accepted by NewCodec
const (
	BackendFitz   = "fitz"
	BackendPDFium = "pdfium"
)

// Codec decodes PDF bytes into a Document
type Codec interface {
	// Open decodes a complete PDF held in memory
	Open(data []byte) (Document, error)

	// Close cleans up any resources used by the codec
	Close() error
}

// Document is one decoded PDF. Page indexes are 0-based.
type Document interface {
	NumPage() int

	// PageSize returns the intrinsic page size in PDF points (1/72 inch)
	PageSize(index int) (width, height float64, err error)

	// RenderPage rasterizes a page at scale pixels per point
	RenderPage(index int, scale float64) (image.Image, error)

	Close() error
}

// NewCodec creates the codec for the configured backend
func NewCodec(backend string) (Codec, error) {
	switch strings.ToLower(backend) {
	case "", BackendFitz:
		return NewFitzCodec()
	case BackendPDFium:
		return NewPDFiumCodec()
	default:
		return nil, fmt.Errorf("unknown render backend %q (supported: fitz, pdfium)", backend)
	}
}
