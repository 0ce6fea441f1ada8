package pdfrenderer

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// FitzCodec decodes documents with go-fitz (requires CGo and MuPDF)
type FitzCodec struct {
}

// NewFitzCodec creates a new Fitz-based codec
func NewFitzCodec() (*FitzCodec, error) {
	return &FitzCodec{}, nil
}

// Open decodes the PDF bytes with MuPDF
func (c *FitzCodec) Open(data []byte) (Document, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("unable to open PDF document: %w", err)
	}
	return &fitzDocument{doc: doc}, nil
}

// Close is a no-op for Fitz, documents are closed individually
func (c *FitzCodec) Close() error {
	return nil
}

type fitzDocument struct {
	doc *fitz.Document
}

func (d *fitzDocument) NumPage() int {
	return d.doc.NumPage()
}

// PageSize uses the page bound, which fitz reports at 72 DPI
func (d *fitzDocument) PageSize(index int) (float64, float64, error) {
	rect, err := d.doc.Bound(index)
	if err != nil {
		return 0, 0, err
	}
	return float64(rect.Dx()), float64(rect.Dy()), nil
}

func (d *fitzDocument) RenderPage(index int, scale float64) (image.Image, error) {
	img, err := d.doc.ImageDPI(index, 72*scale)
	if err != nil {
		return nil, err
	}
	return img, nil
}

func (d *fitzDocument) Close() error {
	return d.doc.Close()
}
