package pdfrenderer

import (
	"fmt"
	"image"
	"math"
	"time"

	"github.com/disintegration/imaging"
	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/references"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/webassembly"
)

// PDFiumCodec decodes documents with go-pdfium running in WebAssembly (pure Go, no CGo)
type PDFiumCodec struct {
	pool     pdfium.Pool
	instance pdfium.Pdfium
}

// NewPDFiumCodec creates a new PDFium-based codec using WebAssembly
func NewPDFiumCodec() (*PDFiumCodec, error) {
	// Pages are rendered one at a time so a single worker is enough
	pool, err := webassembly.Init(webassembly.Config{
		MinIdle:  1,
		MaxIdle:  1,
		MaxTotal: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PDFium WebAssembly: %w", err)
	}

	instance, err := pool.GetInstance(time.Second * 30)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to get PDFium instance: %w", err)
	}

	return &PDFiumCodec{
		pool:     pool,
		instance: instance,
	}, nil
}

// Open loads the PDF into the PDFium instance
func (c *PDFiumCodec) Open(data []byte) (Document, error) {
	doc, err := c.instance.OpenDocument(&requests.OpenDocument{
		File: &data,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open PDF document: %w", err)
	}

	pageCountResp, err := c.instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{
		Document: doc.Document,
	})
	if err != nil {
		c.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: doc.Document})
		return nil, fmt.Errorf("unable to get page count: %w", err)
	}

	return &pdfiumDocument{
		instance: c.instance,
		doc:      doc.Document,
		pages:    pageCountResp.PageCount,
	}, nil
}

// Close cleans up resources used by the PDFium codec
func (c *PDFiumCodec) Close() error {
	if c.pool != nil {
		c.pool.Close()
		c.pool = nil
	}
	c.instance = nil
	return nil
}

type pdfiumDocument struct {
	instance pdfium.Pdfium
	doc      references.FPDF_DOCUMENT
	pages    int
}

func (d *pdfiumDocument) NumPage() int {
	return d.pages
}

func (d *pdfiumDocument) PageSize(index int) (float64, float64, error) {
	size, err := d.instance.FPDF_GetPageSizeByIndex(&requests.FPDF_GetPageSizeByIndex{
		Document: d.doc,
		Index:    index,
	})
	if err != nil {
		return 0, 0, err
	}
	return size.Width, size.Height, nil
}

func (d *pdfiumDocument) RenderPage(index int, scale float64) (image.Image, error) {
	width, height, err := d.PageSize(index)
	if err != nil {
		return nil, err
	}

	pageRender, err := d.instance.RenderPageInPixels(&requests.RenderPageInPixels{
		Width:  int(math.Round(width * scale)),
		Height: int(math.Round(height * scale)),
		Page: requests.Page{
			ByIndex: &requests.PageByIndex{
				Document: d.doc,
				Index:    index,
			},
		},
	})
	if err != nil {
		return nil, err
	}
	// The bitmap lives in WebAssembly memory and is freed by Cleanup
	img := imaging.Clone(pageRender.Result.Image)
	pageRender.Cleanup()

	return img, nil
}

func (d *pdfiumDocument) Close() error {
	_, err := d.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{
		Document: d.doc,
	})
	return err
}
