// Package document holds the rendered page model shared by the server-side
// pipeline and the browser-side viewer. It must stay free of CGo and
// platform specific imports so it compiles for js/wasm.
package document

import (
	"fmt"
	"path/filepath"
	"strings"
)

// MIMEJPEG is the encoding of every page image produced by the pipeline
const MIMEJPEG = "image/jpeg"

// MIMEPDF is the only accepted input media type
const MIMEPDF = "application/pdf"

// PageImage is one encoded raster page
type PageImage struct {
	Index  int    `json:"index"` // 1-based document page number
	MIME   string `json:"mime"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Data   []byte `json:"-"`
}

// RenderedSet is the ordered output of a render, one image per page
type RenderedSet struct {
	Pages []PageImage `json:"pages"`
	// Title and PDFVersion come from the document information, when present
	Title      string `json:"title,omitempty"`
	PDFVersion string `json:"pdfVersion,omitempty"`
}

// Len returns the number of pages in the set
func (s *RenderedSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Pages)
}

// Page returns the 1-based page n
func (s *RenderedSet) Page(n int) (PageImage, bool) {
	if s == nil || n < 1 || n > len(s.Pages) {
		return PageImage{}, false
	}
	return s.Pages[n-1], true
}

// Progress is reported by a render after each page
type Progress struct {
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Fraction  float64 `json:"fraction"`
	Percent   int     `json:"percent"`
	Status    string  `json:"status"`
}

// NewProgress builds the report for completed out of total pages
func NewProgress(completed, total int) Progress {
	p := Progress{Completed: completed, Total: total}
	if total > 0 {
		p.Fraction = float64(completed) / float64(total)
	}
	p.Percent = int(p.Fraction*100 + 0.5)
	if completed >= total && total > 0 {
		p.Percent = 100
		p.Status = fmt.Sprintf("Rendered all %d pages", total)
	} else {
		p.Status = fmt.Sprintf("Rendering page %d of %d", completed+1, total)
	}
	return p
}

// ProgressFunc receives progress reports; it may be nil
type ProgressFunc func(Progress)

// File is a user supplied input before any processing
type File struct {
	Name      string
	MediaType string
	Data      []byte
}

// IsSupported reports whether the declared media type or file name marks the
// file as a PDF. Content is not inspected here.
func IsSupported(name, mediaType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if mt == MIMEPDF {
		return true
	}
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}
