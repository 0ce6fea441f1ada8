package pdfrenderer

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNotPDF is returned when the bytes carry no PDF header
var ErrNotPDF = errors.New("missing %PDF- header")

// headerWindow is how far into the file the header may start
const headerWindow = 1024

// ProbeResult is what a structural parse learned about a file
type ProbeResult struct {
	Version string
	Pages   int
	Title   string
	// Parsed is false when the cross-reference table could not be read. MuPDF
	// repairs many such files so this alone does not reject a document.
	Parsed   bool
	ParseErr error
}

// Probe checks the PDF header and tries a structural parse with ledongthuc/pdf
func Probe(data []byte) (result ProbeResult, err error) {
	window := data
	if len(window) > headerWindow {
		window = window[:headerWindow]
	}
	start := bytes.Index(window, []byte("%PDF-"))
	if start < 0 {
		return result, ErrNotPDF
	}
	if end := start + 8; end <= len(data) {
		result.Version = string(data[start+5 : end])
	}

	// The parser panics on some malformed trailers
	defer func() {
		if r := recover(); r != nil {
			result.Parsed = false
			result.ParseErr = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	reader, parseErr := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if parseErr != nil {
		result.ParseErr = parseErr
		return result, nil
	}
	result.Pages = reader.NumPage()
	result.Title = strings.TrimSpace(reader.Trailer().Key("Info").Key("Title").Text())
	result.Parsed = true
	return result, nil
}
