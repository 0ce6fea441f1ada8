// Package pdftest builds small, structurally valid PDF files for tests.
package pdftest

import (
	"bytes"
	"fmt"
)

// Build returns a PDF with the given number of US Letter pages, each showing its page number
func Build(pages int) []byte {
	return BuildSized(pages, 612, 792)
}

// BuildSized returns a PDF whose pages all have the given media box size in points
func BuildSized(pages int, width, height int) []byte {
	return build(pages, width, height, "")
}

// BuildTitled returns a US Letter PDF whose document information carries title
func BuildTitled(pages int, title string) []byte {
	return build(pages, 612, 792, title)
}

func build(pages int, width, height int, title string) []byte {
	var buf bytes.Buffer
	var offsets []int

	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")

	// 1: catalog, 2: page tree, 3: font, then a page and content stream per page
	obj("<< /Type /Catalog /Pages 2 0 R >>")

	kids := ""
	for i := 0; i < pages; i++ {
		kids += fmt.Sprintf("%d 0 R ", 4+2*i)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, pages))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	for i := 0; i < pages; i++ {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] /Contents %d 0 R /Resources << /Font << /F1 3 0 R >> >> >>",
			width, height, 5+2*i))
		content := fmt.Sprintf("BT\n/F1 24 Tf\n72 %d Td\n(Page %d) Tj\nET", height-100, i+1)
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	info := ""
	if title != "" {
		obj(fmt.Sprintf("<< /Title (%s) >>", title))
		info = fmt.Sprintf(" /Info %d 0 R", len(offsets))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R%s >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, info, xref)

	return buf.Bytes()
}

// Corrupt returns bytes that claim to be a PDF but carry no usable structure
func Corrupt() []byte {
	return []byte("%PDF-1.7\n% this file was truncated in transit\n1 0 obj\n<< /Type")
}
