package document

import "fmt"

// Manifest describes a rendered set held by the server
type Manifest struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Title      string         `json:"title,omitempty"`
	PDFVersion string         `json:"pdfVersion,omitempty"`
	Pages      []ManifestPage `json:"pages"`
}

// ManifestPage is a page entry with the URL its image is served from
type ManifestPage struct {
	PageImage
	URL string `json:"url"`
}

// PageURL is the API path of page n of set id
func PageURL(id string, n int) string {
	return fmt.Sprintf("/api/render/%s/pages/%d", id, n)
}

// NewManifest lists every page of set
func NewManifest(id, name string, set *RenderedSet) Manifest {
	m := Manifest{ID: id, Name: name, Pages: make([]ManifestPage, 0, set.Len())}
	if set == nil {
		return m
	}
	m.Title = set.Title
	m.PDFVersion = set.PDFVersion
	for i, p := range set.Pages {
		m.Pages = append(m.Pages, ManifestPage{PageImage: p, URL: PageURL(id, i+1)})
	}
	return m
}
