package provider

import (
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// BlockDetector recognises bot-detection pages from status codes, URLs,
// marker elements and text.
type BlockDetector struct {
	keywords    []string
	urlPatterns []string
	selectors   []string
}

// NewBlockDetector builds a detector from an engine's signals.
func NewBlockDetector(signals BlockSignals) *BlockDetector {
	d := &BlockDetector{}
	for _, kw := range signals.Keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			d.keywords = append(d.keywords, kw)
		}
	}
	for _, p := range signals.URLPatterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			d.urlPatterns = append(d.urlPatterns, p)
		}
	}
	for _, sel := range signals.Selectors {
		if sel = strings.TrimSpace(sel); sel != "" {
			d.selectors = append(d.selectors, sel)
		}
	}
	return d
}

// Page is what the detector inspects.
type Page struct {
	Status   int
	Location string
	Doc      *goquery.Document
	// HasResults is true when the result container matched at least once.
	// Keyword signals are ignored on such pages since a result snippet may
	// legitimately mention them.
	HasResults bool
}

// Inspect reports whether page is a block page and which signal fired.
func (d *BlockDetector) Inspect(page Page) (bool, string) {
	if d == nil {
		return false, ""
	}
	switch page.Status {
	case http.StatusTooManyRequests, http.StatusForbidden:
		return true, "status " + http.StatusText(page.Status)
	}
	loc := strings.ToLower(page.Location)
	for _, p := range d.urlPatterns {
		if strings.Contains(loc, p) {
			return true, "url " + p
		}
	}
	if page.Doc == nil {
		return false, ""
	}
	for _, sel := range d.selectors {
		if page.Doc.Find(sel).Length() > 0 {
			return true, "selector " + sel
		}
	}
	if page.HasResults || len(d.keywords) == 0 {
		return false, ""
	}
	text := strings.ToLower(page.Doc.Find("body").Text())
	for _, kw := range d.keywords {
		if strings.Contains(text, kw) {
			return true, "keyword " + kw
		}
	}
	return false, ""
}
