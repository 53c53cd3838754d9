package enrich

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/dyatlov/go-opengraph/opengraph"

	"github.com/JakeFAU/websearch-crawler/internal/crawler"
)

// DefaultFaviconService resolves a favicon for any host.
const DefaultFaviconService = "https://www.google.com/s2/favicons?domain=%s&sz=64"

// Metadata is what a target page yields beyond the engine snippet.
type Metadata struct {
	ImageURL    string
	SiteName    string
	FaviconURL  string
	Excerpt     string
	PublishedAt *time.Time
}

// Apply copies non-empty metadata onto r.
func (m Metadata) Apply(r crawler.Result) crawler.Result {
	if m.ImageURL != "" {
		r.ImageURL = m.ImageURL
	}
	if m.SiteName != "" {
		r.SiteName = m.SiteName
	}
	if m.FaviconURL != "" {
		r.FaviconURL = m.FaviconURL
	}
	if m.Excerpt != "" {
		r.Excerpt = m.Excerpt
	}
	if m.PublishedAt != nil {
		ts := *m.PublishedAt
		r.PublishedAt = &ts
	}
	return r
}

// Extractor pulls Metadata out of rendered HTML.
type Extractor struct {
	ExcerptMax     int
	FaviconService string
}

var (
	imageSelectors = []struct{ sel, attr string }{
		{`meta[property="og:image"]`, "content"},
		{`meta[name="twitter:image"]`, "content"},
		{`meta[name="twitter:image:src"]`, "content"},
		{`link[rel="image_src"]`, "href"},
		{`[itemprop="image"]`, "content"},
		{`img[itemprop="image"]`, "src"},
	}
	siteNameSelectors = []string{
		`meta[property="og:site_name"]`,
		`meta[name="application-name"]`,
	}
	publishedSelectors = []struct{ sel, attr string }{
		{`meta[property="article:published_time"]`, "content"},
		{`meta[property="article:modified_time"]`, "content"},
		{`meta[property="og:updated_time"]`, "content"},
		{`[itemprop="datePublished"]`, "content"},
		{`[itemprop="datePublished"]`, "datetime"},
		{`meta[name="date"]`, "content"},
		{`time[datetime]`, "datetime"},
	}
	faviconRels   = []string{"icon", "shortcut icon", "apple-touch-icon"}
	noiseElements = "script, style, noscript, nav, header, footer, svg, form, iframe"
	timeLayouts   = []string{
		time.RFC3339,
		"2006-01-02T15:04:05Z0700",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
)

// Extract parses html served from pageURL. It never fails: fields that cannot
// be found are left empty, except the favicon which falls back to the
// favicon service.
func (x Extractor) Extract(pageURL, html string) Metadata {
	var meta Metadata

	og := opengraph.NewOpenGraph()
	if err := og.ProcessHTML(strings.NewReader(html)); err == nil {
		if len(og.Images) > 0 && og.Images[0] != nil {
			meta.ImageURL = absolute(pageURL, og.Images[0].URL)
		}
		meta.SiteName = strings.TrimSpace(og.SiteName)
		if og.Article != nil && og.Article.PublishedTime != nil {
			ts := og.Article.PublishedTime.UTC()
			meta.PublishedAt = &ts
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		meta.FaviconURL = x.faviconService(pageURL)
		return meta
	}
	if meta.ImageURL == "" {
		meta.ImageURL = firstImage(doc, pageURL)
	}
	if meta.SiteName == "" {
		meta.SiteName = siteName(doc, pageURL)
	}
	if meta.PublishedAt == nil {
		meta.PublishedAt = publishedAt(doc)
	}
	meta.FaviconURL = favicon(doc, pageURL)
	if meta.FaviconURL == "" {
		meta.FaviconURL = x.faviconService(pageURL)
	}
	meta.Excerpt = Excerpt(doc, x.excerptMax())
	return meta
}

// FaviconOnly returns the metadata used when the page itself is unreachable.
func (x Extractor) FaviconOnly(pageURL string) Metadata {
	return Metadata{FaviconURL: x.faviconService(pageURL)}
}

func (x Extractor) excerptMax() int {
	if x.ExcerptMax <= 0 {
		return 800
	}
	return x.ExcerptMax
}

func (x Extractor) faviconService(pageURL string) string {
	host := crawler.Hostname(pageURL)
	if host == "" {
		return ""
	}
	tmpl := x.FaviconService
	if tmpl == "" {
		tmpl = DefaultFaviconService
	}
	return fmt.Sprintf(tmpl, url.QueryEscape(host))
}

func firstImage(doc *goquery.Document, pageURL string) string {
	for _, candidate := range imageSelectors {
		if v := attrOf(doc, candidate.sel, candidate.attr); v != "" {
			if abs := absolute(pageURL, v); abs != "" {
				return abs
			}
		}
	}
	return ""
}

func siteName(doc *goquery.Document, pageURL string) string {
	for _, sel := range siteNameSelectors {
		if v := attrOf(doc, sel, "content"); v != "" {
			return v
		}
	}
	return strings.TrimPrefix(crawler.Hostname(pageURL), "www.")
}

func publishedAt(doc *goquery.Document) *time.Time {
	for _, candidate := range publishedSelectors {
		if v := attrOf(doc, candidate.sel, candidate.attr); v != "" {
			if ts, ok := parseTime(v); ok {
				return &ts
			}
		}
	}
	return nil
}

func parseTime(v string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

func favicon(doc *goquery.Document, pageURL string) string {
	var found string
	doc.Find("link[rel][href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		rel := strings.ToLower(strings.TrimSpace(s.AttrOr("rel", "")))
		for _, want := range faviconRels {
			if rel == want {
				found = absolute(pageURL, s.AttrOr("href", ""))
				return found == ""
			}
		}
		return true
	})
	return found
}

// Excerpt returns the readable text of doc with boilerplate removed, capped at
// maxLen runes and cut at a word boundary.
func Excerpt(doc *goquery.Document, maxLen int) string {
	body := doc.Find("article").First()
	if body.Length() == 0 {
		body = doc.Find("main").First()
	}
	if body.Length() == 0 {
		body = doc.Find("body").First()
	}
	if body.Length() == 0 {
		return ""
	}
	body = body.Clone()
	body.Find(noiseElements).Remove()
	return truncateWords(collapseSpace(body.Text()), maxLen)
}

func truncateWords(text string, maxLen int) string {
	runes := []rune(text)
	if maxLen <= 0 || len(runes) <= maxLen {
		return text
	}
	cut := runes[:maxLen]
	for i := len(cut) - 1; i > maxLen/2; i-- {
		if unicode.IsSpace(cut[i]) {
			cut = cut[:i]
			break
		}
	}
	return strings.TrimRight(string(cut), " ,;:-")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func attrOf(doc *goquery.Document, selector, attr string) string {
	v, _ := doc.Find(selector).First().Attr(attr)
	return strings.TrimSpace(v)
}

func absolute(base, ref string) string {
	if strings.TrimSpace(ref) == "" {
		return ""
	}
	abs, err := crawler.ResolveURL(base, ref)
	if err != nil {
		return ""
	}
	return abs
}
