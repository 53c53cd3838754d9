package provider

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/websearch-crawler/internal/crawler"
)

// Parser turns an engine result page into normalized results.
type Parser struct {
	cfg      Config
	excluded *crawler.HostBlocklist
}

// NewParser builds a parser for cfg.
func NewParser(cfg Config) *Parser {
	return &Parser{cfg: cfg, excluded: crawler.NewHostBlocklist(cfg.ExcludeHosts)}
}

// ContainerCount reports how many result containers doc holds.
func (p *Parser) ContainerCount(doc *goquery.Document) int {
	return doc.Find(p.cfg.Selectors.Container).Length()
}

// Parse extracts up to limit results from doc, which was loaded from pageURL.
// A page with no result containers and no "no results" marker yields
// crawler.ErrParseMismatch.
func (p *Parser) Parse(doc *goquery.Document, pageURL string, limit int) ([]crawler.Result, error) {
	containers := doc.Find(p.cfg.Selectors.Container)
	if containers.Length() == 0 {
		if p.recognisedEmpty(doc) {
			return []crawler.Result{}, nil
		}
		return nil, fmt.Errorf("%s: %w: no %q elements", p.cfg.Name, crawler.ErrParseMismatch, p.cfg.Selectors.Container)
	}

	results := make([]crawler.Result, 0, max(limit, 0))
	seen := make(map[string]struct{})
	containers.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if limit > 0 && len(results) >= limit {
			return false
		}
		if p.sponsored(s) {
			return true
		}
		link := s.Find(p.cfg.Selectors.Link).First()
		href, ok := link.Attr("href")
		if !ok {
			return true
		}
		target, err := p.resolveTarget(pageURL, href)
		if err != nil || p.excluded.MatchesURL(target) {
			return true
		}
		if _, dup := seen[target]; dup {
			return true
		}

		title := collapseSpace(s.Find(p.cfg.Selectors.Title).First().Text())
		if title == "" {
			title = collapseSpace(link.Text())
		}
		if title == "" {
			return true
		}
		var snippet string
		if p.cfg.Selectors.Snippet != "" {
			snippet = collapseSpace(s.Find(p.cfg.Selectors.Snippet).First().Text())
		}
		seen[target] = struct{}{}
		results = append(results, crawler.Result{Title: title, URL: target, Snippet: snippet})
		return true
	})
	return results, nil
}

func (p *Parser) recognisedEmpty(doc *goquery.Document) bool {
	if len(p.cfg.NoResults) == 0 {
		return false
	}
	text := strings.ToLower(collapseSpace(doc.Find("body").Text()))
	for _, marker := range p.cfg.NoResults {
		if marker != "" && strings.Contains(text, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

func (p *Parser) sponsored(s *goquery.Selection) bool {
	for _, sel := range p.cfg.Sponsored {
		if sel == "" {
			continue
		}
		if s.Is(sel) || s.Find(sel).Length() > 0 || s.ParentsFiltered(sel).Length() > 0 {
			return true
		}
	}
	return false
}

func (p *Parser) resolveTarget(pageURL, href string) (string, error) {
	abs, err := crawler.ResolveURL(pageURL, href)
	if err != nil {
		return "", err
	}
	if host := crawler.Hostname(abs); host == crawler.Hostname(pageURL) || p.excluded.Matches(host) {
		abs = unwrapRedirect(abs, p.cfg.RedirectParams)
	}
	return crawler.CanonicalURL(abs)
}

// unwrapRedirect extracts the destination of an engine click-tracking link.
// Bing encodes it as "a1" followed by URL-safe base64.
func unwrapRedirect(rawURL string, params []string) string {
	if len(params) == 0 {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	for _, name := range params {
		v := q.Get(name)
		if v == "" {
			continue
		}
		if strings.HasPrefix(v, "a1") {
			if decoded, ok := decodeBase64URL(v[2:]); ok {
				return decoded
			}
		}
		if strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") {
			return v
		}
	}
	return rawURL
}

func decodeBase64URL(s string) (string, bool) {
	for _, enc := range []*base64.Encoding{
		base64.RawURLEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.StdEncoding,
	} {
		raw, err := enc.DecodeString(s)
		if err != nil {
			continue
		}
		out := string(raw)
		if strings.HasPrefix(out, "http://") || strings.HasPrefix(out, "https://") {
			return out, true
		}
	}
	return "", false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
