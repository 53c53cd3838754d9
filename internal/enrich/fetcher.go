package enrich

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// Page is a fetched document.
type Page struct {
	URL  string
	HTML string
}

// Fetcher loads a page without a browser.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// HTTPConfig controls the plain HTTP fetcher.
type HTTPConfig struct {
	UserAgent   string
	Timeout     time.Duration
	MaxBodySize int
}

// HTTPFetcher implements Fetcher using a Colly collector.
type HTTPFetcher struct {
	cfg  HTTPConfig
	base *colly.Collector
}

// NewHTTPFetcher builds an HTTPFetcher.
func NewHTTPFetcher(cfg HTTPConfig) *HTTPFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 2 << 20
	}
	c := colly.NewCollector(colly.Async(false), colly.IgnoreRobotsTxt())
	c.WithTransport(newHTTPTransport())
	c.MaxBodySize = cfg.MaxBodySize
	c.AllowURLRevisit = true
	return &HTTPFetcher{cfg: cfg, base: c}
}

// Fetch performs a single GET and returns the body as text.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (Page, error) {
	var (
		page     Page
		fetchErr error
	)
	collector := f.base.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	})
	collector.OnResponse(func(r *colly.Response) {
		page = Page{URL: r.Request.URL.String(), HTML: string(r.Body)}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return Page{}, fmt.Errorf("http fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return Page{}, fmt.Errorf("http visit failed: %w", err)
		}
		if fetchErr != nil {
			return Page{}, fmt.Errorf("http response failed: %w", fetchErr)
		}
		return page, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          50,
		IdleConnTimeout:       90 * time.Second,
	}
}
