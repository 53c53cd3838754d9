// Package enrich decorates search results with metadata read from the
// result pages themselves: preview image, site name, publish time, favicon
// and a readable excerpt.
package enrich

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/websearch-crawler/internal/browser"
	"github.com/JakeFAU/websearch-crawler/internal/crawler"
	"github.com/JakeFAU/websearch-crawler/internal/metrics"
	"github.com/JakeFAU/websearch-crawler/internal/stealth"
)

// Enrichment sources reported to metrics.
const (
	SourceBrowser = "browser"
	SourceHTTP    = "http"
	SourceFavicon = "favicon"
)

// SessionPool hands out browser sessions.
type SessionPool interface {
	Acquire(ctx context.Context, opts browser.AcquireOptions) (browser.Session, error)
	Release(sess browser.Session, discard bool)
}

// DomainLimiter spaces out requests per target domain.
type DomainLimiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config tunes enrichment.
type Config struct {
	// TopK is how many leading results are enriched.
	TopK int
	// Timeout bounds the work spent on a single result.
	Timeout        time.Duration
	ExcerptMax     int
	FaviconService string
	// HTTPFallback enables a plain HTTP fetch when the browser fails.
	HTTPFallback bool
}

// DefaultConfig returns the standard enrichment settings.
func DefaultConfig() Config {
	return Config{
		TopK:           3,
		Timeout:        8 * time.Second,
		ExcerptMax:     800,
		FaviconService: DefaultFaviconService,
		HTTPFallback:   true,
	}
}

// Enricher implements crawler.Enricher.
type Enricher struct {
	cfg       Config
	pool      SessionPool
	limiter   DomainLimiter
	fetcher   Fetcher
	extractor Extractor
	logger    *zap.Logger
}

var _ crawler.Enricher = (*Enricher)(nil)

// New builds an Enricher. pool, limiter and fetcher are optional; without a
// pool only the HTTP path is tried, and without a fetcher only the browser.
func New(cfg Config, pool SessionPool, limiter DomainLimiter, fetcher Fetcher, logger *zap.Logger) *Enricher {
	def := DefaultConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.ExcerptMax <= 0 {
		cfg.ExcerptMax = def.ExcerptMax
	}
	if cfg.FaviconService == "" {
		cfg.FaviconService = def.FaviconService
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.HTTPFallback {
		fetcher = nil
	}
	return &Enricher{
		cfg:     cfg,
		pool:    pool,
		limiter: limiter,
		fetcher: fetcher,
		extractor: Extractor{
			ExcerptMax:     cfg.ExcerptMax,
			FaviconService: cfg.FaviconService,
		},
		logger: logger.Named("enrich"),
	}
}

// Enrich returns a copy of results with the first TopK entries decorated.
// The output always has the same length and order as the input.
func (e *Enricher) Enrich(ctx context.Context, results []crawler.Result) []crawler.Result {
	out := make([]crawler.Result, len(results))
	copy(out, results)
	n := min(e.cfg.TopK, len(out))

	var g errgroup.Group
	for i := range n {
		g.Go(func() error {
			out[i] = e.enrichOne(ctx, out[i])
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (e *Enricher) enrichOne(ctx context.Context, res crawler.Result) crawler.Result {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	logger := e.logger.With(zap.String("url", res.URL))

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, res.URL); err != nil {
			logger.Debug("Rate limit wait aborted", zap.Error(err))
			return e.faviconOnly(res)
		}
	}

	if e.pool != nil {
		page, err := e.viaBrowser(ctx, res.URL)
		if err == nil {
			metrics.ObserveEnrichment(SourceBrowser)
			return e.extractor.Extract(page.URL, page.HTML).Apply(res)
		}
		logger.Debug("Browser enrichment failed", zap.Error(err))
	}

	if e.fetcher != nil && ctx.Err() == nil {
		page, err := e.fetcher.Fetch(ctx, res.URL)
		if err == nil {
			metrics.ObserveEnrichment(SourceHTTP)
			return e.extractor.Extract(page.URL, page.HTML).Apply(res)
		}
		logger.Debug("HTTP enrichment failed", zap.Error(err))
	}

	return e.faviconOnly(res)
}

func (e *Enricher) faviconOnly(res crawler.Result) crawler.Result {
	metrics.ObserveEnrichment(SourceFavicon)
	return e.extractor.FaviconOnly(res.URL).Apply(res)
}

func (e *Enricher) viaBrowser(ctx context.Context, url string) (page Page, err error) {
	sess, err := e.pool.Acquire(ctx, browser.AcquireOptions{DeviceClass: stealth.Desktop, Fresh: true})
	if err != nil {
		return Page{}, fmt.Errorf("acquire session: %w", err)
	}
	defer func() {
		e.pool.Release(sess, err != nil)
	}()

	if err := sess.Navigate(ctx, url); err != nil {
		return Page{}, fmt.Errorf("navigate: %w", err)
	}
	if err := sess.WaitReady(ctx, "body"); err != nil {
		return Page{}, fmt.Errorf("wait ready: %w", err)
	}
	html, err := sess.HTML(ctx)
	if err != nil {
		return Page{}, fmt.Errorf("read html: %w", err)
	}
	location, err := sess.Location(ctx)
	if err != nil || location == "" {
		location = url
	}
	return Page{URL: location, HTML: html}, nil
}
