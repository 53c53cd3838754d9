// Package service is the single entry point callers use to run a web search.
// It consults the result cache, runs the fallback orchestrator on a miss,
// enriches the results and stores the outcome.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/websearch-crawler/internal/clock/system"
	"github.com/JakeFAU/websearch-crawler/internal/crawler"
	"github.com/JakeFAU/websearch-crawler/internal/format"
	"github.com/JakeFAU/websearch-crawler/internal/metrics"
)

// Result count limits.
const (
	DefaultMaxResults = 5
	MaxResultsCap     = 10
)

// Diagnostics returned without running a search.
const (
	DiagEmptyQuery = "empty query"
	DiagClosed     = "service closed"
)

// Closer releases the browser pool.
type Closer interface {
	Close() error
}

// Config tunes the service.
type Config struct {
	CacheTTL time.Duration
	// AllowAutomation is the default for Search calls.
	AllowAutomation bool
	// Enrich is the default for Search calls.
	Enrich bool
}

// Service implements the search facade.
type Service struct {
	cfg      Config
	cache    crawler.ResultCache
	searcher crawler.Searcher
	enricher crawler.Enricher
	pool     Closer
	clock    crawler.Clock
	logger   *zap.Logger

	group     singleflight.Group
	flightMu  sync.Mutex
	flights   map[string]*flight
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

// New builds a Service. enricher, pool and clock may be nil.
func New(
	cfg Config,
	cache crawler.ResultCache,
	searcher crawler.Searcher,
	enricher crawler.Enricher,
	pool Closer,
	clock crawler.Clock,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = system.New()
	}
	return &Service{
		cfg:      cfg,
		cache:    cache,
		searcher: searcher,
		enricher: enricher,
		pool:     pool,
		clock:    clock,
		logger:   logger.Named("service"),
		flights:  make(map[string]*flight),
	}
}

// flight is the context shared by every caller waiting on one live search.
// It is canceled once the last waiter has gone.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// Search runs query with the service defaults.
func (s *Service) Search(ctx context.Context, query string, maxResults int) crawler.Response {
	return s.Run(ctx, crawler.Query{
		Text:            query,
		MaxResults:      maxResults,
		AllowAutomation: s.cfg.AllowAutomation,
		SkipEnrichment:  !s.cfg.Enrich,
	})
}

// SearchAndFormat runs Search and renders the response.
func (s *Service) SearchAndFormat(ctx context.Context, query string, maxResults int) (crawler.Response, format.Output) {
	resp := s.Search(ctx, query, maxResults)
	return resp, format.Format(resp)
}

// Run executes q. It never fails: problems are reported in
// Response.Diagnostic with an empty result list.
func (s *Service) Run(ctx context.Context, q crawler.Query) crawler.Response {
	q.MaxResults = NormalizeMaxResults(q.MaxResults)
	if strings.TrimSpace(q.Text) == "" {
		return s.empty(q.Text, DiagEmptyQuery)
	}
	if s.isClosed() {
		return s.empty(q.Text, DiagClosed)
	}

	if s.cache != nil {
		if cached, ok := s.cache.Get(q.Text); ok {
			metrics.ObserveCacheLookup(true)
			s.logger.Debug("Cache hit", zap.String("query", q.Text))
			return trim(cached, q.MaxResults)
		}
		metrics.ObserveCacheLookup(false)
	}

	key := flightKey(q)
	f := s.join(ctx, key)
	defer s.leave(key, f)

	ch := s.group.DoChan(key, func() (any, error) {
		return s.live(f.ctx, q), nil
	})
	select {
	case <-ctx.Done():
		return s.empty(q.Text, "search canceled: "+ctx.Err().Error())
	case res := <-ch:
		resp, _ := res.Val.(crawler.Response)
		return trim(resp.Clone(), q.MaxResults)
	}
}

// live always fetches MaxResultsCap results so the cached entry can serve
// any later limit.
func (s *Service) live(ctx context.Context, q crawler.Query) crawler.Response {
	q.MaxResults = MaxResultsCap
	resp := s.searcher.Search(ctx, q)
	if resp.Results == nil {
		resp.Results = []crawler.Result{}
	}
	if len(resp.Results) > 0 && !q.SkipEnrichment && s.enricher != nil {
		resp.Results = s.enricher.Enrich(ctx, resp.Results)
	}
	if s.storable(ctx, q, resp) {
		s.cache.Put(q.Text, resp, s.cfg.CacheTTL)
	}
	return resp
}

// join registers the caller as a waiter on the flight for key, starting a
// new one when none is running. The flight keeps ctx's values but not its
// cancellation, which leave handles.
func (s *Service) join(ctx context.Context, key string) *flight {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	f, ok := s.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		s.flights[key] = f
	}
	f.waiters++
	return f
}

// leave drops a waiter. The last one out cancels the flight and forgets the
// key so a later caller starts a fresh search instead of joining a dying one.
func (s *Service) leave(key string, f *flight) {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if s.flights[key] == f {
		delete(s.flights, key)
		s.group.Forget(key)
	}
}

// storable reports whether resp may be cached. Responses built without
// enrichment, or cut short by cancellation, would be served to later callers
// that expect the full treatment, so they are never stored.
func (s *Service) storable(ctx context.Context, q crawler.Query, resp crawler.Response) bool {
	if s.cache == nil || s.cfg.CacheTTL <= 0 || ctx.Err() != nil {
		return false
	}
	if q.SkipEnrichment && s.enricher != nil {
		return false
	}
	return cacheable(resp)
}

// cacheable reports whether resp may be stored: any non-empty response, or
// an empty one every engine answered genuinely. Failed searches are not
// cached so the next call tries again.
func cacheable(resp crawler.Response) bool {
	return len(resp.Results) > 0 || strings.HasPrefix(resp.Diagnostic, crawler.DiagNoResults)
}

// Close releases the browser pool. Calling it more than once is a no-op.
func (s *Service) Close(_ context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		if s.pool != nil {
			s.closeErr = s.pool.Close()
		}
		s.logger.Info("Search service closed")
	})
	return s.closeErr
}

func (s *Service) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Service) empty(query, diagnostic string) crawler.Response {
	return crawler.Response{
		Query:      query,
		Results:    []crawler.Result{},
		Timestamp:  s.clock.Now(),
		Diagnostic: diagnostic,
	}
}

// NormalizeMaxResults applies the default and the upper bound.
func NormalizeMaxResults(n int) int {
	switch {
	case n <= 0:
		return DefaultMaxResults
	case n > MaxResultsCap:
		return MaxResultsCap
	default:
		return n
	}
}

func flightKey(q crawler.Query) string {
	return fmt.Sprintf("%t|%t|%s", q.AllowAutomation, q.SkipEnrichment, q.Text)
}

func trim(resp crawler.Response, maxResults int) crawler.Response {
	if len(resp.Results) > maxResults {
		resp.Results = resp.Results[:maxResults]
	}
	return resp
}
