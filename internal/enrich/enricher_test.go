package enrich

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/websearch-crawler/internal/browser"
	"github.com/JakeFAU/websearch-crawler/internal/crawler"
	"github.com/JakeFAU/websearch-crawler/internal/stealth"
)

const articleHTML = `<html><head>
<title>Release notes</title>
<meta property="og:type" content="article">
<meta property="og:site_name" content="Example News">
<meta property="og:image" content="/img/cover.png">
<meta property="article:published_time" content="2025-03-04T10:00:00Z">
<link rel="icon" href="/favicon.ico">
</head><body>
<nav>Home About</nav>
<article><h1>Release notes</h1>
<p>Version 2 ships    faster   builds.</p><script>track()</script></article>
<footer>Copyright</footer>
</body></html>`

type pageSession struct {
	pages   map[string]string
	current string
	fail    error
}

func (s *pageSession) ID() string                       { return "page-session" }
func (s *pageSession) Fingerprint() stealth.Fingerprint { return stealth.Fingerprint{} }

func (s *pageSession) Navigate(_ context.Context, url string) error {
	if s.fail != nil {
		return s.fail
	}
	s.current = url
	return nil
}

func (s *pageSession) WaitReady(context.Context, string) error           { return nil }
func (s *pageSession) Click(context.Context, string) error               { return nil }
func (s *pageSession) ClearInput(context.Context, string) error          { return nil }
func (s *pageSession) Submit(context.Context, string) error              { return nil }
func (s *pageSession) MoveMouse(context.Context, float64, float64) error { return nil }
func (s *pageSession) ScrollTo(context.Context, int64) error             { return nil }
func (s *pageSession) TypeText(context.Context, string, string) error    { return nil }
func (s *pageSession) HTML(context.Context) (string, error)              { return s.pages[s.current], nil }
func (s *pageSession) Location(context.Context) (string, error)          { return s.current, nil }
func (s *pageSession) Status() int                                       { return 200 }
func (s *pageSession) Healthy() bool                                     { return true }
func (s *pageSession) Close() error                                      { return nil }

type pagePool struct {
	mu        sync.Mutex
	pages     map[string]string
	fail      error
	acquired  int
	discarded int
	active    int32
	peak      int32
	hold      time.Duration
}

func (p *pagePool) Acquire(context.Context, browser.AcquireOptions) (browser.Session, error) {
	p.mu.Lock()
	p.acquired++
	p.mu.Unlock()
	n := atomic.AddInt32(&p.active, 1)
	for {
		peak := atomic.LoadInt32(&p.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&p.peak, peak, n) {
			break
		}
	}
	if p.hold > 0 {
		time.Sleep(p.hold)
	}
	return &pageSession{pages: p.pages, fail: p.fail}, nil
}

func (p *pagePool) Release(_ browser.Session, discard bool) {
	atomic.AddInt32(&p.active, -1)
	if discard {
		p.mu.Lock()
		p.discarded++
		p.mu.Unlock()
	}
}

type stubFetcher struct {
	pages map[string]string
	calls atomic.Int32
}

func (f *stubFetcher) Fetch(_ context.Context, url string) (Page, error) {
	f.calls.Add(1)
	html, ok := f.pages[url]
	if !ok {
		return Page{}, errors.New("not found")
	}
	return Page{URL: url, HTML: html}, nil
}

type countingLimiter struct {
	calls atomic.Int32
	err   error
}

func (l *countingLimiter) Wait(context.Context, string) error {
	l.calls.Add(1)
	return l.err
}

func results(urls ...string) []crawler.Result {
	out := make([]crawler.Result, 0, len(urls))
	for i, u := range urls {
		out = append(out, crawler.Result{Title: fmt.Sprintf("r%d", i), URL: u})
	}
	return out
}

func TestEnrichViaBrowser(t *testing.T) {
	t.Parallel()

	pool := &pagePool{pages: map[string]string{"https://news.example.com/a": articleHTML}}
	limiter := &countingLimiter{}
	e := New(DefaultConfig(), pool, limiter, nil, nil)

	out := e.Enrich(context.Background(), results("https://news.example.com/a"))
	require.Len(t, out, 1)
	got := out[0]
	require.Equal(t, "Example News", got.SiteName)
	require.Equal(t, "https://news.example.com/img/cover.png", got.ImageURL)
	require.Equal(t, "https://news.example.com/favicon.ico", got.FaviconURL)
	require.Equal(t, "Release notes Version 2 ships faster builds.", got.Excerpt)
	require.NotNil(t, got.PublishedAt)
	require.Equal(t, time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC), *got.PublishedAt)
	require.Equal(t, int32(1), limiter.calls.Load())
	require.Zero(t, pool.discarded)
}

func TestEnrichOnlyTopKAndPreservesOrder(t *testing.T) {
	t.Parallel()

	pool := &pagePool{pages: map[string]string{}, hold: 20 * time.Millisecond}
	e := New(Config{TopK: 3}, pool, nil, nil, nil)
	in := results(
		"https://a.example/1", "https://b.example/2", "https://c.example/3",
		"https://d.example/4", "https://e.example/5",
	)

	out := e.Enrich(context.Background(), in)
	require.Len(t, out, len(in))
	for i := range in {
		require.Equal(t, in[i].URL, out[i].URL)
		require.Equal(t, in[i].Title, out[i].Title)
	}
	require.NotEmpty(t, out[2].FaviconURL)
	require.Empty(t, out[3].FaviconURL)
	require.Empty(t, out[4].FaviconURL)
	require.Equal(t, 3, pool.acquired)
	require.Greater(t, atomic.LoadInt32(&pool.peak), int32(1))
	require.Empty(t, in[0].FaviconURL, "input must not be mutated")
}

func TestEnrichFallsBackToHTTP(t *testing.T) {
	t.Parallel()

	pool := &pagePool{fail: errors.New("tab crashed")}
	fetcher := &stubFetcher{pages: map[string]string{"https://news.example.com/a": articleHTML}}
	e := New(DefaultConfig(), pool, nil, fetcher, nil)

	out := e.Enrich(context.Background(), results("https://news.example.com/a"))
	require.Equal(t, "Example News", out[0].SiteName)
	require.Equal(t, int32(1), fetcher.calls.Load())
	require.Equal(t, 1, pool.discarded)
}

func TestEnrichFaviconOnlyWhenEverythingFails(t *testing.T) {
	t.Parallel()

	pool := &pagePool{fail: errors.New("tab crashed")}
	fetcher := &stubFetcher{pages: map[string]string{}}
	e := New(DefaultConfig(), pool, nil, fetcher, nil)

	in := results("https://www.example.org/page")
	out := e.Enrich(context.Background(), in)
	require.Len(t, out, 1)
	require.Equal(t, in[0].Title, out[0].Title)
	require.Equal(t, "https://www.google.com/s2/favicons?domain=www.example.org&sz=64", out[0].FaviconURL)
	require.Empty(t, out[0].Excerpt)
}

func TestEnrichHTTPFallbackDisabled(t *testing.T) {
	t.Parallel()

	pool := &pagePool{fail: errors.New("tab crashed")}
	fetcher := &stubFetcher{pages: map[string]string{"https://news.example.com/a": articleHTML}}
	cfg := DefaultConfig()
	cfg.HTTPFallback = false
	e := New(cfg, pool, nil, fetcher, nil)

	out := e.Enrich(context.Background(), results("https://news.example.com/a"))
	require.Zero(t, fetcher.calls.Load())
	require.Empty(t, out[0].SiteName)
	require.NotEmpty(t, out[0].FaviconURL)
}

func TestEnrichLimiterAbortFallsBackToFavicon(t *testing.T) {
	t.Parallel()

	pool := &pagePool{pages: map[string]string{"https://news.example.com/a": articleHTML}}
	limiter := &countingLimiter{err: context.DeadlineExceeded}
	e := New(DefaultConfig(), pool, limiter, nil, nil)

	out := e.Enrich(context.Background(), results("https://news.example.com/a"))
	require.Zero(t, pool.acquired)
	require.NotEmpty(t, out[0].FaviconURL)
	require.Empty(t, out[0].SiteName)
}

func TestEnrichEmptyInput(t *testing.T) {
	t.Parallel()

	e := New(DefaultConfig(), nil, nil, nil, nil)
	out := e.Enrich(context.Background(), nil)
	require.NotNil(t, out)
	require.Empty(t, out)
}

func TestHTTPFetcher(t *testing.T) {
	t.Parallel()

	var gotUA atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.UserAgent())
		w.Header().Set("Content-Type", "text/html")
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(articleHTML))
	}))
	t.Cleanup(srv.Close)

	ua := stealth.DesktopUserAgent()
	f := NewHTTPFetcher(HTTPConfig{UserAgent: ua, Timeout: 2 * time.Second})

	page, err := f.Fetch(context.Background(), srv.URL+"/article")
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/article", page.URL)
	require.True(t, strings.Contains(page.HTML, "Example News"))
	require.Equal(t, ua, gotUA.Load())

	_, err = f.Fetch(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
}

func TestHTTPFetcherCanceled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	f := NewHTTPFetcher(HTTPConfig{Timeout: 5 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, srv.URL)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
