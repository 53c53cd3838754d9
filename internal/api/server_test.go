package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/websearch-crawler/internal/crawler"
)

type fakeSearcher struct {
	mu      sync.Mutex
	queries []crawler.Query
	resp    crawler.Response
	panics  bool
}

func (f *fakeSearcher) Run(_ context.Context, q crawler.Query) crawler.Response {
	if f.panics {
		panic("boom")
	}
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	resp := f.resp
	resp.Query = q.Text
	return resp
}

func (f *fakeSearcher) last() crawler.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[len(f.queries)-1]
}

type fakeReady struct{ err error }

func (f fakeReady) Ready(context.Context) error { return f.err }

type fakeIDGen struct{ id string }

func (f fakeIDGen) NewID() (string, error) { return f.id, nil }

func newTestServer(searcher Searcher, ready ReadinessChecker, opts Options) *Server {
	return NewServer(searcher, ready, fakeIDGen{id: "req-1"}, opts, zap.NewNop())
}

func sampleResponse() crawler.Response {
	return crawler.Response{
		Provider:  "bing",
		Timestamp: time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC),
		Results: []crawler.Result{
			{Title: "Go", URL: "https://go.dev/", Snippet: "The Go programming language"},
		},
	}
}

func TestSearchReturnsFormattedResults(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{resp: sampleResponse()}
	server := newTestServer(searcher, nil, Options{AllowAutomation: true, Enrich: true})

	req := httptest.NewRequest(http.MethodGet, "/v1/search?q=golang&max_results=3", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))

	var body searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "req-1", body.RequestID)
	require.Equal(t, "golang", body.Query)
	require.Len(t, body.Results, 1)
	require.Equal(t, "2025-05-06T07:08:09Z", body.Timestamp)
	require.Contains(t, body.Context, "[1] Go")
	require.Contains(t, body.References, "[1] [Go](https://go.dev/)")

	q := searcher.last()
	require.Equal(t, 3, q.MaxResults)
	require.True(t, q.AllowAutomation)
	require.False(t, q.SkipEnrichment)
}

func TestSearchQueryFlags(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{resp: sampleResponse()}
	server := newTestServer(searcher, nil, Options{AllowAutomation: true, Enrich: true})

	req := httptest.NewRequest(http.MethodGet, "/v1/search?q=x&max_results=50&enrich=false&automation=0", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	q := searcher.last()
	require.Equal(t, 10, q.MaxResults)
	require.True(t, q.SkipEnrichment)
	require.False(t, q.AllowAutomation)
}

func TestSearchRejectsBadParameters(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeSearcher{}, nil, Options{})
	tests := map[string]string{
		"missing q":      "/v1/search",
		"blank q":        "/v1/search?q=%20%20",
		"bad max":        "/v1/search?q=x&max_results=abc",
		"negative max":   "/v1/search?q=x&max_results=-1",
		"bad enrich":     "/v1/search?q=x&enrich=maybe",
		"bad automation": "/v1/search?q=x&automation=perhaps",
	}
	for name, target := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
			require.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSearchExhaustedIsStillOK(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{resp: crawler.Response{
		Results:    []crawler.Result{},
		Diagnostic: "all providers exhausted: google: blocked",
	}}
	server := newTestServer(searcher, nil, Options{})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/search?q=nothing", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Empty(t, body.Results)
	require.NotNil(t, body.Results)
	require.Contains(t, body.Diagnostic, "exhausted")
	require.Contains(t, body.Context, "No web results found")
}

func TestSearchRequiresAPIKey(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeSearcher{resp: sampleResponse()}, nil, Options{APIKey: "secret"})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/search?q=x", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/search?q=x", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSearchUnavailableWithoutSearcher(t *testing.T) {
	t.Parallel()

	server := newTestServer(nil, nil, Options{})
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/search?q=x", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()

	ok := newTestServer(&fakeSearcher{}, fakeReady{}, Options{})
	rec := httptest.NewRecorder()
	ok.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	down := newTestServer(&fakeSearcher{}, fakeReady{err: errors.New("browser unavailable")}, Options{})
	rec = httptest.NewRecorder()
	down.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "browser unavailable")

	rec = httptest.NewRecorder()
	down.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeSearcher{resp: sampleResponse()}, nil, Options{})
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/search?q=metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeSearcher{panics: true}, nil, Options{})
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/search?q=x", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestIDIsPropagated(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeSearcher{resp: sampleResponse()}, nil, Options{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "upstream-id")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, "upstream-id", rec.Header().Get("X-Request-ID"))
}
