package memory

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/websearch-crawler/internal/crawler"
)

type fakeNow struct {
	mu  sync.Mutex
	cur time.Time
}

func (f *fakeNow) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cur
}

func (f *fakeNow) Advance(d time.Duration) {
	f.mu.Lock()
	f.cur = f.cur.Add(d)
	f.mu.Unlock()
}

func sampleResponse() crawler.Response {
	published := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	return crawler.Response{
		Query:     "formmy pricing",
		Provider:  "google",
		Timestamp: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
		Results: []crawler.Result{
			{Title: "Pricing", URL: "https://formmy.app/pricing", Snippet: "Plans", PublishedAt: &published},
		},
	}
}

func TestCacheHitReturnsIdenticalCopies(t *testing.T) {
	t.Parallel()

	c := New()
	c.Put("formmy pricing", sampleResponse(), time.Minute)

	first, ok := c.Get("formmy pricing")
	require.True(t, ok)
	second, ok := c.Get("formmy pricing")
	require.True(t, ok)
	require.Equal(t, first, second)

	first.Results[0].Title = "mutated"
	*first.Results[0].PublishedAt = time.Time{}
	third, ok := c.Get("formmy pricing")
	require.True(t, ok)
	require.Equal(t, second, third)
}

func TestCachePutCopiesInput(t *testing.T) {
	t.Parallel()

	c := New()
	resp := sampleResponse()
	c.Put("k", resp, time.Minute)
	resp.Results[0].URL = "https://evil.test/"

	got, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, "https://formmy.app/pricing", got.Results[0].URL)
}

func TestCacheExpiryOnRead(t *testing.T) {
	t.Parallel()

	clk := &fakeNow{cur: time.Unix(1_700_000_000, 0)}
	c := New(WithNow(clk.Now))
	c.Put("q", sampleResponse(), 20*time.Minute)

	clk.Advance(19 * time.Minute)
	_, ok := c.Get("q")
	require.True(t, ok)

	clk.Advance(time.Minute)
	require.Equal(t, 1, c.Len(), "expired entry stays until read")
	_, ok = c.Get("q")
	require.False(t, ok)
	require.Equal(t, 0, c.Len())
}

func TestCacheStoresEmptyResponses(t *testing.T) {
	t.Parallel()

	c := New()
	c.Put("nothing", crawler.Response{Query: "nothing", Diagnostic: "all providers exhausted"}, time.Minute)
	got, ok := c.Get("nothing")
	require.True(t, ok)
	require.NotNil(t, got.Results)
	require.Empty(t, got.Results)
}

func TestCacheKeysAreExact(t *testing.T) {
	t.Parallel()

	c := New()
	c.Put("Go", sampleResponse(), time.Minute)
	_, ok := c.Get("go")
	require.False(t, ok)
	_, ok = c.Get("Go ")
	require.False(t, ok)
}

func TestCacheIgnoresNonPositiveTTL(t *testing.T) {
	t.Parallel()

	c := New()
	c.Put("k", sampleResponse(), 0)
	require.Equal(t, 0, c.Len())
}

func TestCacheConcurrentAccess(t *testing.T) {
	t.Parallel()

	c := New()
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			c.Put(fmt.Sprintf("k%d", i%4), sampleResponse(), time.Minute)
		}(i)
		go func(i int) {
			defer wg.Done()
			if resp, ok := c.Get(fmt.Sprintf("k%d", i%4)); ok {
				assert.Len(t, resp.Results, 1)
			}
		}(i)
	}
	wg.Wait()
	require.LessOrEqual(t, c.Len(), 4)
}
