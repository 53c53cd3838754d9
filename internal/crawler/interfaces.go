package crawler

import (
	"context"
	"time"
)

// ResultCache stores responses keyed by query text.
type ResultCache interface {
	Get(key string) (Response, bool)
	Put(key string, resp Response, ttl time.Duration)
}

// Searcher runs a live search across providers. Implementations never return
// an error; failures are reported through Response.Diagnostic.
type Searcher interface {
	Search(ctx context.Context, query Query) Response
}

// Enricher decorates results with target-page metadata. It must preserve the
// length and order of its input.
type Enricher interface {
	Enrich(ctx context.Context, results []Result) []Result
}

// Clock abstracts time so waits can be faked in tests.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator produces request and session identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
