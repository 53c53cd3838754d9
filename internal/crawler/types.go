package crawler

import "time"

// Query is a single search request. It is treated as immutable once issued.
type Query struct {
	// Text is the free-text query exactly as supplied by the caller.
	Text string `json:"query"`
	// MaxResults caps the number of results returned.
	MaxResults int `json:"max_results"`
	// AllowAutomation permits interactive driving of an engine's UI (home page,
	// typing). When false adapters only load the direct result-page URL.
	AllowAutomation bool `json:"allow_automation"`
	// SkipEnrichment disables target-page metadata extraction.
	SkipEnrichment bool `json:"skip_enrichment"`
}

// Result is one normalized search hit.
type Result struct {
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Snippet     string     `json:"snippet,omitempty"`
	Excerpt     string     `json:"excerpt,omitempty"`
	ImageURL    string     `json:"image_url,omitempty"`
	FaviconURL  string     `json:"favicon_url,omitempty"`
	SiteName    string     `json:"site_name,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Enriched reports whether any metadata beyond the engine snippet is present.
func (r Result) Enriched() bool {
	return r.Excerpt != "" || r.ImageURL != "" || r.SiteName != "" || r.PublishedAt != nil
}

// Response is the outcome of a search. It is always returned, even when every
// provider failed, in which case Results is empty and Diagnostic explains why.
type Response struct {
	Query      string    `json:"query"`
	Results    []Result  `json:"results"`
	Timestamp  time.Time `json:"timestamp"`
	Provider   string    `json:"provider,omitempty"`
	Diagnostic string    `json:"diagnostic,omitempty"`
}

// Clone returns a deep copy of the response.
func (r Response) Clone() Response {
	out := r
	if r.Results != nil {
		out.Results = make([]Result, len(r.Results))
		for i, res := range r.Results {
			if res.PublishedAt != nil {
				ts := *res.PublishedAt
				res.PublishedAt = &ts
			}
			out.Results[i] = res
		}
	}
	return out
}
