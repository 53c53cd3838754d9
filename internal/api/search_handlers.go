package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/websearch-crawler/internal/crawler"
	"github.com/JakeFAU/websearch-crawler/internal/format"
	"github.com/JakeFAU/websearch-crawler/internal/service"
)

const maxQueryLength = 512

// SearchHandler serves GET /v1/search.
type SearchHandler struct {
	searcher Searcher
	opts     Options
	logger   *zap.Logger
}

// NewSearchHandler wires the searcher and logger.
func NewSearchHandler(searcher Searcher, opts Options, logger *zap.Logger) *SearchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchHandler{searcher: searcher, opts: opts, logger: logger}
}

type searchResponse struct {
	RequestID  string           `json:"request_id,omitempty"`
	Query      string           `json:"query"`
	Results    []crawler.Result `json:"results"`
	Provider   string           `json:"provider,omitempty"`
	Diagnostic string           `json:"diagnostic,omitempty"`
	Timestamp  string           `json:"timestamp"`
	Context    string           `json:"context"`
	References string           `json:"references,omitempty"`
}

// Search handles GET /v1/search?q=&max_results=&enrich=&automation=. It
// returns 200 with the (possibly empty) response, 400 for invalid
// parameters, or 503 when the searcher is not configured. An exhausted
// search is still a 200 whose diagnostic explains the failure.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	if h.searcher == nil {
		writeError(w, http.StatusServiceUnavailable, "search service unavailable")
		return
	}
	query, err := parseQuery(r, h.opts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := h.searcher.Run(r.Context(), query)
	out := format.Format(resp)
	if resp.Diagnostic != "" {
		h.logger.Info("Search returned diagnostic",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("diagnostic", resp.Diagnostic),
		)
	}
	writeJSON(w, http.StatusOK, searchResponse{
		RequestID:  RequestID(r.Context()),
		Query:      resp.Query,
		Results:    resp.Results,
		Provider:   resp.Provider,
		Diagnostic: resp.Diagnostic,
		Timestamp:  resp.Timestamp.UTC().Format(time.RFC3339),
		Context:    out.Context,
		References: out.References,
	})
}

func parseQuery(r *http.Request, opts Options) (crawler.Query, error) {
	q := r.URL.Query()
	text := strings.TrimSpace(q.Get("q"))
	if text == "" {
		return crawler.Query{}, errors.New("q is required")
	}
	if len(text) > maxQueryLength {
		return crawler.Query{}, errors.New("q is too long")
	}
	query := crawler.Query{
		Text:            text,
		MaxResults:      service.DefaultMaxResults,
		AllowAutomation: opts.AllowAutomation,
		SkipEnrichment:  !opts.Enrich,
	}
	if raw := q.Get("max_results"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return crawler.Query{}, errors.New("invalid max_results")
		}
		query.MaxResults = service.NormalizeMaxResults(n)
	}
	if raw := q.Get("enrich"); raw != "" {
		enrich, err := strconv.ParseBool(raw)
		if err != nil {
			return crawler.Query{}, errors.New("invalid enrich")
		}
		query.SkipEnrichment = !enrich
	}
	if raw := q.Get("automation"); raw != "" {
		allow, err := strconv.ParseBool(raw)
		if err != nil {
			return crawler.Query{}, errors.New("invalid automation")
		}
		query.AllowAutomation = allow
	}
	return query, nil
}
