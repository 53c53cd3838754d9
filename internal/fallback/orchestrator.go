// Package fallback runs a query across providers in priority order, retrying
// transient failures, working around bot detection and falling back to the
// next engine until one returns results.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/websearch-crawler/internal/browser"
	"github.com/JakeFAU/websearch-crawler/internal/crawler"
	"github.com/JakeFAU/websearch-crawler/internal/metrics"
	"github.com/JakeFAU/websearch-crawler/internal/provider"
	"github.com/JakeFAU/websearch-crawler/internal/stealth"
)

// Provider is a search engine the orchestrator can drive.
type Provider interface {
	Name() string
	DirectParams() map[string]string
	RetryPolicy(def crawler.RetryPolicy) crawler.RetryPolicy
	Search(ctx context.Context, sess browser.Session, query crawler.Query, opts provider.SearchOptions) ([]crawler.Result, error)
}

// SessionPool leases browser sessions.
type SessionPool interface {
	Acquire(ctx context.Context, opts browser.AcquireOptions) (browser.Session, error)
	Release(sess browser.Session, discard bool)
}

// Config tunes retries and bypass.
type Config struct {
	Retry          crawler.RetryPolicy
	AttemptTimeout time.Duration
	Strategies     []Strategy
}

// Orchestrator implements crawler.Searcher.
type Orchestrator struct {
	providers []Provider
	pool      SessionPool
	clock     crawler.Clock
	cfg       Config
	logger    *zap.Logger
}

// New builds an Orchestrator over providers in priority order.
func New(providers []Provider, pool SessionPool, clock crawler.Clock, cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	if len(providers) == 0 {
		return nil, errors.New("at least one provider is required")
	}
	if pool == nil {
		return nil, errors.New("session pool is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if cfg.Retry.MaxAttempts == 0 && cfg.Retry.BaseBackoff == 0 {
		cfg.Retry = crawler.DefaultRetryPolicy()
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 45 * time.Second
	}
	if cfg.Strategies == nil {
		cfg.Strategies = DefaultStrategies(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		providers: providers,
		pool:      pool,
		clock:     clock,
		cfg:       cfg,
		logger:    logger.Named("fallback"),
	}, nil
}

// noResultsKind labels a provider that answered with an empty result page.
const noResultsKind crawler.ErrorKind = "no_results"

type outcome struct {
	provider string
	summary  string
}

// Search tries each provider until one returns results. It never fails: when
// every provider is exhausted the response is empty and Diagnostic lists what
// happened to each one.
func (o *Orchestrator) Search(ctx context.Context, query crawler.Query) crawler.Response {
	var outcomes []outcome
	allEmpty := len(o.providers) > 0
	for _, p := range o.providers {
		results, summary := o.tryProvider(ctx, p, query)
		if len(results) > 0 {
			if query.MaxResults > 0 && len(results) > query.MaxResults {
				results = results[:query.MaxResults]
			}
			metrics.ObserveSearch(p.Name(), "success")
			o.logger.Info("search succeeded",
				zap.String("provider", p.Name()),
				zap.Int("results", len(results)),
			)
			return crawler.Response{
				Query:     query.Text,
				Results:   results,
				Timestamp: o.clock.Now(),
				Provider:  p.Name(),
			}
		}
		outcomes = append(outcomes, outcome{provider: p.Name(), summary: summary})
		allEmpty = allEmpty && strings.HasPrefix(summary, string(noResultsKind))
		if ctx.Err() != nil {
			metrics.ObserveSearch("", "canceled")
			return o.exhausted(query, "search canceled", outcomes)
		}
		o.logger.Info("falling back to next provider",
			zap.String("provider", p.Name()),
			zap.String("outcome", summary),
		)
	}
	if allEmpty {
		metrics.ObserveSearch("", "empty")
		return o.exhausted(query, crawler.DiagNoResults, outcomes)
	}
	metrics.ObserveSearch("", "exhausted")
	return o.exhausted(query, "all providers exhausted", outcomes)
}

func (o *Orchestrator) exhausted(query crawler.Query, headline string, outcomes []outcome) crawler.Response {
	parts := make([]string, 0, len(outcomes))
	for _, oc := range outcomes {
		parts = append(parts, oc.provider+": "+oc.summary)
	}
	diag := headline
	if len(parts) > 0 {
		diag += ": " + strings.Join(parts, "; ")
	}
	o.logger.Warn("search exhausted", zap.String("query", query.Text), zap.String("diagnostic", diag))
	return crawler.Response{
		Query:      query.Text,
		Results:    []crawler.Result{},
		Timestamp:  o.clock.Now(),
		Diagnostic: diag,
	}
}

// tryProvider runs the TRY/RETRY/BLOCKED_BYPASS states for one provider and
// returns its results or a short summary of why it gave up.
func (o *Orchestrator) tryProvider(ctx context.Context, p Provider, query crawler.Query) ([]crawler.Result, string) {
	policy := p.RetryPolicy(o.cfg.Retry)
	logger := o.logger.With(zap.String("provider", p.Name()))
	var lastKind crawler.ErrorKind
	for attempt := 1; ; attempt++ {
		results, err := o.attempt(ctx, p, query,
			browser.AcquireOptions{DeviceClass: stealth.Desktop},
			provider.SearchOptions{Mode: provider.ModeInteractive},
		)
		kind := o.record(logger.With(zap.Int("attempt", attempt)), p, "", err)
		switch {
		case err == nil:
			return results, "ok"
		case kind == crawler.KindCanceled || ctx.Err() != nil:
			return nil, "canceled"
		case kind == crawler.KindBrowserUnavailable:
			return nil, "browser unavailable"
		case kind == crawler.KindBlocked:
			return o.bypass(ctx, p, query, logger)
		}

		lastKind = kind
		if errors.Is(err, crawler.ErrNoResults) {
			lastKind = noResultsKind
		}
		if attempt >= policy.Attempts() {
			return nil, fmt.Sprintf("%s after %d attempts", lastKind, attempt)
		}
		wait := policy.Backoff(attempt)
		logger.Debug("retrying provider", zap.Int("attempt", attempt), zap.Duration("backoff", wait))
		if err := o.clock.Sleep(ctx, wait); err != nil {
			return nil, "canceled"
		}
	}
}

// bypass walks the strategy ladder once each. Every strategy is best effort;
// any failure moves on to the next one.
func (o *Orchestrator) bypass(ctx context.Context, p Provider, query crawler.Query, logger *zap.Logger) ([]crawler.Result, string) {
	if len(o.cfg.Strategies) == 0 {
		return nil, "blocked"
	}
	tried := make([]string, 0, len(o.cfg.Strategies))
	for _, st := range o.cfg.Strategies {
		stLogger := logger.With(zap.String("strategy", st.Name))
		if st.Cooldown > 0 {
			stLogger.Info("cooling down before bypass", zap.Duration("cooldown", st.Cooldown))
			if err := o.clock.Sleep(ctx, st.Cooldown); err != nil {
				return nil, "canceled"
			}
		}
		opts := provider.SearchOptions{Mode: st.Mode}
		if st.UseDirectParams {
			opts.ExtraParams = p.DirectParams()
		}
		results, err := o.attempt(ctx, p, query,
			browser.AcquireOptions{DeviceClass: st.DeviceClass, Fresh: st.FreshSession},
			opts,
		)
		kind := o.record(stLogger, p, st.Name, err)
		switch {
		case err == nil:
			stLogger.Info("bypass succeeded")
			return results, "ok via " + st.Name
		case kind == crawler.KindCanceled || ctx.Err() != nil:
			return nil, "canceled"
		case kind == crawler.KindBrowserUnavailable:
			return nil, "browser unavailable"
		}
		tried = append(tried, st.Name+"="+string(kind))
	}
	return nil, "blocked; bypass failed (" + strings.Join(tried, ", ") + ")"
}

// attempt leases a session, runs one search under the attempt timeout and
// releases the session, discarding it on failure. An empty result list is
// reported as crawler.ErrNoResults.
func (o *Orchestrator) attempt(
	ctx context.Context,
	p Provider,
	query crawler.Query,
	acquire browser.AcquireOptions,
	opts provider.SearchOptions,
) ([]crawler.Result, error) {
	sess, err := o.pool.Acquire(ctx, acquire)
	if err != nil {
		return nil, err
	}
	attemptCtx, cancel := context.WithTimeout(ctx, o.cfg.AttemptTimeout)
	defer cancel()

	results, err := p.Search(attemptCtx, sess, query, opts)
	if err == nil && len(results) == 0 {
		o.pool.Release(sess, false)
		return nil, fmt.Errorf("%s: %w", p.Name(), crawler.ErrNoResults)
	}
	o.pool.Release(sess, err != nil)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, fmt.Errorf("%s: attempt timed out after %s: %w", p.Name(), o.cfg.AttemptTimeout, err)
	}
	return results, err
}

func (o *Orchestrator) record(logger *zap.Logger, p Provider, strategy string, err error) crawler.ErrorKind {
	kind := crawler.Classify(err)
	label := string(kind)
	if errors.Is(err, crawler.ErrNoResults) {
		label = "no_results"
	}
	if strategy != "" {
		label = "bypass_" + label
	}
	metrics.ObserveProviderAttempt(p.Name(), label)

	switch kind {
	case crawler.KindNone, crawler.KindCanceled:
	case crawler.KindParseMismatch:
		logger.Warn("result markup no longer matches selectors", zap.Error(err))
	case crawler.KindBlocked:
		logger.Warn("blocked by bot detection", zap.Error(err))
	default:
		logger.Info("provider attempt failed", zap.String("kind", string(kind)), zap.Error(err))
	}
	return kind
}

var _ crawler.Searcher = (*Orchestrator)(nil)
