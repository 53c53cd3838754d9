package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/websearch-crawler/internal/crawler"
	"github.com/JakeFAU/websearch-crawler/internal/metrics"
)

// Gate enforces a minimum interval between the starts of consecutive
// search-engine navigations across the whole process. Spacing comes from a
// single-token rate.Limiter read at the injected clock's time; callers
// reserve and sleep one at a time.
type Gate struct {
	interval time.Duration
	clock    crawler.Clock
	limiter  *rate.Limiter
	token    chan struct{}
}

// NewGate builds a Gate. clock must not be nil. A non-positive interval
// disables spacing.
func NewGate(interval time.Duration, clock crawler.Clock) *Gate {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	g := &Gate{
		interval: interval,
		clock:    clock,
		limiter:  rate.NewLimiter(limit, 1),
		token:    make(chan struct{}, 1),
	}
	g.token <- struct{}{}
	return g
}

// Interval returns the configured minimum spacing.
func (g *Gate) Interval() time.Duration {
	return g.interval
}

// Wait blocks until the caller may start a navigation. A caller that gives
// up while sleeping hands its slot back to the limiter.
func (g *Gate) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("navigation gate: %w", err)
	}
	start := g.clock.Now()
	select {
	case <-ctx.Done():
		return fmt.Errorf("navigation gate: %w", ctx.Err())
	case <-g.token:
	}
	defer func() { g.token <- struct{}{} }()

	now := g.clock.Now()
	r := g.limiter.ReserveN(now, 1)
	if !r.OK() {
		return errors.New("navigation gate: reservation refused")
	}
	if delay := r.DelayFrom(now); delay > 0 {
		if err := g.clock.Sleep(ctx, delay); err != nil {
			r.CancelAt(g.clock.Now())
			return fmt.Errorf("navigation gate: %w", err)
		}
	}
	metrics.ObserveGateDelay(g.clock.Now().Sub(start))
	return nil
}
