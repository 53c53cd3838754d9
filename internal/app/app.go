// Package app initializes and holds long-lived application services, acting as
// the composition root for the CLI and the HTTP server.
package app

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/websearch-crawler/internal/api"
	"github.com/JakeFAU/websearch-crawler/internal/browser"
	"github.com/JakeFAU/websearch-crawler/internal/cache/memory"
	"github.com/JakeFAU/websearch-crawler/internal/clock/system"
	"github.com/JakeFAU/websearch-crawler/internal/config"
	"github.com/JakeFAU/websearch-crawler/internal/crawler"
	"github.com/JakeFAU/websearch-crawler/internal/enrich"
	"github.com/JakeFAU/websearch-crawler/internal/fallback"
	"github.com/JakeFAU/websearch-crawler/internal/id/uuid"
	"github.com/JakeFAU/websearch-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/websearch-crawler/internal/provider"
	"github.com/JakeFAU/websearch-crawler/internal/service"
	"github.com/JakeFAU/websearch-crawler/internal/stealth"
)

// App holds the shared, long-lived services for the application.
type App struct {
	Config  config.Config
	Logger  *zap.Logger
	Pool    *browser.Pool
	Service *service.Service
	IDs     crawler.IDGenerator

	closeOnce sync.Once
	closeErr  error
}

// Option customizes construction, mainly for tests.
type Option func(*deps)

type deps struct {
	launcher browser.Launcher
	clock    crawler.Clock
	fetcher  enrich.Fetcher
}

// WithLauncher replaces the chromedp launcher.
func WithLauncher(l browser.Launcher) Option {
	return func(d *deps) { d.launcher = l }
}

// WithClock replaces the system clock.
func WithClock(c crawler.Clock) Option {
	return func(d *deps) { d.clock = c }
}

// WithFetcher replaces the HTTP enrichment fetcher.
func WithFetcher(f enrich.Fetcher) Option {
	return func(d *deps) { d.fetcher = f }
}

// New wires every component from cfg. The browser is launched lazily on the
// first search or readiness check.
func New(cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ids := uuid.New()
	d := deps{clock: system.New()}
	for _, opt := range opts {
		opt(&d)
	}
	if d.launcher == nil {
		d.launcher = browser.NewChromedpLauncher(browser.ChromedpConfig{
			Headless:   cfg.Browser.Headless,
			ExecPath:   cfg.Browser.ExecPath,
			ProxyURL:   cfg.Browser.ProxyURL,
			NoSandbox:  cfg.Browser.NoSandbox,
			UserData:   cfg.Browser.UserData,
			SettleWait: cfg.Browser.SettleWait,
		}, ids, logger)
	}

	fingerprints := stealth.NewGenerator().WithLocales(cfg.Browser.Locales...)
	pool, err := browser.NewPool(browser.Config{
		Size:                  cfg.Pool.Size,
		LaunchAttempts:        cfg.Pool.LaunchAttempts,
		LaunchBackoff:         cfg.Pool.LaunchBackoff,
		FreshSessionPerSearch: cfg.Pool.FreshSessionPerSearch,
	}, d.launcher, fingerprints, logger)
	if err != nil {
		return nil, fmt.Errorf("build session pool: %w", err)
	}

	providers, err := buildProviders(cfg, d.clock, logger)
	if err != nil {
		_ = pool.Close()
		return nil, err
	}

	strategies, _ := fallback.StrategiesByName(cfg.Bypass.Strategies, cfg.Bypass.Cooldown)
	orchestrator, err := fallback.New(providers, pool, d.clock, fallback.Config{
		Retry:          cfg.Retry.Policy(),
		AttemptTimeout: cfg.Search.AttemptTimeout,
		Strategies:     strategies,
	}, logger)
	if err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}

	var enricher crawler.Enricher
	if cfg.Enrich.Enabled {
		enricher = buildEnricher(cfg, pool, d.fetcher, logger)
	}

	svc := service.New(service.Config{
		CacheTTL:        cfg.Cache.TTL,
		AllowAutomation: cfg.Search.AllowAutomation,
		Enrich:          cfg.Enrich.Enabled,
	}, memory.New(), orchestrator, enricher, pool, d.clock, logger)

	logger.Info("Application services initialized",
		zap.Int("providers", len(providers)),
		zap.Int("pool_size", pool.Size()),
		zap.Bool("enrich", cfg.Enrich.Enabled),
	)

	return &App{
		Config:  cfg,
		Logger:  logger,
		Pool:    pool,
		Service: svc,
		IDs:     ids,
	}, nil
}

func buildProviders(cfg config.Config, clock crawler.Clock, logger *zap.Logger) ([]fallback.Provider, error) {
	configs, err := cfg.ProviderConfigs()
	if err != nil {
		return nil, fmt.Errorf("resolve providers: %w", err)
	}
	gate := ratelimit.NewGate(cfg.RateLimit.NavigationInterval, clock)
	sim := stealth.NewSimulator()
	interp := stealth.NewInterpreter(clock.Sleep)

	out := make([]fallback.Provider, 0, len(configs))
	for _, pc := range configs {
		adapter, err := provider.NewAdapter(pc, gate, sim, interp, logger)
		if err != nil {
			return nil, fmt.Errorf("build provider %q: %w", pc.Name, err)
		}
		out = append(out, adapter)
	}
	return out, nil
}

func buildEnricher(cfg config.Config, pool *browser.Pool, fetcher enrich.Fetcher, logger *zap.Logger) *enrich.Enricher {
	if fetcher == nil && cfg.Enrich.HTTPFallback {
		fetcher = enrich.NewHTTPFetcher(enrich.HTTPConfig{
			UserAgent: stealth.DesktopUserAgent(),
			Timeout:   cfg.Enrich.Timeout,
		})
	}
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.RateLimit.DomainRPS,
		DefaultBurst: cfg.RateLimit.DomainBurst,
	})
	return enrich.New(enrich.Config{
		TopK:           cfg.Enrich.TopK,
		Timeout:        cfg.Enrich.Timeout,
		ExcerptMax:     cfg.Enrich.ExcerptMax,
		FaviconService: cfg.Enrich.FaviconService,
		HTTPFallback:   cfg.Enrich.HTTPFallback,
	}, pool, limiter, fetcher, logger)
}

// APIServer builds the HTTP surface over the service.
func (a *App) APIServer() *api.Server {
	return api.NewServer(a.Service, a.Pool, a.IDs, api.Options{
		RequestTimeout:  a.Config.Server.RequestTimeout,
		APIKey:          a.Config.Server.APIKey,
		AllowAutomation: a.Config.Search.AllowAutomation,
		Enrich:          a.Config.Enrich.Enabled,
	}, a.Logger.Named("api"))
}

// Close shuts down the service and the browser pool. It is safe to call
// more than once.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.Logger.Info("Shutting down application services")
		a.closeErr = a.Service.Close(ctx)
	})
	return a.closeErr
}
