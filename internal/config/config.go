// Package config loads and validates search service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/websearch-crawler/internal/crawler"
	"github.com/JakeFAU/websearch-crawler/internal/fallback"
	"github.com/JakeFAU/websearch-crawler/internal/provider"
)

// EnvPrefix prefixes every environment override, e.g. WEBSEARCH_POOL_SIZE.
const EnvPrefix = "WEBSEARCH"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Pool      PoolConfig      `mapstructure:"pool"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Search    SearchConfig    `mapstructure:"search"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Bypass    BypassConfig    `mapstructure:"bypass"`
	Enrich    EnrichConfig    `mapstructure:"enrich"`
	Providers ProvidersConfig `mapstructure:"providers"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	APIKey         string        `mapstructure:"api_key"`
}

// BrowserConfig controls the Chrome process.
type BrowserConfig struct {
	Headless   bool          `mapstructure:"headless"`
	ExecPath   string        `mapstructure:"exec_path"`
	ProxyURL   string        `mapstructure:"proxy_url"`
	NoSandbox  bool          `mapstructure:"no_sandbox"`
	UserData   string        `mapstructure:"user_data_dir"`
	SettleWait time.Duration `mapstructure:"settle_wait"`
	Locales    []string      `mapstructure:"locales"`
}

// PoolConfig sizes the session pool.
type PoolConfig struct {
	Size                  int           `mapstructure:"size"`
	LaunchAttempts        int           `mapstructure:"launch_attempts"`
	LaunchBackoff         time.Duration `mapstructure:"launch_backoff"`
	FreshSessionPerSearch bool          `mapstructure:"fresh_session_per_search"`
}

// RateLimitConfig spaces outbound navigations.
type RateLimitConfig struct {
	// NavigationInterval is the minimum gap between engine page loads.
	NavigationInterval time.Duration `mapstructure:"navigation_interval"`
	DomainRPS          float64       `mapstructure:"domain_rps"`
	DomainBurst        int           `mapstructure:"domain_burst"`
}

// CacheConfig controls the result cache.
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// SearchConfig holds per-search defaults.
type SearchConfig struct {
	MaxResults      int           `mapstructure:"max_results"`
	AllowAutomation bool          `mapstructure:"allow_automation"`
	AttemptTimeout  time.Duration `mapstructure:"attempt_timeout"`
}

// RetryConfig mirrors crawler.RetryPolicy for configuration files.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseBackoff time.Duration `mapstructure:"base_backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff"`
	Exponential bool          `mapstructure:"exponential"`
}

// Policy converts the config into a crawler.RetryPolicy.
func (r RetryConfig) Policy() crawler.RetryPolicy {
	return crawler.RetryPolicy{
		MaxAttempts: r.MaxAttempts,
		BaseBackoff: r.BaseBackoff,
		MaxBackoff:  r.MaxBackoff,
		Exponential: r.Exponential,
	}
}

// RetryOverride replaces selected fields of the global retry policy for one
// provider. Zero values inherit.
type RetryOverride struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseBackoff time.Duration `mapstructure:"base_backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff"`
	Exponential *bool         `mapstructure:"exponential"`
}

// Apply returns base with the override's non-zero fields applied.
func (o RetryOverride) Apply(base crawler.RetryPolicy) crawler.RetryPolicy {
	if o.MaxAttempts > 0 {
		base.MaxAttempts = o.MaxAttempts
	}
	if o.BaseBackoff > 0 {
		base.BaseBackoff = o.BaseBackoff
	}
	if o.MaxBackoff > 0 {
		base.MaxBackoff = o.MaxBackoff
	}
	if o.Exponential != nil {
		base.Exponential = *o.Exponential
	}
	return base
}

// BypassConfig selects the strategies tried when an engine blocks us.
type BypassConfig struct {
	Strategies []string      `mapstructure:"strategies"`
	Cooldown   time.Duration `mapstructure:"cooldown"`
}

// EnrichConfig controls result enrichment.
type EnrichConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	TopK           int           `mapstructure:"top_k"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ExcerptMax     int           `mapstructure:"excerpt_max"`
	FaviconService string        `mapstructure:"favicon_service"`
	HTTPFallback   bool          `mapstructure:"http_fallback"`
}

// ProvidersConfig orders engines and overrides their retry policies.
type ProvidersConfig struct {
	Order []string                 `mapstructure:"order"`
	Retry map[string]RetryOverride `mapstructure:"retry"`
	// Custom declares additional engines or replaces built-in ones by name.
	Custom []provider.Config `mapstructure:"custom"`
}

// Load builds a Config from defaults, an optional file and the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("default config is invalid: %v", err))
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	def := crawler.DefaultRetryPolicy()

	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "120s")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.settle_wait", "500ms")
	v.SetDefault("browser.locales", []string{"en-US", "en-GB"})
	v.SetDefault("pool.size", 3)
	v.SetDefault("pool.launch_attempts", 3)
	v.SetDefault("pool.launch_backoff", "1s")
	v.SetDefault("pool.fresh_session_per_search", false)
	v.SetDefault("ratelimit.navigation_interval", "5s")
	v.SetDefault("ratelimit.domain_rps", 1.0)
	v.SetDefault("ratelimit.domain_burst", 1)
	v.SetDefault("cache.ttl", "15m")
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.allow_automation", true)
	v.SetDefault("search.attempt_timeout", "45s")
	v.SetDefault("retry.max_attempts", def.MaxAttempts)
	v.SetDefault("retry.base_backoff", def.BaseBackoff.String())
	v.SetDefault("retry.max_backoff", def.MaxBackoff.String())
	v.SetDefault("retry.exponential", def.Exponential)
	v.SetDefault("bypass.strategies", []string{"direct-url", "mobile-profile", "cooldown"})
	v.SetDefault("bypass.cooldown", "30s")
	v.SetDefault("enrich.enabled", true)
	v.SetDefault("enrich.top_k", 3)
	v.SetDefault("enrich.timeout", "8s")
	v.SetDefault("enrich.excerpt_max", 800)
	v.SetDefault("enrich.favicon_service", "https://www.google.com/s2/favicons?domain=%s&sz=64")
	v.SetDefault("enrich.http_fallback", true)
	v.SetDefault("providers.order", []string{"google", "bing", "duckduckgo", "wikipedia"})
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 {
		errs = append(errs, errors.New("server.port must be > 0"))
	}
	if c.Pool.Size <= 0 {
		errs = append(errs, errors.New("pool.size must be > 0"))
	}
	if c.Pool.LaunchAttempts <= 0 {
		errs = append(errs, errors.New("pool.launch_attempts must be > 0"))
	}
	if c.RateLimit.NavigationInterval < 0 {
		errs = append(errs, errors.New("ratelimit.navigation_interval must be >= 0"))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl must be > 0"))
	}
	if c.Search.MaxResults <= 0 {
		errs = append(errs, errors.New("search.max_results must be > 0"))
	}
	if c.Search.AttemptTimeout <= 0 {
		errs = append(errs, errors.New("search.attempt_timeout must be > 0"))
	}
	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("retry.max_attempts must be > 0"))
	}
	if c.Retry.BaseBackoff < 0 || c.Retry.MaxBackoff < c.Retry.BaseBackoff {
		errs = append(errs, errors.New("retry backoff must satisfy 0 <= base_backoff <= max_backoff"))
	}
	if c.Enrich.Enabled && (c.Enrich.TopK <= 0 || c.Enrich.Timeout <= 0) {
		errs = append(errs, errors.New("enrich.top_k and enrich.timeout must be > 0 when enrichment is enabled"))
	}
	if c.Enrich.FaviconService != "" && !strings.Contains(c.Enrich.FaviconService, "%s") {
		errs = append(errs, errors.New("enrich.favicon_service must contain %s"))
	}
	if _, unknown := fallback.StrategiesByName(c.Bypass.Strategies, c.Bypass.Cooldown); len(unknown) > 0 {
		errs = append(errs, fmt.Errorf("bypass.strategies: unknown %s", strings.Join(unknown, ", ")))
	}
	errs = append(errs, c.validateProviders()...)
	return errors.Join(errs...)
}

func (c Config) validateProviders() []error {
	var errs []error
	if len(c.Providers.Order) == 0 {
		errs = append(errs, errors.New("providers.order must name at least one provider"))
	}
	for _, custom := range c.Providers.Custom {
		if err := custom.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("providers.custom: %w", err))
		}
	}
	known := c.knownProviders()
	for _, name := range c.Providers.Order {
		if !slices.Contains(known, name) {
			errs = append(errs, fmt.Errorf("providers.order: unknown provider %q", name))
		}
	}
	for name, retry := range c.Providers.Retry {
		if !slices.Contains(known, name) {
			errs = append(errs, fmt.Errorf("providers.retry: unknown provider %q", name))
		}
		if retry.MaxAttempts < 0 {
			errs = append(errs, fmt.Errorf("providers.retry.%s.max_attempts must be >= 0", name))
		}
	}
	return errs
}

func (c Config) knownProviders() []string {
	var names []string
	for _, p := range provider.Defaults() {
		names = append(names, p.Name)
	}
	for _, p := range c.Providers.Custom {
		names = append(names, p.Name)
	}
	return names
}

// ProviderConfigs resolves Providers.Order into engine configs with retry
// overrides applied.
func (c Config) ProviderConfigs() ([]provider.Config, error) {
	catalog := make(map[string]provider.Config)
	for _, p := range provider.Defaults() {
		catalog[p.Name] = p
	}
	for _, p := range c.Providers.Custom {
		catalog[p.Name] = p
	}
	out := make([]provider.Config, 0, len(c.Providers.Order))
	for _, name := range c.Providers.Order {
		p, ok := catalog[name]
		if !ok {
			return nil, fmt.Errorf("unknown provider %q", name)
		}
		if override, ok := c.Providers.Retry[name]; ok {
			policy := override.Apply(c.Retry.Policy())
			p.Retry = &policy
		}
		out = append(out, p)
	}
	return out, nil
}
