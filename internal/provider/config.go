// Package provider drives public search engines through browser sessions.
// Every engine is described declaratively by a Config; a single Adapter
// implementation serves them all.
package provider

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/JakeFAU/websearch-crawler/internal/crawler"
)

// Selectors locate the elements an adapter interacts with or parses.
type Selectors struct {
	SearchBox string `mapstructure:"search_box"`
	// Submit is clicked to submit the query; empty means press Enter.
	Submit    string `mapstructure:"submit"`
	Container string `mapstructure:"container"`
	Title     string `mapstructure:"title"`
	Link      string `mapstructure:"link"`
	Snippet   string `mapstructure:"snippet"`
}

// BlockSignals describe how an engine's bot-detection page looks.
type BlockSignals struct {
	Keywords    []string `mapstructure:"keywords"`
	URLPatterns []string `mapstructure:"url_patterns"`
	Selectors   []string `mapstructure:"selectors"`
}

// Config declares one search engine.
type Config struct {
	Name string `mapstructure:"name"`
	// HomeURL is loaded in interactive mode before typing the query.
	HomeURL string `mapstructure:"home_url"`
	// SearchURLTemplate builds the direct result-page URL. "{query}" is
	// replaced with the escaped query and "{num}" with the result count.
	SearchURLTemplate string `mapstructure:"search_url_template"`
	// DirectParams are appended to the direct URL by the direct-url bypass.
	DirectParams map[string]string `mapstructure:"direct_params"`
	Selectors    Selectors         `mapstructure:"selectors"`
	Blocked      BlockSignals      `mapstructure:"blocked"`
	// NoResults are lowercase text markers of a recognised empty page.
	NoResults []string `mapstructure:"no_results"`
	// ExcludeHosts lists engine-internal hosts dropped from results.
	ExcludeHosts []string `mapstructure:"exclude_hosts"`
	// Sponsored are selectors identifying ad containers.
	Sponsored []string `mapstructure:"sponsored"`
	// RedirectParams name query parameters that carry the real target of
	// an engine redirect link.
	RedirectParams []string             `mapstructure:"redirect_params"`
	Retry          *crawler.RetryPolicy `mapstructure:"-"`
}

// Validate reports configuration mistakes that would make the engine unusable.
func (c Config) Validate() error {
	var errs []error
	if c.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if c.SearchURLTemplate == "" && c.HomeURL == "" {
		errs = append(errs, errors.New("home_url or search_url_template is required"))
	}
	if c.SearchURLTemplate != "" && !strings.Contains(c.SearchURLTemplate, "{query}") {
		errs = append(errs, errors.New("search_url_template must contain {query}"))
	}
	if c.Selectors.Container == "" || c.Selectors.Link == "" {
		errs = append(errs, errors.New("container and link selectors are required"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("provider %q: %w", c.Name, err)
	}
	return nil
}

// SearchURL renders the direct result-page URL for query.
func (c Config) SearchURL(query string, maxResults int, extra map[string]string) (string, error) {
	if c.SearchURLTemplate == "" {
		return "", fmt.Errorf("provider %q has no direct search url", c.Name)
	}
	if maxResults <= 0 {
		maxResults = 10
	}
	raw := strings.NewReplacer(
		"{query}", url.QueryEscape(query),
		"{num}", strconv.Itoa(maxResults),
	).Replace(c.SearchURLTemplate)
	if len(extra) == 0 {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse search url: %w", err)
	}
	q := u.Query()
	for k, v := range extra {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Interactive reports whether the engine can be driven through its UI.
func (c Config) Interactive() bool {
	return c.HomeURL != "" && c.Selectors.SearchBox != ""
}

// googleInternalHosts are the search UI, its verticals and redirectors.
// Google's own answer pages (support, developers, blog) stay as results.
var googleInternalHosts = []string{
	"google.com", "www.google.com", "maps.google.com", "accounts.google.com",
	"consent.google.com", "policies.google.com", "translate.google.com",
	"webcache.googleusercontent.com", "*.gstatic.com",
}

// Defaults returns the built-in engines in priority order.
func Defaults() []Config {
	return []Config{
		{
			Name:              "google",
			HomeURL:           "https://www.google.com/",
			SearchURLTemplate: "https://www.google.com/search?q={query}&num={num}&hl=en",
			DirectParams:      map[string]string{"gbv": "1", "pws": "0"},
			Selectors: Selectors{
				SearchBox: "textarea[name=q], input[name=q]",
				Container: "div.g, div.tF2Cxc",
				Title:     "h3",
				Link:      "a[href]",
				Snippet:   "div.VwiC3b, span.aCOpRe, div[data-sncf], div.BNeawe.s3v9rd",
			},
			Blocked: BlockSignals{
				Keywords: []string{
					"our systems have detected unusual traffic",
					"unusual traffic from your computer network",
					"before you continue to google",
				},
				URLPatterns: []string{"/sorry/", "consent.google."},
				Selectors:   []string{"form#captcha-form", "div#recaptcha", "iframe[src*='recaptcha']"},
			},
			NoResults:      []string{"did not match any documents", "no results found for"},
			ExcludeHosts:   slices.Clone(googleInternalHosts),
			Sponsored:      []string{"[data-text-ad]", "#tads", "#bottomads", ".uEierd"},
			RedirectParams: []string{"q", "url"},
		},
		{
			Name:              "bing",
			HomeURL:           "https://www.bing.com/",
			SearchURLTemplate: "https://www.bing.com/search?q={query}&count={num}",
			DirectParams:      map[string]string{"setlang": "en", "form": "QBLH"},
			Selectors: Selectors{
				SearchBox: "#sb_form_q",
				Container: "li.b_algo",
				Title:     "h2",
				Link:      "h2 a[href]",
				Snippet:   ".b_caption p, p.b_lineclamp2, p.b_lineclamp3, .b_algoSlug",
			},
			Blocked: BlockSignals{
				Keywords:    []string{"verify you are a human", "one last step", "solve the challenge below"},
				URLPatterns: []string{"/turing/", "/challenge"},
				Selectors:   []string{"#b_captcha", "iframe[src*='challenges.cloudflare.com']"},
			},
			NoResults:      []string{"there are no results for"},
			ExcludeHosts:   []string{"*.bing.com", "*.bing.net"},
			Sponsored:      []string{".b_ad", ".b_adSlug", "[data-partnertag]"},
			RedirectParams: []string{"u"},
		},
		{
			Name:              "duckduckgo",
			HomeURL:           "https://html.duckduckgo.com/html/",
			SearchURLTemplate: "https://html.duckduckgo.com/html/?q={query}",
			DirectParams:      map[string]string{"kl": "us-en"},
			Selectors: Selectors{
				SearchBox: "input[name=q]",
				Submit:    "input[type=submit], button[type=submit]",
				Container: "div.result",
				Title:     "a.result__a",
				Link:      "a.result__a",
				Snippet:   ".result__snippet",
			},
			Blocked: BlockSignals{
				Keywords:  []string{"unfortunately, bots use duckduckgo too", "please complete the following challenge"},
				Selectors: []string{"div.anomaly-modal__modal", "#challenge-form"},
			},
			NoResults:      []string{"no results."},
			ExcludeHosts:   []string{"*.duckduckgo.com"},
			Sponsored:      []string{".result--ad", ".badge--ad"},
			RedirectParams: []string{"uddg"},
		},
		{
			Name:              "wikipedia",
			HomeURL:           "https://en.wikipedia.org/wiki/Special:Search",
			SearchURLTemplate: "https://en.wikipedia.org/w/index.php?search={query}&title=Special:Search&fulltext=1&ns0=1&limit={num}",
			Selectors: Selectors{
				// No search box: typing a title into Special:Search jumps
				// straight to the article, so this engine is direct-only.
				Container: "li.mw-search-result",
				Title:     ".mw-search-result-heading a",
				Link:      ".mw-search-result-heading a[href]",
				Snippet:   ".searchresult",
			},
			Blocked: BlockSignals{
				Keywords: []string{"too many requests", "please set a user-agent header"},
			},
			NoResults: []string{"there were no results matching the query"},
		},
	}
}

// Lookup returns the default config with the given name.
func Lookup(name string) (Config, bool) {
	for _, cfg := range Defaults() {
		if cfg.Name == name {
			return cfg, true
		}
	}
	return Config{}, false
}
