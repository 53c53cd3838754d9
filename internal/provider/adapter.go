package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/websearch-crawler/internal/browser"
	"github.com/JakeFAU/websearch-crawler/internal/crawler"
	"github.com/JakeFAU/websearch-crawler/internal/stealth"
)

// Mode selects how the adapter reaches the result page.
type Mode int

const (
	// ModeInteractive loads the home page and types the query.
	ModeInteractive Mode = iota
	// ModeDirect loads the result-page URL directly.
	ModeDirect
)

func (m Mode) String() string {
	if m == ModeDirect {
		return "direct"
	}
	return "interactive"
}

// SearchOptions tune one search attempt.
type SearchOptions struct {
	Mode Mode
	// ExtraParams are added to the direct URL.
	ExtraParams map[string]string
}

// Gate spaces out engine navigations.
type Gate interface {
	Wait(ctx context.Context) error
}

// Adapter runs searches against one engine.
type Adapter struct {
	cfg      Config
	parser   *Parser
	detector *BlockDetector
	gate     Gate
	sim      *stealth.Simulator
	interp   *stealth.Interpreter
	logger   *zap.Logger
}

// NewAdapter validates cfg and builds an Adapter. sim and interp may be nil.
func NewAdapter(cfg Config, gate Gate, sim *stealth.Simulator, interp *stealth.Interpreter, logger *zap.Logger) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if gate == nil {
		return nil, fmt.Errorf("provider %q: navigation gate is required", cfg.Name)
	}
	if sim == nil {
		sim = stealth.NewSimulator()
	}
	if interp == nil {
		interp = stealth.NewInterpreter(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		cfg:      cfg,
		parser:   NewParser(cfg),
		detector: NewBlockDetector(cfg.Blocked),
		gate:     gate,
		sim:      sim,
		interp:   interp,
		logger:   logger.Named("provider").With(zap.String("provider", cfg.Name)),
	}, nil
}

// Name returns the engine name.
func (a *Adapter) Name() string {
	return a.cfg.Name
}

// Config returns the engine configuration.
func (a *Adapter) Config() Config {
	return a.cfg
}

// DirectParams returns the extra direct-URL parameters used by the
// direct-url bypass.
func (a *Adapter) DirectParams() map[string]string {
	return a.cfg.DirectParams
}

// RetryPolicy returns the engine override, or def when none is set.
func (a *Adapter) RetryPolicy(def crawler.RetryPolicy) crawler.RetryPolicy {
	if a.cfg.Retry != nil {
		return *a.cfg.Retry
	}
	return def
}

// Search runs query on sess and parses the result page. It returns
// crawler.ErrBlocked for bot-detection pages and crawler.ErrParseMismatch when
// the markup no longer matches the selectors.
func (a *Adapter) Search(ctx context.Context, sess browser.Session, query crawler.Query, opts SearchOptions) ([]crawler.Result, error) {
	mode := opts.Mode
	if !query.AllowAutomation || !a.cfg.Interactive() {
		mode = ModeDirect
	}
	if err := a.gate.Wait(ctx); err != nil {
		return nil, err
	}

	var err error
	if mode == ModeInteractive {
		err = a.searchInteractive(ctx, sess, query)
	} else {
		err = a.searchDirect(ctx, sess, query, opts.ExtraParams)
	}
	if err != nil {
		return nil, err
	}

	doc, location, err := a.inspect(ctx, sess)
	if err != nil {
		return nil, err
	}
	results, err := a.parser.Parse(doc, location, query.MaxResults)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("parsed results",
		zap.String("mode", mode.String()),
		zap.String("session_id", sess.ID()),
		zap.Int("count", len(results)),
	)
	return results, nil
}

func (a *Adapter) searchDirect(ctx context.Context, sess browser.Session, query crawler.Query, extra map[string]string) error {
	target, err := a.cfg.SearchURL(query.Text, query.MaxResults, extra)
	if err != nil {
		return err
	}
	if err := sess.Navigate(ctx, target); err != nil {
		return err
	}
	return sess.WaitReady(ctx, "body")
}

func (a *Adapter) searchInteractive(ctx context.Context, sess browser.Session, query crawler.Query) error {
	sel := a.cfg.Selectors
	if err := sess.Navigate(ctx, a.cfg.HomeURL); err != nil {
		return err
	}
	if err := sess.WaitReady(ctx, "body"); err != nil {
		return err
	}
	if _, _, err := a.inspect(ctx, sess); err != nil {
		return err
	}
	if err := a.interp.Run(ctx, sess, a.sim.Browse(sess.Fingerprint().Viewport)); err != nil {
		return fmt.Errorf("warm-up: %w", err)
	}
	if err := sess.WaitReady(ctx, sel.SearchBox); err != nil {
		return err
	}
	if err := sess.Click(ctx, sel.SearchBox); err != nil {
		return err
	}
	if err := sess.ClearInput(ctx, sel.SearchBox); err != nil {
		return err
	}
	if err := a.interp.Run(ctx, sess, a.sim.Typing(sel.SearchBox, query.Text)); err != nil {
		return fmt.Errorf("type query: %w", err)
	}
	// Submitting loads the results page, a second engine navigation.
	if err := a.gate.Wait(ctx); err != nil {
		return err
	}
	if err := sess.Submit(ctx, sel.Submit); err != nil {
		return err
	}
	return sess.WaitReady(ctx, "body")
}

// inspect snapshots the current page and fails with crawler.ErrBlocked when it
// is a bot-detection page.
func (a *Adapter) inspect(ctx context.Context, sess browser.Session) (*goquery.Document, string, error) {
	html, err := sess.HTML(ctx)
	if err != nil {
		return nil, "", err
	}
	location, err := sess.Location(ctx)
	if err != nil {
		return nil, "", err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, "", fmt.Errorf("%s: parse html: %w", a.cfg.Name, err)
	}
	if blocked, reason := a.detector.Inspect(Page{
		Status:     sess.Status(),
		Location:   location,
		Doc:        doc,
		HasResults: a.parser.ContainerCount(doc) > 0,
	}); blocked {
		return nil, "", fmt.Errorf("%s: %w (%s)", a.cfg.Name, crawler.ErrBlocked, reason)
	}
	return doc, location, nil
}
