package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/JakeFAU/websearch-crawler/internal/crawler"
	"github.com/JakeFAU/websearch-crawler/internal/stealth"
)

// ChromedpConfig controls how Chrome is launched.
type ChromedpConfig struct {
	Headless   bool
	ExecPath   string
	ProxyURL   string
	NoSandbox  bool
	UserData   string
	SettleWait time.Duration
}

// ChromedpLauncher starts Chrome through chromedp's exec allocator.
type ChromedpLauncher struct {
	cfg    ChromedpConfig
	logger *zap.Logger
	ids    crawler.IDGenerator
}

// NewChromedpLauncher builds a launcher. ids may be nil.
func NewChromedpLauncher(cfg ChromedpConfig, ids crawler.IDGenerator, logger *zap.Logger) *ChromedpLauncher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromedpLauncher{cfg: cfg, ids: ids, logger: logger.Named("chromedp")}
}

func (l *ChromedpLauncher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-features", "Translate,OptimizationHints,MediaRouter"),
	)
	if l.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if l.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	if l.cfg.ProxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(l.cfg.ProxyURL))
	}
	if l.cfg.UserData != "" {
		opts = append(opts, chromedp.UserDataDir(l.cfg.UserData))
	}
	return opts
}

// Launch starts a browser process and waits until it accepts commands.
func (l *ChromedpLauncher) Launch(ctx context.Context) (Browser, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), l.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(l.logger.Sugar().Debugf),
	)

	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()
	select {
	case err := <-started:
		if err != nil {
			browserCancel()
			allocCancel()
			return nil, fmt.Errorf("start chrome: %w", err)
		}
	case <-ctx.Done():
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", ctx.Err())
	}

	return &chromedpBrowser{
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
		settle:      l.cfg.SettleWait,
		ids:         l.ids,
		logger:      l.logger,
	}, nil
}

type chromedpBrowser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	settle      time.Duration
	ids         crawler.IDGenerator
	logger      *zap.Logger
	seq         atomic.Int64
	closeOnce   sync.Once
}

func (b *chromedpBrowser) Connected() bool {
	if b.ctx.Err() != nil {
		return false
	}
	c := chromedp.FromContext(b.ctx)
	return c != nil && c.Browser != nil
}

func (b *chromedpBrowser) Close() error {
	var err error
	b.closeOnce.Do(func() {
		err = chromedp.Cancel(b.ctx)
		b.allocCancel()
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (b *chromedpBrowser) NewSession(ctx context.Context, fp stealth.Fingerprint) (Session, error) {
	tabCtx, tabCancel := chromedp.NewContext(b.ctx, chromedp.WithNewBrowserContext())
	sess := &chromedpSession{
		id:     b.sessionID(),
		ctx:    tabCtx,
		cancel: tabCancel,
		fp:     fp,
		settle: b.settle,
		meta:   &documentStatus{},
	}
	chromedp.ListenTarget(tabCtx, sess.meta.captureEvent)
	if err := sess.run(ctx, sess.setupActions()...); err != nil {
		tabCancel()
		return nil, fmt.Errorf("prepare session: %w", err)
	}
	return sess, nil
}

func (b *chromedpBrowser) sessionID() string {
	n := b.seq.Add(1)
	if b.ids != nil {
		if id, err := b.ids.NewID(); err == nil {
			return id
		}
	}
	return fmt.Sprintf("session-%d", n)
}

type chromedpSession struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	fp     stealth.Fingerprint
	settle time.Duration
	meta   *documentStatus
	broken atomic.Bool
}

func (s *chromedpSession) setupActions() []chromedp.Action {
	fp := s.fp
	return []chromedp.Action{
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			ua := emulation.SetUserAgentOverride(fp.UserAgent).
				WithAcceptLanguage(fp.AcceptLanguage).
				WithPlatform(fp.Platform)
			if err := ua.Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
			if fp.Locale != "" {
				if err := emulation.SetLocaleOverride().WithLocale(fp.Locale).Do(ctx); err != nil {
					return fmt.Errorf("set locale: %w", err)
				}
			}
			if fp.Timezone != "" {
				if err := emulation.SetTimezoneOverride(fp.Timezone).Do(ctx); err != nil {
					return fmt.Errorf("set timezone: %w", err)
				}
			}
			metrics := emulation.SetDeviceMetricsOverride(fp.Viewport.Width, fp.Viewport.Height, fp.ScaleFactor, fp.Mobile)
			if err := metrics.Do(ctx); err != nil {
				return fmt.Errorf("set device metrics: %w", err)
			}
			if err := emulation.SetTouchEmulationEnabled(fp.Touch).Do(ctx); err != nil {
				return fmt.Errorf("set touch emulation: %w", err)
			}
			if _, err := page.AddScriptToEvaluateOnNewDocument(fp.Script()).Do(ctx); err != nil {
				return fmt.Errorf("install stealth script: %w", err)
			}
			return nil
		}),
	}
}

// run executes actions on the tab while honouring the caller's deadline and
// cancellation. Canceling a child of the tab context aborts the actions
// without closing the tab.
func (s *chromedpSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := forwardCancel(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if s.ctx.Err() != nil {
		s.broken.Store(true)
	}
	return err
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

func (s *chromedpSession) ID() string                       { return s.id }
func (s *chromedpSession) Fingerprint() stealth.Fingerprint { return s.fp }
func (s *chromedpSession) Status() int                      { return s.meta.get() }

func (s *chromedpSession) Healthy() bool {
	return !s.broken.Load() && s.ctx.Err() == nil
}

func (s *chromedpSession) Close() error {
	s.broken.Store(true)
	err := chromedp.Cancel(s.ctx)
	s.cancel()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *chromedpSession) Navigate(ctx context.Context, url string) error {
	s.meta.reset()
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (s *chromedpSession) WaitReady(ctx context.Context, selector string) error {
	actions := []chromedp.Action{chromedp.WaitReady(selector, chromedp.ByQuery)}
	if s.settle > 0 {
		actions = append(actions, chromedp.Sleep(s.settle))
	}
	if err := s.run(ctx, actions...); err != nil {
		return fmt.Errorf("wait for %s: %w", selector, err)
	}
	return nil
}

func (s *chromedpSession) Click(ctx context.Context, selector string) error {
	if err := s.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

func (s *chromedpSession) ClearInput(ctx context.Context, selector string) error {
	if err := s.run(ctx, chromedp.SetValue(selector, "", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("clear %s: %w", selector, err)
	}
	return nil
}

func (s *chromedpSession) TypeText(ctx context.Context, selector, text string) error {
	if err := s.run(ctx, chromedp.SendKeys(selector, text, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("type into %s: %w", selector, err)
	}
	return nil
}

func (s *chromedpSession) Submit(ctx context.Context, selector string) error {
	var action chromedp.Action
	if selector == "" {
		action = chromedp.KeyEvent(kb.Enter)
	} else {
		action = chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)
	}
	s.meta.reset()
	if err := s.run(ctx, action); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	return nil
}

func (s *chromedpSession) MoveMouse(ctx context.Context, x, y float64) error {
	if err := s.run(ctx, chromedp.MouseEvent(input.MouseMoved, x, y)); err != nil {
		return fmt.Errorf("move mouse: %w", err)
	}
	return nil
}

func (s *chromedpSession) ScrollTo(ctx context.Context, y int64) error {
	var ok bool
	script := fmt.Sprintf("window.scrollTo({top: %d, behavior: 'smooth'}); true", y)
	if err := s.run(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

func (s *chromedpSession) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return html, nil
}

func (s *chromedpSession) Location(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

// documentStatus records the status code of the most recent document
// response seen on a tab.
type documentStatus struct {
	mu     sync.RWMutex
	status int
}

func (d *documentStatus) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	d.mu.Lock()
	d.status = int(resp.Response.Status)
	d.mu.Unlock()
}

func (d *documentStatus) get() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

func (d *documentStatus) reset() {
	d.mu.Lock()
	d.status = 0
	d.mu.Unlock()
}
