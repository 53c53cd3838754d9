package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/websearch-crawler/internal/crawler"
	"github.com/JakeFAU/websearch-crawler/internal/metrics"
	"github.com/JakeFAU/websearch-crawler/internal/stealth"
)

// Config controls pool sizing and browser relaunch behaviour.
type Config struct {
	Size                  int
	LaunchAttempts        int
	LaunchBackoff         time.Duration
	FreshSessionPerSearch bool
}

// AcquireOptions describe the session a caller needs.
type AcquireOptions struct {
	DeviceClass stealth.DeviceClass
	// Fresh forces a new browser context with a new fingerprint.
	Fresh bool
}

type slot struct {
	id      int
	session Session
}

// Pool hands out browser sessions. Its buffered slot channel is the admission
// queue: at most Size sessions are leased at once and waiters are served in
// arrival order.
type Pool struct {
	cfg          Config
	launcher     Launcher
	fingerprints *stealth.Generator
	logger       *zap.Logger
	sleep        func(ctx context.Context, d time.Duration) error

	slots chan *slot
	done  chan struct{}

	launchMu sync.Mutex
	browser  Browser

	mu     sync.Mutex
	leased map[Session]*slot
	closed bool

	closeOnce sync.Once
	closeErr  error
}

// NewPool constructs a pool. The browser is launched lazily on first Acquire.
func NewPool(cfg Config, launcher Launcher, fingerprints *stealth.Generator, logger *zap.Logger) (*Pool, error) {
	if launcher == nil {
		return nil, errors.New("browser launcher is required")
	}
	if cfg.Size <= 0 {
		cfg.Size = 3
	}
	if cfg.LaunchAttempts <= 0 {
		cfg.LaunchAttempts = 3
	}
	if cfg.LaunchBackoff <= 0 {
		cfg.LaunchBackoff = time.Second
	}
	if fingerprints == nil {
		fingerprints = stealth.NewGenerator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		cfg:          cfg,
		launcher:     launcher,
		fingerprints: fingerprints,
		logger:       logger.Named("pool"),
		sleep:        sleepContext,
		slots:        make(chan *slot, cfg.Size),
		done:         make(chan struct{}),
		leased:       make(map[Session]*slot),
	}
	for i := range cfg.Size {
		p.slots <- &slot{id: i}
	}
	return p, nil
}

// Acquire blocks until a slot is free, ensures the browser is running and
// returns a session for the caller's exclusive use.
func (p *Pool) Acquire(ctx context.Context, opts AcquireOptions) (Session, error) {
	if opts.DeviceClass == "" {
		opts.DeviceClass = stealth.Desktop
	}
	var s *slot
	select {
	case <-p.done:
		return nil, crawler.ErrPoolClosed
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for session slot: %w", ctx.Err())
	case s = <-p.slots:
	}
	if p.isClosed() {
		p.returnSlot(s)
		return nil, crawler.ErrPoolClosed
	}

	browser, err := p.ensureBrowser(ctx)
	if err != nil {
		p.returnSlot(s)
		return nil, err
	}

	if s.session != nil && p.mustReplace(s.session, opts) {
		p.closeSession(s.session)
		s.session = nil
	}
	if s.session == nil {
		fp := p.fingerprints.Generate(opts.DeviceClass)
		sess, err := browser.NewSession(ctx, fp)
		if err != nil {
			p.returnSlot(s)
			if ctx.Err() != nil {
				return nil, fmt.Errorf("create session: %w", ctx.Err())
			}
			return nil, fmt.Errorf("create session: %w: %w", crawler.ErrBrowserUnavailable, err)
		}
		p.logger.Debug("session created",
			zap.Int("slot", s.id),
			zap.String("session_id", sess.ID()),
			zap.String("device_class", string(fp.Class)),
			zap.String("locale", fp.Locale),
		)
		s.session = sess
	}

	p.mu.Lock()
	p.leased[s.session] = s
	inUse := len(p.leased)
	p.mu.Unlock()
	metrics.SetPoolSessionsInUse(inUse)
	return s.session, nil
}

// Release returns a session to the pool. Discarded or unhealthy sessions are
// closed and their slot is emptied; sessions released after Close are closed.
func (p *Pool) Release(sess Session, discard bool) {
	if sess == nil {
		return
	}
	p.mu.Lock()
	s, ok := p.leased[sess]
	if ok {
		delete(p.leased, sess)
	}
	inUse := len(p.leased)
	closed := p.closed
	p.mu.Unlock()
	metrics.SetPoolSessionsInUse(inUse)

	if !ok {
		p.logger.Warn("release of unknown session", zap.String("session_id", sess.ID()))
		p.closeSession(sess)
		return
	}
	if discard || closed || !sess.Healthy() {
		p.closeSession(sess)
		s.session = nil
	}
	p.returnSlot(s)
}

// Ready launches the browser if needed and reports whether it is reachable.
func (p *Pool) Ready(ctx context.Context) error {
	if p.isClosed() {
		return crawler.ErrPoolClosed
	}
	_, err := p.ensureBrowser(ctx)
	return err
}

// Close shuts down idle sessions and the browser. It is safe to call more
// than once.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.done)

		var errs []error
	drain:
		for {
			select {
			case s := <-p.slots:
				if s.session != nil {
					if err := s.session.Close(); err != nil {
						errs = append(errs, err)
					}
					s.session = nil
				}
			default:
				break drain
			}
		}

		p.launchMu.Lock()
		if p.browser != nil {
			if err := p.browser.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close browser: %w", err))
			}
			p.browser = nil
		}
		p.launchMu.Unlock()
		p.closeErr = errors.Join(errs...)
		p.logger.Info("session pool closed")
	})
	return p.closeErr
}

// InUse reports how many sessions are currently leased.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.leased)
}

// Size reports the configured number of slots.
func (p *Pool) Size() int {
	return p.cfg.Size
}

func (p *Pool) mustReplace(sess Session, opts AcquireOptions) bool {
	switch {
	case opts.Fresh, p.cfg.FreshSessionPerSearch:
		return true
	case !sess.Healthy():
		return true
	case sess.Fingerprint().Class != opts.DeviceClass:
		return true
	default:
		return false
	}
}

func (p *Pool) ensureBrowser(ctx context.Context) (Browser, error) {
	p.launchMu.Lock()
	defer p.launchMu.Unlock()
	if p.browser != nil && p.browser.Connected() {
		return p.browser, nil
	}
	if p.browser != nil {
		p.logger.Warn("browser disconnected; relaunching")
		_ = p.browser.Close()
		p.browser = nil
	}

	var lastErr error
	for attempt := 1; attempt <= p.cfg.LaunchAttempts; attempt++ {
		b, err := p.launcher.Launch(ctx)
		if err == nil {
			p.browser = b
			p.logger.Info("browser launched", zap.Int("attempt", attempt))
			return b, nil
		}
		lastErr = err
		p.logger.Warn("browser launch failed", zap.Int("attempt", attempt), zap.Error(err))
		if attempt == p.cfg.LaunchAttempts {
			break
		}
		if err := p.sleep(ctx, p.cfg.LaunchBackoff*time.Duration(attempt)); err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
	}
	return nil, fmt.Errorf("launch browser after %d attempts: %w: %w", p.cfg.LaunchAttempts, crawler.ErrBrowserUnavailable, lastErr)
}

func (p *Pool) returnSlot(s *slot) {
	select {
	case p.slots <- s:
	default:
		// Every slot originates from the channel, so it always has room.
	}
}

func (p *Pool) closeSession(sess Session) {
	if err := sess.Close(); err != nil {
		p.logger.Debug("close session", zap.String("session_id", sess.ID()), zap.Error(err))
	}
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
