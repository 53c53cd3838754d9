package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/JakeFAU/websearch-crawler/internal/stealth"
)

type fakeSession struct {
	id     string
	fp     stealth.Fingerprint
	closed atomic.Bool
	sick   atomic.Bool
	owner  *fakeBrowser
}

func (s *fakeSession) ID() string                                        { return s.id }
func (s *fakeSession) Fingerprint() stealth.Fingerprint                  { return s.fp }
func (s *fakeSession) Navigate(context.Context, string) error            { return nil }
func (s *fakeSession) WaitReady(context.Context, string) error           { return nil }
func (s *fakeSession) Click(context.Context, string) error               { return nil }
func (s *fakeSession) ClearInput(context.Context, string) error          { return nil }
func (s *fakeSession) Submit(context.Context, string) error              { return nil }
func (s *fakeSession) MoveMouse(context.Context, float64, float64) error { return nil }
func (s *fakeSession) ScrollTo(context.Context, int64) error             { return nil }
func (s *fakeSession) TypeText(context.Context, string, string) error    { return nil }
func (s *fakeSession) HTML(context.Context) (string, error)              { return "<html></html>", nil }
func (s *fakeSession) Location(context.Context) (string, error)          { return "about:blank", nil }
func (s *fakeSession) Status() int                                       { return 200 }

func (s *fakeSession) Healthy() bool {
	return !s.closed.Load() && !s.sick.Load() && s.owner.Connected()
}

func (s *fakeSession) Close() error {
	s.closed.Store(true)
	return nil
}

type fakeBrowser struct {
	mu           sync.Mutex
	disconnected bool
	closed       bool
	created      int
	failSessions bool
}

func (b *fakeBrowser) NewSession(_ context.Context, fp stealth.Fingerprint) (Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failSessions {
		return nil, errors.New("target crashed")
	}
	b.created++
	return &fakeSession{id: fmt.Sprintf("s%d", b.created), fp: fp, owner: b}, nil
}

func (b *fakeBrowser) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.disconnected && !b.closed
}

func (b *fakeBrowser) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

func (b *fakeBrowser) disconnect() {
	b.mu.Lock()
	b.disconnected = true
	b.mu.Unlock()
}

func (b *fakeBrowser) sessionsCreated() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.created
}

type fakeLauncher struct {
	mu       sync.Mutex
	failures int
	launches int
	browsers []*fakeBrowser
}

func (l *fakeLauncher) Launch(context.Context) (Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches++
	if l.failures > 0 {
		l.failures--
		return nil, errors.New("chrome failed to start")
	}
	b := &fakeBrowser{}
	l.browsers = append(l.browsers, b)
	return b, nil
}

func (l *fakeLauncher) launchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

func (l *fakeLauncher) latest() *fakeBrowser {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.browsers[len(l.browsers)-1]
}
