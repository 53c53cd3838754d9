// Package browser manages headless browser processes and the pool of
// isolated sessions that provider adapters and the enricher drive.
package browser

import (
	"context"

	"github.com/JakeFAU/websearch-crawler/internal/stealth"
)

// Session is one isolated browser context with a single tab. A session is
// owned by exactly one pool slot and used by one caller at a time.
type Session interface {
	stealth.Driver

	ID() string
	Fingerprint() stealth.Fingerprint
	Navigate(ctx context.Context, url string) error
	WaitReady(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	ClearInput(ctx context.Context, selector string) error
	// Submit clicks selector, or presses Enter in the focused element when
	// selector is empty.
	Submit(ctx context.Context, selector string) error
	HTML(ctx context.Context) (string, error)
	Location(ctx context.Context) (string, error)
	// Status returns the HTTP status of the last document response, or 0.
	Status() int
	Healthy() bool
	Close() error
}

// Browser is a running browser process.
type Browser interface {
	NewSession(ctx context.Context, fp stealth.Fingerprint) (Session, error)
	Connected() bool
	Close() error
}

// Launcher starts browser processes.
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}
