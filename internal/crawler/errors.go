package crawler

import (
	"context"
	"errors"
)

var (
	// ErrBlocked indicates the engine served a bot-detection page.
	ErrBlocked = errors.New("blocked by bot detection")
	// ErrBrowserUnavailable indicates the session pool could not produce a session.
	ErrBrowserUnavailable = errors.New("browser unavailable")
	// ErrParseMismatch indicates the page no longer matches the configured selectors.
	ErrParseMismatch = errors.New("result markup did not match selectors")
	// ErrNoResults indicates a provider returned an empty result list.
	ErrNoResults = errors.New("no results")
	// ErrPoolClosed indicates the session pool has been shut down.
	ErrPoolClosed = errors.New("session pool closed")
)

// DiagNoResults heads the diagnostic of a response whose providers all
// answered with an empty result page. Such responses may be cached.
const DiagNoResults = "no results"

// ErrorKind groups errors by how the orchestrator reacts to them.
type ErrorKind string

// Error kinds.
const (
	KindNone               ErrorKind = "none"
	KindTransient          ErrorKind = "transient"
	KindBlocked            ErrorKind = "blocked"
	KindBrowserUnavailable ErrorKind = "browser_unavailable"
	KindParseMismatch      ErrorKind = "parse_mismatch"
	KindCanceled           ErrorKind = "canceled"
)

// Classify maps an error onto the crawler's error taxonomy. Timeouts are
// transient; only caller cancellation is reported as KindCanceled.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrBlocked):
		return KindBlocked
	case errors.Is(err, ErrBrowserUnavailable), errors.Is(err, ErrPoolClosed):
		return KindBrowserUnavailable
	case errors.Is(err, ErrParseMismatch):
		return KindParseMismatch
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindTransient
	}
}

// Retryable reports whether the kind is eligible for same-provider retry.
func (k ErrorKind) Retryable() bool {
	return k == KindTransient || k == KindParseMismatch
}
