package app_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/websearch-crawler/internal/app"
	"github.com/JakeFAU/websearch-crawler/internal/browser"
	"github.com/JakeFAU/websearch-crawler/internal/config"
)

type failingLauncher struct {
	calls atomic.Int32
}

func (l *failingLauncher) Launch(context.Context) (browser.Browser, error) {
	l.calls.Add(1)
	return nil, errors.New("chrome not installed")
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Pool.LaunchAttempts = 1
	cfg.Pool.LaunchBackoff = 0
	return cfg
}

func TestNewAppWiresServices(t *testing.T) {
	t.Parallel()

	launcher := &failingLauncher{}
	a, err := app.New(testConfig(t), zap.NewNop(), app.WithLauncher(launcher))
	require.NoError(t, err)
	require.NotNil(t, a.Service)
	require.NotNil(t, a.Pool)
	require.Equal(t, 3, a.Pool.Size())
	require.Zero(t, launcher.calls.Load(), "browser must launch lazily")

	require.NoError(t, a.Close(context.Background()))
	require.NoError(t, a.Close(context.Background()))
}

func TestNewAppRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Providers.Order = []string{"altavista"}
	_, err := app.New(cfg, nil, app.WithLauncher(&failingLauncher{}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown provider")
}

func TestSearchWithoutBrowserReportsDiagnostic(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Providers.Order = []string{"bing", "duckduckgo"}
	a, err := app.New(cfg, nil, app.WithLauncher(&failingLauncher{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	resp := a.Service.Search(context.Background(), "golang", 3)
	require.Empty(t, resp.Results)
	require.Contains(t, resp.Diagnostic, "all providers exhausted")
	require.Contains(t, resp.Diagnostic, "bing")
	require.Contains(t, resp.Diagnostic, "duckduckgo")
}

func TestAPIServerReadiness(t *testing.T) {
	t.Parallel()

	a, err := app.New(testConfig(t), nil, app.WithLauncher(&failingLauncher{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	handler := a.APIServer().Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
