package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/websearch-crawler/internal/app"
	"github.com/JakeFAU/websearch-crawler/internal/browser"
)

type noBrowserLauncher struct{}

func (noBrowserLauncher) Launch(context.Context) (browser.Browser, error) {
	return nil, errors.New("chrome not installed")
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
logging:
  level: error
pool:
  launch_attempts: 1
providers:
  order: [bing, duckduckgo]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, &out, app.WithLauncher(noBrowserLauncher{}))
	return out.String(), err
}

func TestSearchCommandPrintsDiagnostic(t *testing.T) {
	t.Parallel()

	out, err := runCLI(t, "--config", writeConfig(t), "search", "golang", "generics")
	require.NoError(t, err)
	require.Contains(t, out, `No web results found for "golang generics"`)
	require.Contains(t, out, "all providers exhausted")
	require.NotContains(t, out, "## Sources")
}

func TestSearchCommandJSON(t *testing.T) {
	t.Parallel()

	out, err := runCLI(t, "--config", writeConfig(t), "search", "--json", "--no-enrich", "-n", "3", "golang")
	require.NoError(t, err)

	var body jsonOutput
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	require.Equal(t, "golang", body.Query)
	require.NotNil(t, body.Results)
	require.Empty(t, body.Results)
	require.Contains(t, body.Diagnostic, "bing")
	require.NotEmpty(t, body.Timestamp)
}

func TestSearchCommandRequiresQuery(t *testing.T) {
	t.Parallel()

	_, err := runCLI(t, "--config", writeConfig(t), "search")
	require.Error(t, err)
}

func TestSearchCommandRejectsNegativeMax(t *testing.T) {
	t.Parallel()

	_, err := runCLI(t, "--config", writeConfig(t), "search", "--max", "-1", "golang")
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid --max")
}

func TestMissingConfigFileFails(t *testing.T) {
	t.Parallel()

	_, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "search", "golang")
	require.Error(t, err)
	require.Contains(t, err.Error(), "load config")
}

func TestResolveAppWithoutInit(t *testing.T) {
	t.Parallel()

	_, err := resolveApp(context.Background())
	require.Error(t, err)
}
