package provider

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValidAndOrdered(t *testing.T) {
	t.Parallel()

	defaults := Defaults()
	names := make([]string, 0, len(defaults))
	for _, cfg := range defaults {
		require.NoError(t, cfg.Validate())
		names = append(names, cfg.Name)
	}
	require.Equal(t, []string{"google", "bing", "duckduckgo", "wikipedia"}, names)
}

func TestValidateReportsMissingFields(t *testing.T) {
	t.Parallel()

	err := Config{Name: "broken", SearchURLTemplate: "https://x.test/search"}.Validate()
	require.ErrorContains(t, err, "{query}")
	require.ErrorContains(t, err, "selectors")
}

func TestSearchURL(t *testing.T) {
	t.Parallel()

	cfg := mustConfig(t, "google")
	raw, err := cfg.SearchURL("formmy pricing & plans", 5, nil)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "formmy pricing & plans", u.Query().Get("q"))
	require.Equal(t, "5", u.Query().Get("num"))

	raw, err = cfg.SearchURL("go", 5, cfg.DirectParams)
	require.NoError(t, err)
	u, err = url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "1", u.Query().Get("gbv"))
	require.Equal(t, "go", u.Query().Get("q"))

	_, err = Config{Name: "home-only"}.SearchURL("x", 1, nil)
	require.Error(t, err)
}

func TestInteractive(t *testing.T) {
	t.Parallel()

	require.True(t, mustConfig(t, "google").Interactive())
	require.False(t, mustConfig(t, "wikipedia").Interactive())
}
