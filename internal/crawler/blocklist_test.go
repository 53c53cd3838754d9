package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHostBlocklist(t *testing.T) {
	t.Parallel()

	t.Run("exact match", func(t *testing.T) {
		t.Parallel()
		bl := NewHostBlocklist([]string{"example.org"})
		require.NotNil(t, bl)
		require.True(t, bl.Matches("example.org"))
		require.True(t, bl.Matches("EXAMPLE.org."))
		require.False(t, bl.Matches("sub.example.org"))
	})

	t.Run("wildcard suffix", func(t *testing.T) {
		t.Parallel()
		bl := NewHostBlocklist([]string{"*.google.com", ".bing.com"})
		require.NotNil(t, bl)
		cases := map[string]bool{
			"www.google.com":  true,
			"maps.google.com": true,
			"google.com":      true,
			"www.bing.com":    true,
			"notgoogle.com":   false,
			"example.com":     false,
		}
		for host, want := range cases {
			require.Equal(t, want, bl.Matches(host), host)
		}
	})

	t.Run("urls", func(t *testing.T) {
		t.Parallel()
		bl := NewHostBlocklist([]string{"*.duckduckgo.com"})
		require.True(t, bl.MatchesURL("https://html.duckduckgo.com/html/?q=x"))
		require.False(t, bl.MatchesURL("https://go.dev/doc"))
	})

	t.Run("nil blocklist", func(t *testing.T) {
		t.Parallel()
		bl := NewHostBlocklist([]string{" ", ""})
		require.Nil(t, bl)
		require.False(t, bl.Matches("example.com"))
	})
}
