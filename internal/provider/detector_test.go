package provider

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlockDetector(t *testing.T) {
	t.Parallel()

	d := NewBlockDetector(mustConfig(t, "google").Blocked)

	cases := []struct {
		name    string
		page    Page
		blocked bool
	}{
		{"rate limited", Page{Status: http.StatusTooManyRequests}, true},
		{"sorry url", Page{Status: 200, Location: "https://www.google.com/sorry/index?continue=x"}, true},
		{"captcha form", Page{Status: 200, Doc: mustDoc(t, `<form id="captcha-form"></form>`)}, true},
		{"keyword", Page{Status: 200, Doc: mustDoc(t, `<p>Our systems have detected unusual traffic from your computer network.</p>`)}, true},
		{"keyword inside results", Page{Status: 200, HasResults: true, Doc: mustDoc(t, `<p>Our systems have detected unusual traffic</p>`)}, false},
		{"normal page", Page{Status: 200, Location: "https://www.google.com/search?q=x", Doc: mustDoc(t, `<div class="g"></div>`)}, false},
	}
	for _, tc := range cases {
		blocked, reason := d.Inspect(tc.page)
		require.Equal(t, tc.blocked, blocked, tc.name)
		if tc.blocked {
			require.NotEmpty(t, reason, tc.name)
		}
	}

	var nilDetector *BlockDetector
	blocked, _ := nilDetector.Inspect(Page{Status: http.StatusTooManyRequests})
	require.False(t, blocked)
}
