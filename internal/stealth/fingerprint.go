// Package stealth builds browser fingerprints and human-like interaction
// scripts that make automated sessions look like ordinary visitors.
package stealth

import (
	"math/rand/v2"
	"sync"
)

// DeviceClass selects the family of device a fingerprint imitates.
type DeviceClass string

// Supported device classes.
const (
	Desktop DeviceClass = "desktop"
	Mobile  DeviceClass = "mobile"
)

// Viewport is a CSS-pixel screen size.
type Viewport struct {
	Width  int64
	Height int64
}

// Fingerprint is a consistent set of browser characteristics applied to one
// session. Desktop user agents are never combined with mobile viewports.
type Fingerprint struct {
	Class               DeviceClass
	UserAgent           string
	Platform            string
	AcceptLanguage      string
	Locale              string
	Languages           []string
	Timezone            string
	Viewport            Viewport
	ScaleFactor         float64
	Mobile              bool
	Touch               bool
	HardwareConcurrency int
	Vendor              string
	Plugins             []string
}

type deviceTemplate struct {
	class       DeviceClass
	userAgent   string
	platform    string
	viewports   []Viewport
	scale       float64
	touch       bool
	concurrency []int
	vendor      string
}

type localeTemplate struct {
	locale         string
	acceptLanguage string
	languages      []string
	timezones      []string
}

var desktopPlugins = []string{
	"PDF Viewer",
	"Chrome PDF Viewer",
	"Chromium PDF Viewer",
	"Microsoft Edge PDF Viewer",
	"WebKit built-in PDF",
}

var deviceTemplates = []deviceTemplate{
	{
		class:       Desktop,
		userAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		platform:    "Win32",
		viewports:   []Viewport{{1920, 1080}, {1536, 864}, {1366, 768}},
		scale:       1,
		concurrency: []int{4, 8, 12},
		vendor:      "Google Inc.",
	},
	{
		class:       Desktop,
		userAgent:   "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		platform:    "MacIntel",
		viewports:   []Viewport{{1440, 900}, {1680, 1050}, {1512, 982}},
		scale:       2,
		concurrency: []int{8, 10},
		vendor:      "Google Inc.",
	},
	{
		class:       Desktop,
		userAgent:   "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
		platform:    "Linux x86_64",
		viewports:   []Viewport{{1920, 1080}, {1600, 900}},
		scale:       1,
		concurrency: []int{4, 8, 16},
		vendor:      "Google Inc.",
	},
	{
		class:       Mobile,
		userAgent:   "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Mobile Safari/537.36",
		platform:    "Linux armv8l",
		viewports:   []Viewport{{412, 915}, {412, 892}},
		scale:       2.625,
		touch:       true,
		concurrency: []int{8},
		vendor:      "Google Inc.",
	},
	{
		class:       Mobile,
		userAgent:   "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
		platform:    "iPhone",
		viewports:   []Viewport{{390, 844}, {393, 852}, {430, 932}},
		scale:       3,
		touch:       true,
		concurrency: []int{4, 6},
		vendor:      "Apple Computer, Inc.",
	},
}

var localeTemplates = []localeTemplate{
	{"en-US", "en-US,en;q=0.9", []string{"en-US", "en"}, []string{"America/New_York", "America/Chicago", "America/Los_Angeles"}},
	{"en-GB", "en-GB,en;q=0.9", []string{"en-GB", "en"}, []string{"Europe/London"}},
	{"es-MX", "es-MX,es;q=0.9,en;q=0.8", []string{"es-MX", "es", "en"}, []string{"America/Mexico_City"}},
	{"de-DE", "de-DE,de;q=0.9,en;q=0.8", []string{"de-DE", "de", "en"}, []string{"Europe/Berlin"}},
}

// Generator produces randomised fingerprints. It is safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	rng     *rand.Rand
	locales []localeTemplate
}

// NewGenerator returns a Generator seeded from the runtime's random source.
func NewGenerator() *Generator {
	return NewSeededGenerator(rand.Uint64(), rand.Uint64())
}

// NewSeededGenerator returns a deterministic Generator, mostly for tests.
func NewSeededGenerator(seed1, seed2 uint64) *Generator {
	return &Generator{
		rng:     rand.New(rand.NewPCG(seed1, seed2)),
		locales: localeTemplates,
	}
}

// WithLocales restricts generated fingerprints to the given locales
// (e.g. "en-US"). Unknown locales are ignored; an empty result keeps all.
func (g *Generator) WithLocales(locales ...string) *Generator {
	var picked []localeTemplate
	for _, want := range locales {
		for _, tpl := range localeTemplates {
			if tpl.locale == want {
				picked = append(picked, tpl)
			}
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(picked) > 0 {
		g.locales = picked
	}
	return g
}

// Generate returns a new fingerprint of the requested class. An unknown class
// is treated as Desktop.
func (g *Generator) Generate(class DeviceClass) Fingerprint {
	if class != Mobile {
		class = Desktop
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	var candidates []deviceTemplate
	for _, tpl := range deviceTemplates {
		if tpl.class == class {
			candidates = append(candidates, tpl)
		}
	}
	device := candidates[g.rng.IntN(len(candidates))]
	locale := g.locales[g.rng.IntN(len(g.locales))]

	fp := Fingerprint{
		Class:               class,
		UserAgent:           device.userAgent,
		Platform:            device.platform,
		AcceptLanguage:      locale.acceptLanguage,
		Locale:              locale.locale,
		Languages:           append([]string(nil), locale.languages...),
		Timezone:            locale.timezones[g.rng.IntN(len(locale.timezones))],
		Viewport:            device.viewports[g.rng.IntN(len(device.viewports))],
		ScaleFactor:         device.scale,
		Mobile:              class == Mobile,
		Touch:               device.touch,
		HardwareConcurrency: device.concurrency[g.rng.IntN(len(device.concurrency))],
		Vendor:              device.vendor,
	}
	if class == Desktop {
		fp.Plugins = append([]string(nil), desktopPlugins...)
	}
	return fp
}

// DesktopUserAgent returns a desktop user agent suitable for plain HTTP
// fetches that should match the browser sessions.
func DesktopUserAgent() string {
	return deviceTemplates[0].userAgent
}
