package fallback

import (
	"time"

	"github.com/JakeFAU/websearch-crawler/internal/provider"
	"github.com/JakeFAU/websearch-crawler/internal/stealth"
)

// Strategy is one way of getting past a bot-detection page. Strategies are
// plain data interpreted by the orchestrator.
type Strategy struct {
	Name string
	Mode provider.Mode
	// UseDirectParams adds the provider's extra direct-URL parameters.
	UseDirectParams bool
	DeviceClass     stealth.DeviceClass
	// FreshSession discards any pooled context and starts a new one.
	FreshSession bool
	// Cooldown is waited before the attempt.
	Cooldown time.Duration
}

// DefaultStrategies returns the standard bypass ladder: the direct result URL
// with extra parameters, a fresh mobile profile, and a long cooldown followed
// by a fresh desktop session.
func DefaultStrategies(cooldown time.Duration) []Strategy {
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return []Strategy{
		{
			Name:            "direct-url",
			Mode:            provider.ModeDirect,
			UseDirectParams: true,
			DeviceClass:     stealth.Desktop,
		},
		{
			Name:         "mobile-profile",
			Mode:         provider.ModeDirect,
			DeviceClass:  stealth.Mobile,
			FreshSession: true,
		},
		{
			Name:         "cooldown",
			Mode:         provider.ModeInteractive,
			DeviceClass:  stealth.Desktop,
			FreshSession: true,
			Cooldown:     cooldown,
		},
	}
}

// StrategiesByName picks strategies from DefaultStrategies in the given
// order. Unknown names are reported back.
func StrategiesByName(names []string, cooldown time.Duration) ([]Strategy, []string) {
	all := DefaultStrategies(cooldown)
	var (
		picked  []Strategy
		unknown []string
	)
	for _, name := range names {
		found := false
		for _, st := range all {
			if st.Name == name {
				picked = append(picked, st)
				found = true
				break
			}
		}
		if !found {
			unknown = append(unknown, name)
		}
	}
	return picked, unknown
}
