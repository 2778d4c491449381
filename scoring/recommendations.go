package scoring

import "github.com/siteaudit/backend/model"

const (
	recHTTPS       = "Enable HTTPS with a valid TLS certificate and redirect all HTTP traffic to it."
	recCDN         = "Serve static assets through a CDN to cut latency for visitors far from your server."
	recCaching     = "Set Cache-Control, ETag and Expires headers so browsers can reuse static files."
	recImages      = "Convert images to WebP or AVIF, add srcset variants and lazy-load images below the fold."
	recWordPress   = "Harden WordPress: keep core, themes and plugins updated and limit admin access."
	recPlugins     = "Audit your plugins and remove the ones you do not need; each one adds requests and attack surface."
	recPerformance = "Reduce render-blocking scripts and styles to bring page load under three seconds."
	recCritical    = "Fix the critical security findings first; they expose data or credentials right now."
	recOutdatedWP  = "Update WordPress core to the latest release to receive security patches."
)

var fillers = []string{
	"Minify and combine CSS and JavaScript files.",
	"Optimize your database and clean up revisions, transients and spam.",
	"Move to faster hosting with HTTP/2 and server-side caching.",
}

type rule struct {
	applies func(Input) bool
	text    string
}

// rules are evaluated in priority order.
var rules = []rule{
	{func(in Input) bool { return !in.Signals.HasSSL }, recHTTPS},
	{func(in Input) bool { return !in.Signals.HasCDN }, recCDN},
	{func(in Input) bool { return in.Signals.Caching == model.CachingDisabled }, recCaching},
	{func(in Input) bool { return in.Signals.ImageOptimization == model.ImagesPoor }, recImages},
	{func(in Input) bool { return in.WordPress.IsWordPress }, recWordPress},
	{func(in Input) bool { return in.WordPress.PluginCount > 20 }, recPlugins},
	{func(in Input) bool { return in.PerformanceScore < 80 }, recPerformance},
	{func(in Input) bool { return model.CountBySeverity(in.Findings)[model.SeverityCritical] > 0 }, recCritical},
	{func(in Input) bool {
		return in.WordPress.IsVersionOutdated != nil && *in.WordPress.IsVersionOutdated
	}, recOutdatedWP},
}

// Recommendations lists one fixed string per unmet practice, pads with generic advice to
// three entries and truncates to the cap.
func Recommendations(in Input, max int) []string {
	max = recommendationCap(max)

	out := make([]string, 0, max)
	seen := make(map[string]struct{})
	add := func(s string) {
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, r := range rules {
		if r.applies(in) {
			add(r.text)
		}
	}
	for _, f := range fillers {
		if len(out) >= minRecommendations {
			break
		}
		add(f)
	}
	if len(out) > max {
		out = out[:max]
	}
	return out
}

func recommendationCap(max int) int {
	switch {
	case max <= 0:
		return DefaultMaxRecommendations
	case max < minRecommendationCap:
		return minRecommendationCap
	case max > DefaultMaxRecommendations:
		return DefaultMaxRecommendations
	}
	return max
}
