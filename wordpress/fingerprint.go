package wordpress

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/siteaudit/backend/model"
)

var (
	htmlMarkers = []string{"/wp-content/", "/wp-includes/", "wp-json", "wordpress", "wp_enqueue_script", "wp-admin", "/wp-login.php"}

	directoryListingMarkers = []string{"Index of /", "Directory Listing", "<title>Index of", "Parent Directory", "[DIR]"}
	debugMarkers            = []string{"WP_DEBUG", "wp-content/debug.log", "Notice:", "Warning:", "Fatal error:"}

	emojiVersionRe = regexp.MustCompile(`wp-emoji-release\.min\.js\?ver=([\d.]+)`)
	generatorRe    = regexp.MustCompile(`(?i)^wordpress\s+([\d.]+)`)
	themeRe        = regexp.MustCompile(`/wp-content/themes/([^/"'?#\s]+)`)
	pluginRe       = regexp.MustCompile(`/wp-content/plugins/([^/"'?#\s]+)`)
)

// IsWordPress reports whether any WordPress marker appears in the lowercased HTML or a header value.
// A page that only mentions the word "wordpress" is classified as WordPress.
func IsWordPress(page *model.FetchedPage) bool {
	html := strings.ToLower(page.HTML)
	for _, m := range htmlMarkers {
		if strings.Contains(html, m) {
			return true
		}
	}
	for _, v := range page.Headers {
		if strings.Contains(strings.ToLower(v), "wordpress") {
			return true
		}
	}
	return false
}

// Fingerprint derives the passive part of the profile. It makes no network calls.
func Fingerprint(page *model.FetchedPage) model.WordPressProfile {
	profile := model.WordPressProfile{ExposedFiles: []string{}}
	if !IsWordPress(page) {
		return profile
	}
	profile.IsWordPress = true
	profile.Version = extractVersion(page.HTML)
	if profile.Version != "" {
		outdated := isOutdated(profile.Version)
		profile.IsVersionOutdated = &outdated
	}
	profile.Theme = extractTheme(page.HTML)
	profile.PluginCount = len(extractPlugins(page.HTML))
	profile.DirectoryListingEnabled = containsAny(page.HTML, directoryListingMarkers)
	profile.DebugModeEnabled = containsAny(page.HTML, debugMarkers)
	return profile
}

func extractVersion(html string) string {
	if m := emojiVersionRe.FindStringSubmatch(html); m != nil {
		return strings.TrimRight(m[1], ".")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	var version string
	doc.Find("meta[name=generator], meta[name=Generator]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if m := generatorRe.FindStringSubmatch(strings.TrimSpace(s.AttrOr("content", ""))); m != nil {
			version = strings.TrimRight(m[1], ".")
			return false
		}
		return true
	})
	return version
}

func extractTheme(html string) string {
	m := themeRe.FindStringSubmatch(html)
	if m == nil {
		return ""
	}
	first, size := utf8.DecodeRuneInString(m[1])
	return string(unicode.ToUpper(first)) + m[1][size:]
}

// extractPlugins counts distinct plugin directories referenced in the markup. Plugins
// bundled into minified assets are invisible to it.
func extractPlugins(html string) []string {
	seen := make(map[string]struct{})
	var plugins []string
	for _, m := range pluginRe.FindAllStringSubmatch(html, -1) {
		slug := strings.ToLower(m[1])
		if _, ok := seen[slug]; ok {
			continue
		}
		seen[slug] = struct{}{}
		plugins = append(plugins, slug)
	}
	return plugins
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
