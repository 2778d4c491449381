package techdetect

import (
	"regexp"
	"strings"

	"github.com/siteaudit/backend/model"
)

// signature matches one product by substring markers in the lowercased HTML or header values.
// Substring matching is approximate: a page that merely mentions "react" in prose is reported as React.
type signature struct {
	Name       string
	Category   string
	Confidence int
	HTML       []string
	Headers    []string
	Version    *regexp.Regexp
}

// CDNVendors are the literals that mark a CDN in markup or headers.
var CDNVendors = []string{"cloudflare", "cloudfront", "fastly", "maxcdn", "keycdn", "jsdelivr", "unpkg", "cdnjs", "bootstrapcdn"}

var signatures = []signature{
	{
		Name: "WordPress", Category: "CMS", Confidence: 100,
		HTML:    []string{"/wp-content/", "/wp-includes/", "wp-json", "/wp-login.php"},
		Headers: []string{"wordpress"},
		Version: regexp.MustCompile(`<meta[^>]+content=["']wordpress ([\d.]+)`),
	},
	{Name: "Drupal", Category: "CMS", Confidence: 90, HTML: []string{"drupal-settings-json", "/sites/default/files/"}, Headers: []string{"drupal"}},
	{Name: "Joomla", Category: "CMS", Confidence: 90, HTML: []string{"/media/jui/", "joomla!"}},
	{Name: "Shopify", Category: "Ecommerce", Confidence: 90, HTML: []string{"cdn.shopify.com", "shopify.theme"}},
	{Name: "WooCommerce", Category: "Ecommerce", Confidence: 90, HTML: []string{"/wp-content/plugins/woocommerce/", "woocommerce-"}},
	{Name: "Elementor", Category: "Page builders", Confidence: 85, HTML: []string{"/wp-content/plugins/elementor/", "elementor-widget"}},
	{
		Name: "React", Category: "JavaScript frameworks", Confidence: 80,
		HTML:    []string{"data-reactroot", "react-dom", "__next_data__", "_reactlistening"},
		Version: regexp.MustCompile(`react(?:-dom)?@([\d.]+)`),
	},
	{
		Name: "Vue.js", Category: "JavaScript frameworks", Confidence: 80,
		HTML:    []string{"vue.min.js", "vue.js", "data-v-", "__vue__", "__nuxt"},
		Version: regexp.MustCompile(`vue@([\d.]+)`),
	},
	{Name: "Angular", Category: "JavaScript frameworks", Confidence: 80, HTML: []string{"ng-version=", "ng-app", "angular.min.js"}, Version: regexp.MustCompile(`ng-version="([\d.]+)"`)},
	{
		Name: "jQuery", Category: "JavaScript libraries", Confidence: 85,
		HTML:    []string{"jquery.min.js", "jquery.js", "/jquery/", "jquery-"},
		Version: regexp.MustCompile(`jquery(?:\.min)?\.js\?ver=([\d.]+)|jquery[-@/]([\d]+\.[\d.]+)`),
	},
	{Name: "Bootstrap", Category: "UI frameworks", Confidence: 75, HTML: []string{"bootstrap.min.css", "bootstrap.min.js", "bootstrap.css"}, Version: regexp.MustCompile(`bootstrap@([\d.]+)|bootstrap/([\d]+\.[\d.]+)`)},
	{Name: "Tailwind CSS", Category: "UI frameworks", Confidence: 70, HTML: []string{"tailwind"}},
	{Name: "Google Analytics", Category: "Analytics", Confidence: 90, HTML: []string{"google-analytics.com", "gtag(", "ga('create'"}},
	{Name: "Google Tag Manager", Category: "Tag managers", Confidence: 90, HTML: []string{"googletagmanager.com"}},
	{Name: "Cloudflare", Category: "CDN", Confidence: 90, HTML: []string{"cloudflare"}, Headers: []string{"cloudflare"}},
	{Name: "Amazon CloudFront", Category: "CDN", Confidence: 90, HTML: []string{"cloudfront"}, Headers: []string{"cloudfront"}},
	{Name: "Fastly", Category: "CDN", Confidence: 90, HTML: []string{"fastly"}, Headers: []string{"fastly"}},
	{Name: "MaxCDN", Category: "CDN", Confidence: 80, HTML: []string{"maxcdn"}, Headers: []string{"maxcdn"}},
	{Name: "KeyCDN", Category: "CDN", Confidence: 80, HTML: []string{"keycdn"}, Headers: []string{"keycdn"}},
	{Name: "jsDelivr", Category: "CDN", Confidence: 80, HTML: []string{"jsdelivr"}},
	{Name: "unpkg", Category: "CDN", Confidence: 80, HTML: []string{"unpkg"}},
	{Name: "cdnjs", Category: "CDN", Confidence: 80, HTML: []string{"cdnjs"}},
	{Name: "BootstrapCDN", Category: "CDN", Confidence: 80, HTML: []string{"bootstrapcdn"}},
	{Name: "Nginx", Category: "Web servers", Confidence: 95, Headers: []string{"nginx"}, Version: regexp.MustCompile(`nginx/([\d.]+)`)},
	{Name: "Apache", Category: "Web servers", Confidence: 95, Headers: []string{"apache"}, Version: regexp.MustCompile(`apache/([\d.]+)`)},
	{Name: "LiteSpeed", Category: "Web servers", Confidence: 95, Headers: []string{"litespeed"}},
	{Name: "PHP", Category: "Programming languages", Confidence: 90, Headers: []string{"php"}, Version: regexp.MustCompile(`php/([\d.]+)`)},
}

// detectSignatures runs the in-process table. htmlLower and headerBlob must already be lowercased.
func detectSignatures(htmlLower, headerBlob string) []model.Technology {
	var found []model.Technology
	for _, sig := range signatures {
		source, ok := matchSignature(sig, htmlLower, headerBlob)
		if !ok {
			continue
		}
		tech := model.Technology{Name: sig.Name, Confidence: sig.Confidence, Category: sig.Category}
		if sig.Version != nil {
			tech.Version = firstGroup(sig.Version, source)
		}
		found = append(found, tech)
	}
	return found
}

func matchSignature(sig signature, htmlLower, headerBlob string) (string, bool) {
	for _, marker := range sig.Headers {
		if strings.Contains(headerBlob, marker) {
			return headerBlob, true
		}
	}
	for _, marker := range sig.HTML {
		if strings.Contains(htmlLower, marker) {
			return htmlLower, true
		}
	}
	return "", false
}

func firstGroup(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	for i := 1; i < len(m); i++ {
		if m[i] != "" {
			return m[i]
		}
	}
	return ""
}
