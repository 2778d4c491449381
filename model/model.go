// Package model holds the data shared by every inspection component.
package model

// FetchedPage is a fetched target page. Header keys are lowercased.
type FetchedPage struct {
	URL     string            `json:"url"`
	HTML    string            `json:"-"`
	Headers map[string]string `json:"headers"`
	// ViaProxy is set when the direct fetch failed and the content came from the fallback proxy.
	ViaProxy bool `json:"viaProxy"`
}

// Header returns the value of a lowercased header key.
func (p *FetchedPage) Header(name string) string {
	if p == nil || p.Headers == nil {
		return ""
	}
	return p.Headers[name]
}

// Technology is one detected product on the page.
type Technology struct {
	Name       string `json:"name"`
	Confidence int    `json:"confidence"`
	Version    string `json:"version,omitempty"`
	Category   string `json:"category"`
}

// Caching is the cache-header posture of a page.
type Caching string

const (
	CachingEnabled  Caching = "enabled"
	CachingPartial  Caching = "partial"
	CachingDisabled Caching = "disabled"
)

// ImageOptimization grades how images are delivered.
type ImageOptimization string

const (
	ImagesGood             ImageOptimization = "good"
	ImagesNeedsImprovement ImageOptimization = "needs-improvement"
	ImagesPoor             ImageOptimization = "poor"
)

// TechnicalSignals is a pure function of a FetchedPage.
type TechnicalSignals struct {
	HasSSL            bool              `json:"hasSSL"`
	HasCDN            bool              `json:"hasCDN"`
	Caching           Caching           `json:"caching"`
	ImageOptimization ImageOptimization `json:"imageOptimization"`
}

// WordPressProfile is derived once per request. All fields are zero when IsWordPress is false.
type WordPressProfile struct {
	IsWordPress             bool     `json:"isWordPress"`
	Version                 string   `json:"version,omitempty"`
	Theme                   string   `json:"theme,omitempty"`
	PluginCount             int      `json:"pluginCount"`
	IsVersionOutdated       *bool    `json:"isVersionOutdated,omitempty"`
	ExposedFiles            []string `json:"exposedFiles"`
	AdminAccessible         bool     `json:"adminAccessible"`
	XMLRPCEnabled           bool     `json:"xmlrpcEnabled"`
	UserEnumerationPossible bool     `json:"userEnumerationPossible"`
	DirectoryListingEnabled bool     `json:"directoryListingEnabled"`
	DebugModeEnabled        bool     `json:"debugModeEnabled"`
}
