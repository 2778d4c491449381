package techdetect

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/siteaudit/backend/model"
)

var cdnMarkerHeaders = []string{"cf-ray", "x-amz-cf-id", "x-fastly-request-id", "x-cdn", "x-akamai-transformed"}

var cacheHeaders = []string{"cache-control", "etag", "last-modified", "expires"}

// Signals derives the TechnicalSignals of a page. It reads nothing but the page.
func Signals(page *model.FetchedPage) model.TechnicalSignals {
	htmlLower := strings.ToLower(page.HTML)
	return model.TechnicalSignals{
		HasSSL:            isHTTPS(page.URL),
		HasCDN:            hasCDN(htmlLower, page.Headers),
		Caching:           caching(page.Headers),
		ImageOptimization: imageOptimization(page.HTML),
	}
}

func isHTTPS(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && strings.EqualFold(u.Scheme, "https")
}

// hasCDN is a literal vendor-name match, so a page that links to a CDN-hosted
// library counts as served through a CDN.
func hasCDN(htmlLower string, headers map[string]string) bool {
	for _, h := range cdnMarkerHeaders {
		if _, ok := headers[h]; ok {
			return true
		}
	}
	blob := headerBlob(headers)
	for _, vendor := range CDNVendors {
		if strings.Contains(htmlLower, vendor) || strings.Contains(blob, vendor) {
			return true
		}
	}
	return false
}

func caching(headers map[string]string) model.Caching {
	present := 0
	for _, h := range cacheHeaders {
		if strings.TrimSpace(headers[h]) != "" {
			present++
		}
	}
	switch {
	case present >= 3:
		return model.CachingEnabled
	case present >= 1:
		return model.CachingPartial
	default:
		return model.CachingDisabled
	}
}

func imageOptimization(html string) model.ImageOptimization {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return model.ImagesPoor
	}
	images := doc.Find("img")
	if images.Length() == 0 {
		return model.ImagesGood
	}

	optimized := 0
	images.Each(func(_ int, img *goquery.Selection) {
		src := strings.ToLower(img.AttrOr("src", ""))
		loading, _ := img.Attr("loading")
		_, hasSrcset := img.Attr("srcset")
		modern := strings.Contains(src, ".webp") || strings.Contains(src, ".avif")
		if modern || hasSrcset || strings.EqualFold(loading, "lazy") || img.Parent().Is("picture") {
			optimized++
		}
	})

	ratio := float64(optimized) / float64(images.Length())
	switch {
	case ratio >= 0.7:
		return model.ImagesGood
	case ratio >= 0.3:
		return model.ImagesNeedsImprovement
	default:
		return model.ImagesPoor
	}
}

func headerBlob(headers map[string]string) string {
	var b strings.Builder
	for _, v := range headers {
		b.WriteString(strings.ToLower(v))
		b.WriteByte('\n')
	}
	return b.String()
}
