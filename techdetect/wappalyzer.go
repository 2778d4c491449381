package techdetect

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	wappalyzer "github.com/projectdiscovery/wappalyzergo"

	"github.com/siteaudit/backend/model"
)

const fingerprintConfidence = 75

// fingerprinter runs the embedded Wappalyzer fingerprint set over a page.
type fingerprinter struct {
	client *wappalyzer.Wappalyze
}

func newFingerprinter() (*fingerprinter, error) {
	client, err := wappalyzer.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load wappalyzer fingerprints: %w", err)
	}
	return &fingerprinter{client: client}, nil
}

func (f *fingerprinter) detect(page *model.FetchedPage) []model.Technology {
	if f == nil || f.client == nil {
		return nil
	}
	headers := make(map[string][]string, len(page.Headers))
	for k, v := range page.Headers {
		headers[http.CanonicalHeaderKey(k)] = []string{v}
	}

	var found []model.Technology
	for name, info := range f.client.FingerprintWithInfo(headers, []byte(page.HTML)) {
		tech := model.Technology{Confidence: fingerprintConfidence, Category: "Miscellaneous"}
		tech.Name, tech.Version, _ = strings.Cut(name, ":")
		if len(info.Categories) > 0 {
			tech.Category = info.Categories[0]
		}
		found = append(found, tech)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	return found
}
