package websec

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/siteaudit/backend/model"
	"github.com/siteaudit/backend/prober"
)

var traversalPayloads = []string{
	"../../../etc/passwd",
	"..%2F..%2F..%2Fetc%2Fpasswd",
	"..%252F..%252F..%252Fetc%252Fpasswd",
}

// traversalMarkers are plain substrings; a page that prints "localhost" anywhere is a false positive.
var traversalMarkers = []string{"root:", "localhost", "# Copyright"}

const traversalCVSS = 9.1

// withPayload replaces every query value with payload. The payload is inserted verbatim.
func withPayload(u *url.URL, payload string) string {
	keys := make([]string, 0)
	seen := make(map[string]struct{})
	for _, pair := range strings.Split(u.RawQuery, "&") {
		key, _, _ := strings.Cut(pair, "=")
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + payload
	}
	probe := *u
	probe.RawQuery = strings.Join(parts, "&")
	probe.Fragment = ""
	return probe.String()
}

func traversalHit(r *prober.Response) bool {
	for _, m := range traversalMarkers {
		if strings.Contains(r.Body, m) {
			return true
		}
	}
	return false
}

// probeTraversal runs only for URLs with a query and stops at the first hit.
func (s *Scanner) probeTraversal(ctx context.Context, u *url.URL) (bool, *model.SecurityFinding) {
	if u.RawQuery == "" {
		return false, nil
	}
	for _, payload := range traversalPayloads {
		target := withPayload(u, payload)
		o := s.client.Probe(ctx, prober.Request{
			Name:    "traversal",
			Method:  http.MethodGet,
			URL:     target,
			Timeout: s.opts.TraversalTimeout,
		}, traversalHit)
		if o.Detected() {
			return true, &model.SecurityFinding{
				Type:           model.FindingInjection,
				Severity:       model.SeverityCritical,
				Title:          "Directory traversal",
				Description:    "Query parameters accept path traversal sequences and the response contains system file content.",
				Evidence:       target,
				Recommendation: "Validate file parameters against an allow-list and never build file paths from user input.",
				CVSSScore:      traversalCVSS,
			}
		}
	}
	return true, nil
}
