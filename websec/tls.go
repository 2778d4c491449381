package websec

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/siteaudit/backend/model"
)

// SSLAnalysis is derived from the URL scheme, headers and banner. No handshake is made.
type SSLAnalysis struct {
	Enabled                 bool   `json:"enabled"`
	HSTS                    bool   `json:"hsts"`
	UpgradeInsecureRequests bool   `json:"upgradeInsecureRequests"`
	MixedContent            bool   `json:"mixedContent"`
	WeakProtocol            string `json:"weakProtocol,omitempty"`
}

var weakProtocols = []string{"TLS/1.0", "TLS/1.1"}

const insecureResources = `img[src^="http://"], script[src^="http://"], iframe[src^="http://"], link[rel="stylesheet"][href^="http://"], source[src^="http://"]`

func checkTLS(page *model.FetchedPage, doc *goquery.Document) (SSLAnalysis, []model.SecurityFinding) {
	u, err := url.Parse(page.URL)
	if err != nil || !strings.EqualFold(u.Scheme, "https") {
		return SSLAnalysis{}, []model.SecurityFinding{{
			Type:           model.FindingSSLTLS,
			Severity:       model.SeverityHigh,
			Title:          "No encryption",
			Description:    "The site is served over plain HTTP, so traffic and form submissions can be read or altered in transit.",
			Evidence:       page.URL,
			Recommendation: "Install a TLS certificate and redirect all HTTP traffic to HTTPS.",
		}}
	}

	var findings []model.SecurityFinding
	csp, _ := lookupHeader(page.Headers, "content-security-policy")
	_, hsts := lookupHeader(page.Headers, "strict-transport-security")
	analysis := SSLAnalysis{
		Enabled:                 true,
		HSTS:                    hsts,
		UpgradeInsecureRequests: strings.Contains(strings.ToLower(csp), "upgrade-insecure-requests"),
	}

	if doc != nil {
		analysis.MixedContent = doc.Find(insecureResources).Length() > 0
	}
	if analysis.MixedContent && !analysis.UpgradeInsecureRequests {
		first := doc.Find(insecureResources).First()
		findings = append(findings, model.SecurityFinding{
			Type:           model.FindingSSLTLS,
			Severity:       model.SeverityMedium,
			Title:          "Mixed content",
			Description:    "The HTTPS page loads sub-resources over plain HTTP.",
			Evidence:       first.AttrOr("src", first.AttrOr("href", "")),
			Recommendation: "Serve every resource over HTTPS or add upgrade-insecure-requests to the Content-Security-Policy.",
		})
	}

	server, _ := lookupHeader(page.Headers, "server")
	for _, p := range weakProtocols {
		if strings.Contains(strings.ToUpper(server), p) {
			analysis.WeakProtocol = p
			findings = append(findings, model.SecurityFinding{
				Type:           model.FindingSSLTLS,
				Severity:       model.SeverityHigh,
				Title:          "Weak TLS protocol",
				Description:    "The server banner advertises " + p + ", which is deprecated and vulnerable to known attacks.",
				Evidence:       "Server: " + server,
				Recommendation: "Disable TLS 1.0 and 1.1 and allow only TLS 1.2 and 1.3.",
			})
			break
		}
	}
	return analysis, findings
}
