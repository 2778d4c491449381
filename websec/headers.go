package websec

import (
	"strings"

	"github.com/siteaudit/backend/model"
)

type headerRule struct {
	Name           string
	Label          string
	Severity       model.Severity
	Description    string
	Recommendation string
	// Expect is nil for presence-only headers.
	Expect func(value string) bool
	// Expected is the literal shown to the user when Expect fails.
	Expected string
}

var headerRules = []headerRule{
	{
		Name: "strict-transport-security", Label: "Strict-Transport-Security", Severity: model.SeverityHigh,
		Description:    "Browsers are not told to insist on HTTPS, leaving first visits open to downgrade attacks.",
		Recommendation: "Send Strict-Transport-Security: max-age=31536000; includeSubDomains.",
	},
	{
		Name: "content-security-policy", Label: "Content-Security-Policy", Severity: model.SeverityHigh,
		Description:    "No Content Security Policy restricts where scripts may load from, so injected scripts run freely.",
		Recommendation: "Define a Content-Security-Policy starting with default-src 'self' and whitelist required origins.",
	},
	{
		Name: "x-frame-options", Label: "X-Frame-Options", Severity: model.SeverityMedium,
		Description:    "Pages can be framed by other origins, enabling clickjacking.",
		Recommendation: "Send X-Frame-Options: SAMEORIGIN (or DENY).",
		Expect:         oneOf("deny", "sameorigin"),
		Expected:       "DENY or SAMEORIGIN",
	},
	{
		Name: "x-content-type-options", Label: "X-Content-Type-Options", Severity: model.SeverityMedium,
		Description:    "Browsers may MIME-sniff responses and execute uploaded content as script.",
		Recommendation: "Send X-Content-Type-Options: nosniff.",
		Expect:         oneOf("nosniff"),
		Expected:       "nosniff",
	},
	{
		Name: "referrer-policy", Label: "Referrer-Policy", Severity: model.SeverityLow,
		Description:    "Full URLs, including query strings, leak to third parties through the Referer header.",
		Recommendation: "Send Referrer-Policy: strict-origin-when-cross-origin.",
	},
	{
		Name: "permissions-policy", Label: "Permissions-Policy", Severity: model.SeverityLow,
		Description:    "Embedded content may request camera, microphone or geolocation access.",
		Recommendation: "Send a Permissions-Policy that disables unused browser features.",
	},
	{
		Name: "x-xss-protection", Label: "X-XSS-Protection", Severity: model.SeverityLow,
		Description:    "Legacy browsers run without their reflected-XSS filter in blocking mode.",
		Recommendation: "Send X-XSS-Protection: 1; mode=block.",
		Expect:         oneOf("1;mode=block"),
		Expected:       "1; mode=block",
	},
}

func oneOf(values ...string) func(string) bool {
	return func(v string) bool {
		v = strings.ToLower(strings.Join(strings.Fields(v), ""))
		for _, want := range values {
			if v == want {
				return true
			}
		}
		return false
	}
}

// auditHeaders returns the missing header names in table order plus one finding per missing
// or misconfigured header.
func auditHeaders(headers map[string]string) ([]string, []model.SecurityFinding) {
	missing := []string{}
	var findings []model.SecurityFinding
	for _, rule := range headerRules {
		value, ok := lookupHeader(headers, rule.Name)
		if !ok {
			missing = append(missing, rule.Name)
			findings = append(findings, model.SecurityFinding{
				Type:           model.FindingSecurityHeader,
				Severity:       rule.Severity,
				Title:          "Missing " + rule.Label + " header",
				Description:    rule.Description,
				Recommendation: rule.Recommendation,
			})
			continue
		}
		if rule.Expect != nil && !rule.Expect(value) {
			findings = append(findings, model.SecurityFinding{
				Type:           model.FindingSecurityHeader,
				Severity:       model.SeverityMedium,
				Title:          "Misconfigured " + rule.Label + " header",
				Description:    rule.Label + " is present but not set to " + rule.Expected + ".",
				Evidence:       rule.Label + ": " + value,
				Recommendation: rule.Recommendation,
			})
		}
	}
	return missing, findings
}

// lookupHeader matches keys case-insensitively so hand-built header maps behave like fetched ones.
func lookupHeader(headers map[string]string, name string) (string, bool) {
	if v, ok := headers[name]; ok {
		return v, true
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}
