package websec

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dlclark/regexp2"
	"golang.org/x/net/html"

	"github.com/siteaudit/backend/model"
)

var (
	// bannerVersion matches a version number that directly follows a product token, e.g. nginx/1.25.3.
	bannerVersion = regexp2.MustCompile(`(?<=[A-Za-z]/)\d+(?:\.\d+)+`, regexp2.None)
	// secretInComment flags any comment that names a credential. Prose such as
	// "reset your password" matches too.
	secretInComment = regexp2.MustCompile(`password|passwd|secret|api[_-]?key|token`, regexp2.IgnoreCase)
)

func matchString(re *regexp2.Regexp, s string) string {
	m, err := re.FindStringMatch(s)
	if err != nil || m == nil {
		return ""
	}
	return m.String()
}

func checkDisclosure(page *model.FetchedPage, doc *goquery.Document) (int, []model.SecurityFinding) {
	var findings []model.SecurityFinding

	if server, ok := lookupHeader(page.Headers, "server"); ok {
		if v := matchString(bannerVersion, server); v != "" {
			findings = append(findings, lowDisclosure(
				"Server version disclosed",
				"The Server header reveals the exact software version "+v+".",
				"Server: "+server,
				"Hide version numbers (server_tokens off on nginx, ServerTokens Prod on Apache).",
			))
		}
	}
	if powered, ok := lookupHeader(page.Headers, "x-powered-by"); ok {
		findings = append(findings, lowDisclosure(
			"X-Powered-By header present",
			"The X-Powered-By header reveals the application stack.",
			"X-Powered-By: "+powered,
			"Remove the X-Powered-By header (expose_php = Off for PHP).",
		))
	}

	lower := strings.ToLower(page.HTML)
	for _, phrase := range []string{"powered by", "built with"} {
		if i := strings.Index(lower, phrase); i >= 0 {
			findings = append(findings, lowDisclosure(
				"Technology credit in page",
				"The page contains a \""+phrase+"\" credit that identifies the software in use.",
				snippet(page.HTML, i, len(phrase)+40),
				"Remove footer credits that name the platform or its version.",
			))
		}
	}

	secrets := 0
	var firstSecret string
	if doc != nil {
		if generator, ok := doc.Find(`meta[name=generator], meta[name=Generator]`).Attr("content"); ok {
			findings = append(findings, lowDisclosure(
				"Generator meta tag present",
				"The generator meta tag reveals the platform and often its version.",
				generator,
				"Remove the generator meta tag from the page template.",
			))
		}

		for _, c := range comments(doc) {
			if kw := matchString(secretInComment, c); kw != "" {
				secrets++
				if firstSecret == "" {
					firstSecret = kw
				}
			}
		}
	}
	if secrets > 0 {
		findings = append(findings, model.SecurityFinding{
			Type:           model.FindingInformationDisclosure,
			Severity:       model.SeverityMedium,
			Title:          "Sensitive data in HTML comments",
			Description:    fmt.Sprintf("%d HTML comment(s) mention credentials such as %q.", secrets, firstSecret),
			Evidence:       firstSecret,
			Recommendation: "Strip comments from production templates and rotate any credential that was published.",
		})
	}
	return secrets, findings
}

func lowDisclosure(title, description, evidence, recommendation string) model.SecurityFinding {
	return model.SecurityFinding{
		Type:           model.FindingInformationDisclosure,
		Severity:       model.SeverityLow,
		Title:          title,
		Description:    description,
		Evidence:       evidence,
		Recommendation: recommendation,
	}
}

// comments collects the text of every comment node in the document.
func comments(doc *goquery.Document) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.CommentNode {
			out = append(out, n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return out
}

func snippet(s string, start, n int) string {
	if start >= len(s) {
		return ""
	}
	end := start + n
	if end > len(s) {
		end = len(s)
	}
	return strings.TrimSpace(s[start:end])
}
