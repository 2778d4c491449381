// Package wordpress fingerprints WordPress sites and probes them for common exposures.
package wordpress

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/siteaudit/backend/model"
	"github.com/siteaudit/backend/prober"
)

const (
	DefaultFileTimeout  = 5 * time.Second
	DefaultProbeTimeout = 8 * time.Second

	xmlrpcPayload = `<?xml version="1.0"?><methodCall><methodName>system.listMethods</methodName><params></params></methodCall>`
)

// Analyzer runs the WordPress fingerprint and its active probes.
type Analyzer struct {
	client       *prober.Client
	fileTimeout  time.Duration
	probeTimeout time.Duration
	log          *logrus.Entry
}

// New creates an Analyzer that sends its probes through client.
func New(client *prober.Client, log *logrus.Entry) *Analyzer {
	return &Analyzer{
		client:       client,
		fileTimeout:  DefaultFileTimeout,
		probeTimeout: DefaultProbeTimeout,
		log:          log,
	}
}

// Result is the profile plus the findings derived from it.
type Result struct {
	Profile  model.WordPressProfile
	Findings []model.SecurityFinding
}

// Analyze fingerprints page and, only when it is WordPress, probes the site.
// Probe failures count as "not present" and never surface as errors.
func (a *Analyzer) Analyze(ctx context.Context, page *model.FetchedPage) Result {
	profile := Fingerprint(page)
	if !profile.IsWordPress {
		return Result{Profile: profile, Findings: []model.SecurityFinding{}}
	}

	base, err := siteRoot(page.URL)
	if err != nil {
		return Result{Profile: profile, Findings: passiveFindings(profile, page.HTML)}
	}

	var (
		wg                    sync.WaitGroup
		files                 []prober.Outcome
		admin, xmlrpc, author prober.Outcome
	)
	wg.Add(4)
	go func() {
		defer wg.Done()
		files = a.client.ProbeAll(ctx, a.fileRequests(base), prober.Status2xx)
	}()
	go func() {
		defer wg.Done()
		admin = a.client.Probe(ctx, prober.Request{
			Name: "wp-admin", Method: http.MethodGet, URL: base + "/wp-admin/", Timeout: a.probeTimeout,
		}, func(r *prober.Response) bool { return r.StatusCode == http.StatusOK })
	}()
	go func() {
		defer wg.Done()
		xmlrpc = a.client.Probe(ctx, prober.Request{
			Name: "xmlrpc", Method: http.MethodPost, URL: base + "/xmlrpc.php",
			Body: xmlrpcPayload, ContentType: "text/xml", Timeout: a.probeTimeout,
		}, prober.Status2xx)
	}()
	go func() {
		defer wg.Done()
		author = a.client.Probe(ctx, prober.Request{
			Name: "author-enum", Method: http.MethodGet, URL: base + "/?author=1", Timeout: a.probeTimeout,
		}, authorRedirect)
	}()
	wg.Wait()

	for _, o := range files {
		if o.Detected() {
			profile.ExposedFiles = append(profile.ExposedFiles, o.Name)
		}
	}
	profile.AdminAccessible = admin.Detected()
	profile.XMLRPCEnabled = xmlrpc.Detected()
	profile.UserEnumerationPossible = author.Detected()

	findings := passiveFindings(profile, page.HTML)
	for _, o := range files {
		if o.Detected() {
			findings = append(findings, exposedFileFinding(o.Name, o.URL))
		}
	}
	findings = append(findings, activeFindings(profile, base)...)

	a.log.WithFields(logrus.Fields{
		"url":      page.URL,
		"version":  profile.Version,
		"plugins":  profile.PluginCount,
		"exposed":  len(profile.ExposedFiles),
		"findings": len(findings),
	}).Debug("wordpress analysis complete")

	return Result{Profile: profile, Findings: findings}
}

func (a *Analyzer) fileRequests(base string) []prober.Request {
	reqs := make([]prober.Request, 0, len(sensitiveFiles))
	for _, path := range sensitiveFiles {
		reqs = append(reqs, prober.Request{
			Name:    path,
			Method:  http.MethodHead,
			URL:     base + path,
			Timeout: a.fileTimeout,
		})
	}
	return reqs
}

func authorRedirect(r *prober.Response) bool {
	if r.StatusCode != http.StatusMovedPermanently && r.StatusCode != http.StatusFound {
		return false
	}
	return strings.Contains(r.Header.Get("Location"), "/author/")
}

func siteRoot(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("not an absolute url: %q", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}

// passiveFindings covers everything derivable from the page itself.
func passiveFindings(p model.WordPressProfile, html string) []model.SecurityFinding {
	findings := []model.SecurityFinding{}

	if r, ok := lookupVulnerable(p.Version); ok {
		findings = append(findings, model.SecurityFinding{
			Type:           model.FindingVersion,
			Severity:       model.SeverityHigh,
			Title:          "Vulnerable WordPress version " + p.Version,
			Description:    r.Description + ".",
			Evidence:       "WordPress " + p.Version,
			Recommendation: "Update WordPress core to the latest release.",
			CVSSScore:      vulnerableCVSS,
			CVEID:          r.CVE,
		})
	}
	if p.IsVersionOutdated != nil && *p.IsVersionOutdated {
		findings = append(findings, model.SecurityFinding{
			Type:           model.FindingVersion,
			Severity:       model.SeverityMedium,
			Title:          "Outdated WordPress version",
			Description:    "WordPress " + p.Version + " is older than 6.4 and misses current security fixes.",
			Evidence:       "WordPress " + p.Version,
			Recommendation: "Upgrade WordPress core and enable automatic minor updates.",
		})
	}
	if p.DirectoryListingEnabled {
		findings = append(findings, model.SecurityFinding{
			Type:           model.FindingDirectoryListing,
			Severity:       model.SeverityMedium,
			Title:          "Directory listing enabled",
			Description:    "The server returns auto-generated directory indexes, exposing the file layout.",
			Recommendation: "Disable directory indexes (Options -Indexes on Apache, autoindex off on nginx).",
		})
	}
	if p.DebugModeEnabled {
		findings = append(findings, model.SecurityFinding{
			Type:           model.FindingConfig,
			Severity:       model.SeverityMedium,
			Title:          "Debug output visible",
			Description:    "PHP notices, warnings or WP_DEBUG output are rendered to visitors.",
			Recommendation: "Set WP_DEBUG and WP_DEBUG_DISPLAY to false in wp-config.php.",
		})
	}
	if p.Theme != "" || p.PluginCount > 0 {
		findings = append(findings, model.SecurityFinding{
			Type:           model.FindingInformationDisclosure,
			Severity:       model.SeverityLow,
			Title:          "WordPress structure disclosed",
			Description:    fmt.Sprintf("Theme and plugin paths are visible in the markup (theme %q, %d plugins).", p.Theme, p.PluginCount),
			Evidence:       structureEvidence(html),
			Recommendation: "Keep themes and plugins updated; visible paths let attackers target known plugin vulnerabilities.",
		})
	}
	return findings
}

func structureEvidence(html string) string {
	if m := themeRe.FindString(html); m != "" {
		return m
	}
	return pluginRe.FindString(html)
}

func activeFindings(p model.WordPressProfile, base string) []model.SecurityFinding {
	var findings []model.SecurityFinding
	if p.AdminAccessible {
		findings = append(findings, model.SecurityFinding{
			Type:           model.FindingMisconfiguration,
			Severity:       model.SeverityMedium,
			Title:          "Admin panel publicly accessible",
			Description:    "/wp-admin/ answers without redirecting to a login or access control.",
			Evidence:       base + "/wp-admin/",
			Recommendation: "Restrict /wp-admin/ by IP allow-list or add two-factor authentication.",
		})
	}
	if p.XMLRPCEnabled {
		findings = append(findings, model.SecurityFinding{
			Type:           model.FindingMisconfiguration,
			Severity:       model.SeverityMedium,
			Title:          "XML-RPC enabled",
			Description:    "xmlrpc.php accepts system.listMethods and can be abused for brute-force amplification.",
			Evidence:       base + "/xmlrpc.php",
			Recommendation: "Disable XML-RPC unless a client depends on it.",
		})
	}
	if p.UserEnumerationPossible {
		findings = append(findings, model.SecurityFinding{
			Type:           model.FindingUserEnum,
			Severity:       model.SeverityLow,
			Title:          "User enumeration possible",
			Description:    "/?author=1 redirects to an author archive, revealing login names.",
			Evidence:       base + "/?author=1",
			Recommendation: "Block author-query redirects or use a security plugin that hides usernames.",
		})
	}
	return findings
}
