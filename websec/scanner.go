// Package websec runs protocol and header level security checks against a fetched page.
package websec

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/siteaudit/backend/model"
	"github.com/siteaudit/backend/prober"
)

// Options sets the per-probe timeouts. Zero values default to 5s for paths and 8s for traversal.
type Options struct {
	PathTimeout      time.Duration
	TraversalTimeout time.Duration
}

// Scanner audits headers, TLS posture, exposed paths, traversal and information disclosure.
type Scanner struct {
	client *prober.Client
	opts   Options
	log    *logrus.Entry
}

// New creates a Scanner that sends its probes through client.
func New(client *prober.Client, opts Options, log *logrus.Entry) *Scanner {
	if opts.PathTimeout <= 0 {
		opts.PathTimeout = 5 * time.Second
	}
	if opts.TraversalTimeout <= 0 {
		opts.TraversalTimeout = 8 * time.Second
	}
	return &Scanner{client: client, opts: opts, log: log}
}

// VulnerabilityTests summarises the active tests that were run.
type VulnerabilityTests struct {
	PathsProbed         int      `json:"pathsProbed"`
	ExposedPaths        []string `json:"exposedPaths"`
	TraversalTested     bool     `json:"traversalTested"`
	TraversalVulnerable bool     `json:"traversalVulnerable"`
	SecretsInComments   int      `json:"secretsInComments"`
}

// Result is the scanner output for one page.
type Result struct {
	SecurityScore      int                     `json:"securityScore"`
	MissingHeaders     []string                `json:"missingHeaders"`
	Findings           []model.SecurityFinding `json:"findings"`
	SSLAnalysis        SSLAnalysis             `json:"sslAnalysis"`
	VulnerabilityTests VulnerabilityTests      `json:"vulnerabilityTests"`
}

// Scan runs every check. Only the page's own URL is probed; probe failures produce no finding.
func (s *Scanner) Scan(ctx context.Context, page *model.FetchedPage) Result {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		s.log.WithError(err).Debug("html parse failed, skipping markup checks")
		doc = nil
	}

	res := Result{Findings: []model.SecurityFinding{}}
	missing, findings := auditHeaders(page.Headers)
	res.MissingHeaders = missing
	res.Findings = append(res.Findings, findings...)

	ssl, findings := checkTLS(page, doc)
	res.SSLAnalysis = ssl
	res.Findings = append(res.Findings, findings...)

	res.VulnerabilityTests.ExposedPaths = []string{}
	if u, err := url.Parse(page.URL); err == nil && u.Host != "" {
		base := u.Scheme + "://" + u.Host
		exposed, findings := s.probeExposedPaths(ctx, base)
		res.VulnerabilityTests.PathsProbed = len(exposedPaths)
		res.VulnerabilityTests.ExposedPaths = exposed
		res.Findings = append(res.Findings, findings...)

		tested, finding := s.probeTraversal(ctx, u)
		res.VulnerabilityTests.TraversalTested = tested
		if finding != nil {
			res.VulnerabilityTests.TraversalVulnerable = true
			res.Findings = append(res.Findings, *finding)
		}
	}

	secrets, findings := checkDisclosure(page, doc)
	res.VulnerabilityTests.SecretsInComments = secrets
	res.Findings = append(res.Findings, findings...)

	res.SecurityScore = model.SecurityScore(res.Findings)

	s.log.WithFields(logrus.Fields{
		"url":      page.URL,
		"score":    res.SecurityScore,
		"findings": len(res.Findings),
		"missing":  len(res.MissingHeaders),
	}).Debug("security scan complete")
	return res
}
