package websec

import (
	"context"
	"net/http"
	"strings"

	"github.com/siteaudit/backend/model"
	"github.com/siteaudit/backend/prober"
)

// exposedPaths are HEAD-probed relative to the site root. Sites that answer 200 for
// every path (single-page apps, catch-all routes) report all of them as exposed.
var exposedPaths = []string{
	"/.env",
	"/.env.backup",
	"/.git/",
	"/.git/config",
	"/.svn/",
	"/.htaccess",
	"/.htpasswd",
	"/config.php",
	"/config.json",
	"/admin",
	"/administrator",
	"/backup",
	"/backup.zip",
	"/backup.sql",
	"/phpinfo.php",
	"/server-status",
	"/server-info",
}

func pathSeverity(path string) (model.Severity, model.FindingType) {
	switch {
	case strings.HasPrefix(path, "/.env"), strings.HasPrefix(path, "/config."), path == "/.htpasswd":
		return model.SeverityCritical, model.FindingConfig
	case strings.HasPrefix(path, "/.git"), strings.HasPrefix(path, "/.svn"), strings.HasPrefix(path, "/admin"):
		return model.SeverityHigh, model.FindingFile
	default:
		return model.SeverityMedium, model.FindingFile
	}
}

func (s *Scanner) probeExposedPaths(ctx context.Context, base string) ([]string, []model.SecurityFinding) {
	reqs := make([]prober.Request, 0, len(exposedPaths))
	for _, p := range exposedPaths {
		reqs = append(reqs, prober.Request{Name: p, Method: http.MethodHead, URL: base + p, Timeout: s.opts.PathTimeout})
	}

	exposed := []string{}
	var findings []model.SecurityFinding
	for _, o := range s.client.ProbeAll(ctx, reqs, prober.Status2xx) {
		if !o.Detected() {
			continue
		}
		exposed = append(exposed, o.Name)
		sev, typ := pathSeverity(o.Name)
		findings = append(findings, model.SecurityFinding{
			Type:           typ,
			Severity:       sev,
			Title:          "Exposed path: " + o.Name,
			Description:    o.Name + " responds successfully to unauthenticated requests.",
			Evidence:       o.URL,
			Recommendation: "Remove " + o.Name + " from the public web root or block it in the server configuration.",
		})
	}
	return exposed, findings
}
