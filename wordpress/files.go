package wordpress

import (
	"strings"

	"github.com/siteaudit/backend/model"
)

// sensitiveFiles are probed with HEAD relative to the site root.
var sensitiveFiles = []string{
	"/wp-config.php.bak",
	"/wp-config.php.old",
	"/wp-config.php.save",
	"/wp-config.php.swp",
	"/wp-config.php~",
	"/wp-config.php.orig",
	"/wp-config.bak",
	"/wp-config.txt",
	"/wp-content/debug.log",
	"/readme.html",
	"/license.txt",
	"/wp-admin/install.php",
	"/wp-admin/setup-config.php",
	"/wp-admin/upgrade.php",
	"/wp-content/uploads/",
	"/wp-content/backup-db/",
}

func fileSeverity(path string) (model.Severity, model.FindingType) {
	switch {
	case strings.Contains(path, "wp-config"):
		return model.SeverityCritical, model.FindingConfig
	case strings.HasSuffix(path, "debug.log"):
		return model.SeverityHigh, model.FindingFile
	default:
		return model.SeverityMedium, model.FindingFile
	}
}

func exposedFileFinding(path, url string) model.SecurityFinding {
	sev, typ := fileSeverity(path)
	f := model.SecurityFinding{
		Type:           typ,
		Severity:       sev,
		Title:          "Sensitive file exposed: " + path,
		Description:    "The file " + path + " is publicly reachable and may reveal configuration, credentials or version details.",
		Evidence:       url,
		Recommendation: "Remove " + path + " from the web root or deny access to it in the server configuration.",
	}
	if sev == model.SeverityCritical {
		f.Recommendation = "Delete the configuration backup " + path + " immediately and rotate the database credentials and salts it contains."
	}
	return f
}
