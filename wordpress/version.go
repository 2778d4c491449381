package wordpress

import (
	"strconv"
	"strings"
)

type vulnerableRelease struct {
	Prefix      string
	CVE         string
	Description string
}

// vulnerableReleases is matched by release-line prefix: "4.7" covers 4.7, 4.7.0 and 4.7.5 but not 4.70.
var vulnerableReleases = []vulnerableRelease{
	{Prefix: "4.7", CVE: "CVE-2017-1001000", Description: "REST API content injection lets unauthenticated users modify posts"},
	{Prefix: "5.0", CVE: "CVE-2019-8942", Description: "Post meta path traversal allows remote code execution by authors"},
	{Prefix: "5.8", CVE: "CVE-2022-21661", Description: "WP_Query SQL injection through improper sanitization"},
	{Prefix: "6.2", CVE: "CVE-2023-2745", Description: "Directory traversal through the wp_lang parameter"},
}

const vulnerableCVSS = 8.5

// normalizeVersion pads or truncates a dotted version to major.minor.patch.
// Non-numeric parts read as zero.
func normalizeVersion(v string) string {
	parts := strings.Split(strings.TrimSpace(v), ".")
	out := make([]string, 3)
	for i := range out {
		n := 0
		if i < len(parts) {
			n, _ = strconv.Atoi(parts[i])
		}
		out[i] = strconv.Itoa(n)
	}
	return strings.Join(out, ".")
}

func lookupVulnerable(version string) (vulnerableRelease, bool) {
	if version == "" {
		return vulnerableRelease{}, false
	}
	v := normalizeVersion(version)
	for _, r := range vulnerableReleases {
		if v == r.Prefix || strings.HasPrefix(v, r.Prefix+".") {
			return r, true
		}
	}
	return vulnerableRelease{}, false
}

// isOutdated is a fixed freshness cut-off at 6.4, not a comparison with the latest release.
func isOutdated(version string) bool {
	parts := strings.Split(normalizeVersion(version), ".")
	major, _ := strconv.Atoi(parts[0])
	minor, _ := strconv.Atoi(parts[1])
	return major < 6 || (major == 6 && minor < 4)
}
