package model

// FindingType classifies a SecurityFinding.
type FindingType string

const (
	FindingSecurityHeader        FindingType = "security_header"
	FindingSSLTLS                FindingType = "ssl_tls"
	FindingDirectoryListing      FindingType = "directory_listing"
	FindingInformationDisclosure FindingType = "information_disclosure"
	FindingInjection             FindingType = "injection"
	FindingXSS                   FindingType = "xss"
	FindingMisconfiguration      FindingType = "misconfiguration"
	FindingVersion               FindingType = "version"
	FindingPlugin                FindingType = "plugin"
	FindingTheme                 FindingType = "theme"
	FindingConfig                FindingType = "config"
	FindingFile                  FindingType = "file"
	FindingUserEnum              FindingType = "user_enum"
)

// Severity of a finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Penalty is the number of security-score points one finding of this severity costs.
func (s Severity) Penalty() int {
	switch s {
	case SeverityCritical:
		return 25
	case SeverityHigh:
		return 15
	case SeverityMedium:
		return 8
	case SeverityLow:
		return 3
	}
	return 0
}

// SecurityFinding is a single security-relevant condition. Recommendation is never empty.
type SecurityFinding struct {
	Type           FindingType `json:"type"`
	Severity       Severity    `json:"severity"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	Evidence       string      `json:"evidence,omitempty"`
	Recommendation string      `json:"recommendation"`
	CVSSScore      float64     `json:"cvssScore,omitempty"`
	CVEID          string      `json:"cveId,omitempty"`
}

// SecurityScore starts at 100 and subtracts each finding's penalty, clamped to [0, 100].
func SecurityScore(findings []SecurityFinding) int {
	score := 100
	for _, f := range findings {
		score -= f.Severity.Penalty()
	}
	if score < 0 {
		return 0
	}
	return score
}

// CountBySeverity tallies findings per severity.
func CountBySeverity(findings []SecurityFinding) map[Severity]int {
	counts := make(map[Severity]int, 4)
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}
