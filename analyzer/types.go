package analyzer

import (
	"time"

	"github.com/siteaudit/backend/model"
	"github.com/siteaudit/backend/scoring"
	"github.com/siteaudit/backend/websec"
)

// DataSource tells whether the performance scores were measured or estimated.
type DataSource string

const (
	DataReal      DataSource = "real"
	DataEstimated DataSource = "estimated"
)

// Confidence grades how much of the report rests on measured data.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Report is the complete inspection result for one URL
type Report struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	AnalyzedAt time.Time `json:"analyzedAt"`
	Cached     bool      `json:"cached"`
	ViaProxy   bool      `json:"viaProxy"`

	PerformanceScore int        `json:"performanceScore"`
	MobileScore      int        `json:"mobileScore"`
	DataSource       DataSource `json:"dataSource"`
	Confidence       Confidence `json:"confidence"`

	WordPress    model.WordPressProfile `json:"wordpress"`
	Signals      model.TechnicalSignals `json:"technicalSignals"`
	Technologies []model.Technology     `json:"technologies"`

	SecurityScore      int                       `json:"securityScore"`
	SecurityIssues     []model.SecurityFinding   `json:"securityIssues"`
	MissingHeaders     []string                  `json:"missingHeaders"`
	SSLAnalysis        websec.SSLAnalysis        `json:"sslAnalysis"`
	VulnerabilityTests websec.VulnerabilityTests `json:"vulnerabilityTests"`

	RiskScore       int               `json:"riskScore"`
	RiskLevel       scoring.RiskLevel `json:"riskLevel"`
	Recommendations []string          `json:"recommendations"`
}

// SeverityCounts tallies the report's findings by severity
func (r *Report) SeverityCounts() map[model.Severity]int {
	return model.CountBySeverity(r.SecurityIssues)
}
