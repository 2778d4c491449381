// Package scoring turns signals, findings and performance scores into a risk level and recommendations.
package scoring

import (
	"github.com/siteaudit/backend/model"
)

// RiskLevel is the overall risk bucket of a site.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

const (
	DefaultMaxRecommendations = 8
	minRecommendations        = 3
	minRecommendationCap      = 6
)

// Input is everything the aggregation reads.
type Input struct {
	Signals          model.TechnicalSignals
	WordPress        model.WordPressProfile
	Findings         []model.SecurityFinding
	PerformanceScore int
	MobileScore      int
}

// Assessment is the aggregated risk and the recommendations for a site.
type Assessment struct {
	RiskScore       int       `json:"riskScore"`
	RiskLevel       RiskLevel `json:"riskLevel"`
	Recommendations []string  `json:"recommendations"`
}

// Aggregate computes the risk and the recommendation list, capped at maxRecommendations
// (clamped to [6, 8]; zero means 8).
func Aggregate(in Input, maxRecommendations int) Assessment {
	score := RiskScore(in)
	return Assessment{
		RiskScore:       score,
		RiskLevel:       Level(score),
		Recommendations: Recommendations(in, maxRecommendations),
	}
}

// RiskScore adds up weighted risk points.
func RiskScore(in Input) int {
	points := 0
	switch {
	case in.PerformanceScore < 50:
		points += 3
	case in.PerformanceScore < 70:
		points += 2
	case in.PerformanceScore < 80:
		points++
	}
	switch {
	case in.MobileScore < 50:
		points += 2
	case in.MobileScore < 70:
		points++
	}
	if !in.Signals.HasSSL {
		points += 3
	}
	if !in.Signals.HasCDN {
		points++
	}
	if in.Signals.Caching == model.CachingDisabled {
		points += 2
	}
	if in.WordPress.PluginCount > 20 {
		points += 2
	}
	if in.WordPress.IsWordPress && versionUnsafe(in.WordPress) {
		points += 2
	}
	if model.CountBySeverity(in.Findings)[model.SeverityCritical] > 0 {
		points += 2
	}
	return points
}

// Level maps risk points to a level: 7+ critical, 5+ high, 3+ medium.
func Level(points int) RiskLevel {
	switch {
	case points >= 7:
		return RiskCritical
	case points >= 5:
		return RiskHigh
	case points >= 3:
		return RiskMedium
	default:
		return RiskLow
	}
}

// versionUnsafe is true for outdated versions and for versions that could not be read.
func versionUnsafe(wp model.WordPressProfile) bool {
	return wp.IsVersionOutdated == nil || *wp.IsVersionOutdated
}
