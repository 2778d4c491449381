// Package performance produces desktop and mobile performance scores from a speed-test API
// or, when that is unavailable, from a heuristic over the page's technical signals.
package performance

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/siteaudit/backend/model"
)

// Scores is the estimator output. RealScores counts how many of the two came from the API.
type Scores struct {
	PerformanceScore int  `json:"performanceScore"`
	MobileScore      int  `json:"mobileScore"`
	UsingRealData    bool `json:"usingRealData"`
	RealScores       int  `json:"-"`
}

// Estimator prefers measured scores and falls back to the heuristic per strategy.
type Estimator struct {
	pagespeed *PageSpeed
	penalty   PenaltySource
	log       *logrus.Entry
}

// NewEstimator accepts a nil PageSpeed. A nil penalty source defaults to a time-seeded one.
func NewEstimator(ps *PageSpeed, penalty PenaltySource, log *logrus.Entry) *Estimator {
	if penalty == nil {
		penalty = NewRandomPenalty(seedNow())
	}
	return &Estimator{pagespeed: ps, penalty: penalty, log: log}
}

// Estimate never fails. Each strategy that the API cannot answer falls back to the heuristic.
func (e *Estimator) Estimate(ctx context.Context, target string, signals model.TechnicalSignals, wp model.WordPressProfile) Scores {
	desktop := EstimateDesktop(signals, wp)
	out := Scores{
		PerformanceScore: desktop,
		MobileScore:      EstimateMobile(desktop, e.penalty),
	}
	if e.pagespeed == nil {
		return out
	}

	if score, err := e.pagespeed.Score(ctx, target, StrategyDesktop); err == nil {
		out.PerformanceScore = score
		out.RealScores++
	} else {
		e.log.WithFields(logrus.Fields{"url": target, "strategy": StrategyDesktop, "error": err.Error()}).Info("pagespeed unavailable, using estimate")
	}

	if err := e.pagespeed.sleep(ctx, strategyDelay); err != nil {
		return out
	}

	if score, err := e.pagespeed.Score(ctx, target, StrategyMobile); err == nil {
		out.MobileScore = score
		out.RealScores++
	} else {
		e.log.WithFields(logrus.Fields{"url": target, "strategy": StrategyMobile, "error": err.Error()}).Info("pagespeed unavailable, using estimate")
	}

	out.UsingRealData = out.RealScores == 2
	return out
}
