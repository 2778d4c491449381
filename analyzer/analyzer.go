// Package analyzer sequences fetching, detection, probing and scoring into one report per URL.
package analyzer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/siteaudit/backend/model"
	"github.com/siteaudit/backend/performance"
	"github.com/siteaudit/backend/scoring"
	"github.com/siteaudit/backend/stats"
	"github.com/siteaudit/backend/store"
	"github.com/siteaudit/backend/techdetect"
	"github.com/siteaudit/backend/websec"
	"github.com/siteaudit/backend/wordpress"
)

// ErrRateLimited is returned when the client has used up its quota for the current window.
var ErrRateLimited = errors.New("rate limit exceeded")

// analysisTimeout bounds one uncached analysis. Every stage has its own shorter timeouts.
const analysisTimeout = 2 * time.Minute

// PageFetcher validates and retrieves the target page.
type PageFetcher interface {
	Prepare(ctx context.Context, rawURL string) (string, error)
	Fetch(ctx context.Context, rawURL string) (*model.FetchedPage, error)
}

// TechDetector classifies the software stack of a page.
type TechDetector interface {
	Detect(ctx context.Context, page *model.FetchedPage) techdetect.Result
}

// WordPressAnalyzer fingerprints and probes WordPress sites.
type WordPressAnalyzer interface {
	Analyze(ctx context.Context, page *model.FetchedPage) wordpress.Result
}

// SecurityScanner runs the header, TLS, path and disclosure checks.
type SecurityScanner interface {
	Scan(ctx context.Context, page *model.FetchedPage) websec.Result
}

// PerformanceEstimator produces desktop and mobile scores.
type PerformanceEstimator interface {
	Estimate(ctx context.Context, target string, signals model.TechnicalSignals, wp model.WordPressProfile) performance.Scores
}

// Options wires the pipeline. Cache, Limiter and Stats are optional.
type Options struct {
	Fetcher            PageFetcher
	Detector           TechDetector
	WordPress          WordPressAnalyzer
	Scanner            SecurityScanner
	Estimator          PerformanceEstimator
	Cache              *store.Cache
	Limiter            *store.Limiter
	Stats              *stats.Storage
	MaxRecommendations int
	Log                *logrus.Entry
}

// Analyzer runs the inspection pipeline
type Analyzer struct {
	opts Options
	now  func() time.Time
}

// New creates an Analyzer. A zero MaxRecommendations uses the scoring default.
func New(opts Options) *Analyzer {
	if opts.MaxRecommendations == 0 {
		opts.MaxRecommendations = scoring.DefaultMaxRecommendations
	}
	return &Analyzer{opts: opts, now: time.Now}
}

// Analyze inspects rawURL on behalf of clientKey. It fails only on rate limiting, invalid or
// forbidden input, or when the page cannot be fetched; every later stage degrades instead.
func (a *Analyzer) Analyze(ctx context.Context, clientKey, rawURL string) (*Report, error) {
	log := a.opts.Log.WithFields(logrus.Fields{"client": clientKey, "url": rawURL})

	allowed, err := a.opts.Limiter.Allow(ctx, clientKey)
	if err != nil {
		log.WithError(err).Warn("rate limiter unavailable, allowing request")
	}
	if !allowed {
		a.record(stats.Delta{RateLimited: 1})
		return nil, ErrRateLimited
	}

	target, err := a.opts.Fetcher.Prepare(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	if report, ok := a.cached(ctx, target, log); ok {
		a.record(stats.Delta{CacheHits: 1})
		return report, nil
	}

	ctx, cancel := context.WithTimeout(ctx, analysisTimeout)
	defer cancel()

	page, err := a.opts.Fetcher.Fetch(ctx, target)
	if err != nil {
		a.record(stats.Delta{CacheMisses: 1, FetchFailures: 1})
		log.WithError(err).Info("fetch failed")
		return nil, err
	}

	report := a.inspect(ctx, page)
	if a.opts.Cache != nil {
		if err := a.opts.Cache.Save(ctx, target, report); err != nil {
			log.WithError(err).Warn("failed to cache report")
		}
	}

	delta := stats.Delta{Analyses: 1, CacheMisses: 1, Findings: len(report.SecurityIssues)}
	if page.ViaProxy {
		delta.ProxyFallbacks = 1
	}
	if report.DataSource == DataReal {
		delta.RealPerformance = 1
	} else {
		delta.EstimatedPerformance = 1
	}
	a.record(delta)

	log.WithFields(logrus.Fields{
		"risk":     report.RiskLevel,
		"security": report.SecurityScore,
		"findings": len(report.SecurityIssues),
	}).Info("analysis complete")
	return report, nil
}

// inspect runs the detectors in parallel over an already fetched page.
func (a *Analyzer) inspect(ctx context.Context, page *model.FetchedPage) *Report {
	signals := techdetect.Signals(page)
	passive := wordpress.Fingerprint(page)

	var (
		tech   techdetect.Result
		wp     wordpress.Result
		scan   websec.Result
		scores performance.Scores
		g      errgroup.Group
	)
	g.Go(func() error {
		tech = a.opts.Detector.Detect(ctx, page)
		return nil
	})
	g.Go(func() error {
		wp = a.opts.WordPress.Analyze(ctx, page)
		return nil
	})
	g.Go(func() error {
		scan = a.opts.Scanner.Scan(ctx, page)
		return nil
	})
	g.Go(func() error {
		scores = a.opts.Estimator.Estimate(ctx, page.URL, signals, passive)
		return nil
	})
	g.Wait()

	findings := make([]model.SecurityFinding, 0, len(scan.Findings)+len(wp.Findings))
	findings = append(findings, scan.Findings...)
	findings = append(findings, wp.Findings...)

	assessment := scoring.Aggregate(scoring.Input{
		Signals:          signals,
		WordPress:        wp.Profile,
		Findings:         findings,
		PerformanceScore: scores.PerformanceScore,
		MobileScore:      scores.MobileScore,
	}, a.opts.MaxRecommendations)

	technologies := tech.Technologies
	if technologies == nil {
		technologies = []model.Technology{}
	}

	return &Report{
		ID:                 uuid.NewString(),
		URL:                page.URL,
		AnalyzedAt:         a.now().UTC(),
		ViaProxy:           page.ViaProxy,
		PerformanceScore:   scores.PerformanceScore,
		MobileScore:        scores.MobileScore,
		DataSource:         dataSource(scores),
		Confidence:         confidence(scores, tech),
		WordPress:          wp.Profile,
		Signals:            signals,
		Technologies:       technologies,
		SecurityScore:      model.SecurityScore(findings),
		SecurityIssues:     findings,
		MissingHeaders:     scan.MissingHeaders,
		SSLAnalysis:        scan.SSLAnalysis,
		VulnerabilityTests: scan.VulnerabilityTests,
		RiskScore:          assessment.RiskScore,
		RiskLevel:          assessment.RiskLevel,
		Recommendations:    assessment.Recommendations,
	}
}

func (a *Analyzer) cached(ctx context.Context, target string, log *logrus.Entry) (*Report, bool) {
	if a.opts.Cache == nil {
		return nil, false
	}
	var report Report
	ok, err := a.opts.Cache.Load(ctx, target, &report)
	if err != nil {
		log.WithError(err).Warn("cache lookup failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	report.Cached = true
	return &report, true
}

func (a *Analyzer) record(d stats.Delta) {
	if a.opts.Stats != nil {
		a.opts.Stats.Add(d)
	}
}

func dataSource(s performance.Scores) DataSource {
	if s.UsingRealData {
		return DataReal
	}
	return DataEstimated
}

// confidence is high with both measured scores, medium with one measured score or a
// successful technology lookup, low otherwise.
func confidence(s performance.Scores, tech techdetect.Result) Confidence {
	switch {
	case s.RealScores == 2:
		return ConfidenceHigh
	case s.RealScores == 1 || tech.LookupHits > 0:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
