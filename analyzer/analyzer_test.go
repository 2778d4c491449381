package analyzer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siteaudit/backend/config"
	"github.com/siteaudit/backend/fetcher"
	"github.com/siteaudit/backend/model"
	"github.com/siteaudit/backend/performance"
	"github.com/siteaudit/backend/scoring"
	"github.com/siteaudit/backend/stats"
	"github.com/siteaudit/backend/store"
	"github.com/siteaudit/backend/techdetect"
	"github.com/siteaudit/backend/websec"
	"github.com/siteaudit/backend/wordpress"
)

var shopPage = "<html><head><title>Shop</title></head><body>" + strings.Repeat("<p>Products</p>", 10) + "</body></html>"

func testConfig() config.Config {
	cfg := config.Default()
	cfg.AllowPrivateTargets = true
	cfg.ProbeConcurrency = 4
	return cfg
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(shopPage))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newService(t *testing.T, cfg config.Config, st *stats.Storage) *Service {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	kv := store.NewMemoryStore(100, 0)
	t.Cleanup(func() { kv.Close() })

	svc, err := Build(cfg, kv, st, logger)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

func TestAnalyzePlainHTTPSite(t *testing.T) {
	site := newSite(t)
	st, err := stats.NewStorage(t.TempDir(), logrus.NewEntry(logrus.New()))
	require.NoError(t, err)
	defer st.Shutdown()

	svc := newService(t, testConfig(), st)

	report, err := svc.Analyze(context.Background(), "10.0.0.1", site.URL)
	require.NoError(t, err)

	assert.Equal(t, site.URL, report.URL)
	assert.NotEmpty(t, report.ID)
	assert.False(t, report.Cached)
	assert.False(t, report.WordPress.IsWordPress)
	assert.Len(t, report.SecurityIssues, 8)
	assert.Len(t, report.MissingHeaders, 7)
	assert.Equal(t, 30, report.SecurityScore)
	assert.False(t, report.SSLAnalysis.Enabled)
	assert.Equal(t, DataEstimated, report.DataSource)
	assert.Equal(t, ConfidenceLow, report.Confidence)
	assert.GreaterOrEqual(t, report.PerformanceScore, 20)
	assert.LessOrEqual(t, report.PerformanceScore, 100)
	assert.LessOrEqual(t, report.MobileScore, report.PerformanceScore)
	assert.NotEmpty(t, report.RiskLevel)
	assert.GreaterOrEqual(t, len(report.Recommendations), 3)
	assert.LessOrEqual(t, len(report.Recommendations), scoring.DefaultMaxRecommendations)
	counts := report.SeverityCounts()
	assert.Equal(t, 3, counts[model.SeverityHigh])
	assert.Equal(t, 2, counts[model.SeverityMedium])
	assert.Equal(t, 3, counts[model.SeverityLow])

	again, err := svc.Analyze(context.Background(), "10.0.0.1", site.URL)
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, report.ID, again.ID)
	assert.Equal(t, report.SecurityScore, again.SecurityScore)
	assert.Len(t, again.SecurityIssues, 8)

	current := st.GetCurrentStats()
	assert.Equal(t, 1, current.Analyses)
	assert.Equal(t, 1, current.CacheHits)
	assert.Equal(t, 1, current.CacheMisses)
	assert.Equal(t, 8, current.Findings)
	assert.Equal(t, 1, current.EstimatedPerformance)
}

func TestAnalyzeRateLimitPrecedesCache(t *testing.T) {
	site := newSite(t)
	cfg := testConfig()
	cfg.RateLimit = 1
	svc := newService(t, cfg, nil)

	_, err := svc.Analyze(context.Background(), "client-a", site.URL)
	require.NoError(t, err)

	_, err = svc.Analyze(context.Background(), "client-a", site.URL)
	assert.ErrorIs(t, err, ErrRateLimited)

	report, err := svc.Analyze(context.Background(), "client-b", site.URL)
	require.NoError(t, err)
	assert.True(t, report.Cached)
}

func TestAnalyzeRejectsBadInput(t *testing.T) {
	cfg := testConfig()
	cfg.AllowPrivateTargets = false
	svc := newService(t, cfg, nil)

	_, err := svc.Analyze(context.Background(), "c", "ftp://example.com")
	assert.ErrorIs(t, err, fetcher.ErrInvalidURL)

	_, err = svc.Analyze(context.Background(), "c", "http://192.168.0.10/")
	assert.ErrorIs(t, err, fetcher.ErrForbidden)
}

type failingFetcher struct{}

func (failingFetcher) Prepare(_ context.Context, raw string) (string, error) {
	return fetcher.Normalize(raw)
}

func (failingFetcher) Fetch(context.Context, string) (*model.FetchedPage, error) {
	return nil, fetcher.ErrFetchFailed
}

func TestAnalyzeCountsFetchFailures(t *testing.T) {
	st, err := stats.NewStorage(t.TempDir(), logrus.NewEntry(logrus.New()))
	require.NoError(t, err)
	defer st.Shutdown()

	a := New(Options{Fetcher: failingFetcher{}, Stats: st, Log: logrus.NewEntry(logrus.New())})
	_, err = a.Analyze(context.Background(), "c", "example.com")
	assert.ErrorIs(t, err, fetcher.ErrFetchFailed)
	assert.Equal(t, 1, st.GetCurrentStats().FetchFailures)
	assert.Equal(t, 0, st.GetCurrentStats().Analyses)
}

type stubPipeline struct {
	page   *model.FetchedPage
	scores performance.Scores
	lookup int
}

func (s stubPipeline) Prepare(_ context.Context, raw string) (string, error) {
	return fetcher.Normalize(raw)
}

func (s stubPipeline) Fetch(context.Context, string) (*model.FetchedPage, error) {
	return s.page, nil
}

func (s stubPipeline) Detect(context.Context, *model.FetchedPage) techdetect.Result {
	return techdetect.Result{Technologies: []model.Technology{{Name: "WordPress", Confidence: 95}}, LookupHits: s.lookup}
}

func (s stubPipeline) Analyze(_ context.Context, page *model.FetchedPage) wordpress.Result {
	return wordpress.Result{
		Profile: wordpress.Fingerprint(page),
		Findings: []model.SecurityFinding{
			{Type: model.FindingMisconfiguration, Severity: model.SeverityMedium, Title: "XML-RPC enabled"},
		},
	}
}

func (s stubPipeline) Scan(context.Context, *model.FetchedPage) websec.Result {
	return websec.Result{
		Findings:       []model.SecurityFinding{{Type: model.FindingSecurityHeader, Severity: model.SeverityHigh, Title: "Missing HSTS"}},
		MissingHeaders: []string{"strict-transport-security"},
		SSLAnalysis:    websec.SSLAnalysis{Enabled: true},
	}
}

func (s stubPipeline) Estimate(context.Context, string, model.TechnicalSignals, model.WordPressProfile) performance.Scores {
	return s.scores
}

func newStubAnalyzer(p stubPipeline) *Analyzer {
	return New(Options{
		Fetcher: p, Detector: p, WordPress: p, Scanner: p, Estimator: p,
		Log: logrus.NewEntry(logrus.New()),
	})
}

func TestAnalyzeMergesFindingsInOrder(t *testing.T) {
	page := &model.FetchedPage{
		URL:     "https://blog.example.com",
		HTML:    `<html><link href="/wp-content/themes/astra/style.css"><p>` + strings.Repeat("x", 120) + `</p></html>`,
		Headers: map[string]string{},
	}
	report, err := newStubAnalyzer(stubPipeline{page: page, scores: performance.Scores{PerformanceScore: 88, MobileScore: 71, UsingRealData: true, RealScores: 2}}).
		Analyze(context.Background(), "c", page.URL)
	require.NoError(t, err)

	require.Len(t, report.SecurityIssues, 2)
	assert.Equal(t, "Missing HSTS", report.SecurityIssues[0].Title)
	assert.Equal(t, "XML-RPC enabled", report.SecurityIssues[1].Title)
	assert.Equal(t, 100-15-8, report.SecurityScore)
	assert.True(t, report.WordPress.IsWordPress)
	assert.Equal(t, "Astra", report.WordPress.Theme)
	assert.Equal(t, DataReal, report.DataSource)
	assert.Equal(t, ConfidenceHigh, report.Confidence)
	assert.Equal(t, 88, report.PerformanceScore)
	assert.Equal(t, 71, report.MobileScore)
}

func TestConfidence(t *testing.T) {
	assert.Equal(t, ConfidenceHigh, confidence(performance.Scores{RealScores: 2}, techdetect.Result{}))
	assert.Equal(t, ConfidenceMedium, confidence(performance.Scores{RealScores: 1}, techdetect.Result{}))
	assert.Equal(t, ConfidenceMedium, confidence(performance.Scores{}, techdetect.Result{LookupHits: 3}))
	assert.Equal(t, ConfidenceLow, confidence(performance.Scores{}, techdetect.Result{}))
}
