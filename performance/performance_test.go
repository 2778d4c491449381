package performance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siteaudit/backend/model"
)

func testLog() *logrus.Entry {
	return logrus.NewEntry(logrus.New())
}

type sleepRecorder struct {
	waits []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func newPageSpeed(t *testing.T, h http.HandlerFunc) (*PageSpeed, *sleepRecorder) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	ps := NewPageSpeed(srv.URL, "key", http.DefaultTransport)
	rec := &sleepRecorder{}
	ps.sleep = rec.sleep
	return ps, rec
}

func TestEstimateDesktop(t *testing.T) {
	best := model.TechnicalSignals{HasSSL: true, HasCDN: true, Caching: model.CachingEnabled, ImageOptimization: model.ImagesGood}
	assert.Equal(t, 81, EstimateDesktop(best, model.WordPressProfile{}))

	astra := model.TechnicalSignals{HasSSL: true, Caching: model.CachingPartial, ImageOptimization: model.ImagesGood}
	assert.Equal(t, 50+5+5+8-10, EstimateDesktop(astra, model.WordPressProfile{IsWordPress: true, PluginCount: 2}))

	worst := model.TechnicalSignals{Caching: model.CachingDisabled, ImageOptimization: model.ImagesPoor}
	assert.Equal(t, 20, EstimateDesktop(worst, model.WordPressProfile{IsWordPress: true, PluginCount: 30}))
}

func TestEstimateBounds(t *testing.T) {
	for _, ssl := range []bool{true, false} {
		for _, cdn := range []bool{true, false} {
			for _, c := range []model.Caching{model.CachingEnabled, model.CachingPartial, model.CachingDisabled} {
				for _, plugins := range []int{0, 11, 16, 26} {
					d := EstimateDesktop(model.TechnicalSignals{HasSSL: ssl, HasCDN: cdn, Caching: c, ImageOptimization: model.ImagesGood},
						model.WordPressProfile{IsWordPress: plugins > 0, PluginCount: plugins})
					assert.GreaterOrEqual(t, d, 20)
					assert.LessOrEqual(t, d, 85)
					m := EstimateMobile(d, FixedPenalty(20))
					assert.GreaterOrEqual(t, m, 15)
					assert.Less(t, m, d)
				}
			}
		}
	}
}

func TestPenaltySources(t *testing.T) {
	assert.Equal(t, 10, FixedPenalty(3).MobilePenalty())
	assert.Equal(t, 20, FixedPenalty(40).MobilePenalty())

	a, b := NewRandomPenalty(42), NewRandomPenalty(42)
	for i := 0; i < 50; i++ {
		p := a.MobilePenalty()
		assert.Equal(t, p, b.MobilePenalty())
		assert.GreaterOrEqual(t, p, 10)
		assert.LessOrEqual(t, p, 20)
	}
}

func TestEstimatorWithoutCredential(t *testing.T) {
	e := NewEstimator(NewPageSpeed("", "", nil), FixedPenalty(12), testLog())
	s := e.Estimate(context.Background(), "https://example.com", model.TechnicalSignals{HasSSL: true, Caching: model.CachingPartial, ImageOptimization: model.ImagesGood}, model.WordPressProfile{})
	assert.Equal(t, Scores{PerformanceScore: 68, MobileScore: 56}, s)
}

func TestEstimatorRealScores(t *testing.T) {
	ps, rec := newPageSpeed(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "performance", r.URL.Query().Get("category"))
		if r.URL.Query().Get("strategy") == StrategyMobile {
			w.Write([]byte(`{"lighthouseResult":{"categories":{"performance":{"score":0.42}}}}`))
			return
		}
		w.Write([]byte(`{"lighthouseResult":{"categories":{"performance":{"score":0.92}}}}`))
	})

	s := NewEstimator(ps, FixedPenalty(10), testLog()).Estimate(context.Background(), "https://example.com", model.TechnicalSignals{}, model.WordPressProfile{})
	assert.Equal(t, 92, s.PerformanceScore)
	assert.Equal(t, 42, s.MobileScore)
	assert.True(t, s.UsingRealData)
	assert.Equal(t, 2, s.RealScores)
	assert.Equal(t, []time.Duration{strategyDelay}, rec.waits)
}

func TestEstimatorPartialFallback(t *testing.T) {
	ps, _ := newPageSpeed(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("strategy") == StrategyMobile {
			w.Write([]byte(`{"lighthouseResult":{"categories":{}}}`))
			return
		}
		w.Write([]byte(`{"lighthouseResult":{"categories":{"performance":{"score":0.7}}}}`))
	})

	signals := model.TechnicalSignals{HasSSL: true, HasCDN: true, Caching: model.CachingEnabled, ImageOptimization: model.ImagesGood}
	s := NewEstimator(ps, FixedPenalty(15), testLog()).Estimate(context.Background(), "https://example.com", signals, model.WordPressProfile{})
	assert.Equal(t, 70, s.PerformanceScore)
	assert.Equal(t, 81-15, s.MobileScore)
	assert.False(t, s.UsingRealData)
	assert.Equal(t, 1, s.RealScores)
}

func TestScoreBacksOffOn429(t *testing.T) {
	var calls int32
	ps, rec := newPageSpeed(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"lighthouseResult":{"categories":{"performance":{"score":0.5}}}}`))
	})

	score, err := ps.Score(context.Background(), "https://example.com", StrategyDesktop)
	require.NoError(t, err)
	assert.Equal(t, 50, score)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.waits)
}

func TestScoreGivesUp(t *testing.T) {
	var calls int32
	ps, _ := newPageSpeed(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := ps.Score(context.Background(), "https://example.com", StrategyMobile)
	assert.Error(t, err)
	assert.Equal(t, int32(maxAttempts), atomic.LoadInt32(&calls))

	calls = 0
	ps, _ = newPageSpeed(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err = ps.Score(context.Background(), "https://example.com", StrategyMobile)
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestScoreRejectsMalformed(t *testing.T) {
	ps, _ := newPageSpeed(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"lighthouseResult":{"categories":{"performance":{"score":"fast"}}}}`))
	})
	_, err := ps.Score(context.Background(), "https://example.com", StrategyDesktop)
	assert.ErrorIs(t, err, ErrNoScore)
}
