package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siteaudit/backend/logging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func TestErrorHandlerRecovers(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler(quietLog()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "unexpected error")
}

func TestCORSPreflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS())
	r.POST("/api/analyze", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/analyze", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestBurstGuardRefills(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := NewBurstGuard(1, 2)
	g.now = func() time.Time { return now }

	assert.True(t, g.Take("a"))
	assert.True(t, g.Take("a"))
	assert.False(t, g.Take("a"))
	assert.True(t, g.Take("b"))

	now = now.Add(1500 * time.Millisecond)
	assert.True(t, g.Take("a"))
	assert.False(t, g.Take("a"))

	now = now.Add(time.Hour)
	assert.True(t, g.Take("c"))
	assert.NotContains(t, g.tokens, "b")
}

func TestBurstGuardMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(NewBurstGuard(0, 1).Middleware())
	r.GET("/api/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestStatsTracksAnalyses(t *testing.T) {
	stats, err := logging.NewStatistics(t.TempDir(), true)
	require.NoError(t, err)

	r := gin.New()
	r.Use(Stats(stats, quietLog()))
	r.POST("/api/analyze", func(c *gin.Context) {
		c.Set(TargetKey, "https://www.example.com/page")
		c.Status(http.StatusBadRequest)
	})
	r.GET("/api/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodPost, "/api/analyze", nil),
		httptest.NewRequest(http.MethodGet, "/api/health", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	summary := stats.GetStatistics()
	assert.Equal(t, 1, summary["totalRequests"])
	assert.Equal(t, 1, summary["uniqueVisitors24h"])
	assert.Equal(t, 100.0, summary["errorRate"])
	hosts := stats.GetPopularHosts(5)
	require.Len(t, hosts, 1)
	assert.Equal(t, "example.com", hosts[0].Host)
}
