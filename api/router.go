// Package api exposes the analysis pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/siteaudit/backend/analyzer"
	"github.com/siteaudit/backend/fetcher"
	"github.com/siteaudit/backend/logging"
	"github.com/siteaudit/backend/middleware"
	"github.com/siteaudit/backend/prober"
	"github.com/siteaudit/backend/stats"
)

// Analyzer is the part of the pipeline the HTTP layer needs.
type Analyzer interface {
	Analyze(ctx context.Context, clientKey, rawURL string) (*analyzer.Report, error)
}

// Options wires the router. Statistics and Pipeline are optional.
type Options struct {
	Analyzer   Analyzer
	Statistics *logging.Statistics
	Pipeline   *stats.Storage
	// PoolStats is reported by the health endpoint when set.
	PoolStats func() prober.PoolStats
	// BurstRate and BurstSize configure the per-client token bucket; zero disables it.
	BurstRate float64
	BurstSize float64
	Log       *logrus.Entry
}

type handler struct {
	opts Options
}

// NewRouter builds the gin engine with middleware and the /api routes.
func NewRouter(opts Options) *gin.Engine {
	h := &handler{opts: opts}

	r := gin.New()
	r.Use(middleware.ErrorHandler(opts.Log))
	r.Use(middleware.RequestLogger(opts.Log))
	r.Use(middleware.CORS())
	if opts.BurstSize > 0 {
		r.Use(middleware.NewBurstGuard(opts.BurstRate, opts.BurstSize).Middleware())
	}
	if opts.Statistics != nil {
		r.Use(middleware.Stats(opts.Statistics, opts.Log))
	}

	api := r.Group("/api")
	{
		api.GET("/health", h.health)
		api.POST("/analyze", h.analyze)
		api.GET("/statistics", h.statistics)
		api.GET("/statistics/:month", h.monthlyStatistics)
	}
	return r
}

func (h *handler) health(c *gin.Context) {
	body := gin.H{"status": "ok", "time": time.Now().UTC()}
	if h.opts.PoolStats != nil {
		body["probes"] = h.opts.PoolStats()
	}
	c.JSON(http.StatusOK, body)
}

type analyzeRequest struct {
	URL string `json:"url" binding:"required"`
}

func (h *handler) analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "URL is required"})
		return
	}
	c.Set(middleware.TargetKey, req.URL)

	report, err := h.opts.Analyzer.Analyze(c.Request.Context(), c.ClientIP(), req.URL)
	if err != nil {
		status, msg := errorResponse(err)
		if status >= http.StatusInternalServerError {
			h.opts.Log.WithFields(logrus.Fields{"url": req.URL, "error": err.Error()}).Warn("analysis failed")
		}
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, report)
}

// errorResponse maps pipeline errors to a status code and a client-facing message.
func errorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, fetcher.ErrInvalidURL):
		return http.StatusBadRequest, "Invalid URL provided"
	case errors.Is(err, fetcher.ErrForbidden):
		return http.StatusForbidden, "Analysis of private or local addresses is not allowed"
	case errors.Is(err, analyzer.ErrRateLimited):
		return http.StatusTooManyRequests, "Rate limit exceeded. Please try again later."
	case errors.Is(err, fetcher.ErrInsufficientContent):
		return http.StatusInternalServerError, "The page returned too little content to analyze"
	case errors.Is(err, fetcher.ErrFetchFailed):
		return http.StatusInternalServerError, "Failed to fetch the website"
	default:
		return http.StatusInternalServerError, "Failed to analyze URL"
	}
}

func (h *handler) statistics(c *gin.Context) {
	body := gin.H{}
	if h.opts.Statistics != nil {
		for k, v := range h.opts.Statistics.GetStatistics() {
			body[k] = v
		}
	}
	if h.opts.Pipeline != nil {
		body["pipeline"] = h.opts.Pipeline.GetCurrentStats()
		body["months"] = h.opts.Pipeline.GetAllMonths()
	}
	c.JSON(http.StatusOK, body)
}

func (h *handler) monthlyStatistics(c *gin.Context) {
	if h.opts.Pipeline == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No statistics recorded"})
		return
	}
	month, ok := h.opts.Pipeline.GetMonthlyStats(c.Param("month"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No statistics for " + c.Param("month")})
		return
	}
	c.JSON(http.StatusOK, month)
}
