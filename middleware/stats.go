package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/siteaudit/backend/logging"
)

// TargetKey is the context key under which the analyze handler stores the submitted URL.
const TargetKey = "analysis.target"

const saveEvery = 100

var timeNow = time.Now

// Stats tracks visitors and analysis requests, saving every 100 analyses.
func Stats(stats *logging.Statistics, log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := timeNow()

		stats.TrackVisitor(c.ClientIP())

		c.Next()

		if c.Request.Method != http.MethodPost || c.FullPath() != "/api/analyze" {
			return
		}
		loadTime := float64(timeNow().Sub(start).Milliseconds())
		total := stats.TrackAnalysis(c.GetString(TargetKey), loadTime, c.Writer.Status() >= http.StatusBadRequest)

		if total%saveEvery == 0 {
			go func() {
				if err := stats.Save(); err != nil {
					log.WithError(err).Warn("failed to save statistics")
				}
			}()
		}
	}
}
