package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// BurstGuard is a per-client token bucket in front of every route. It smooths request
// floods; the per-minute analysis quota is enforced separately by the analyzer.
type BurstGuard struct {
	tokens     map[string]float64
	lastRefill map[string]time.Time
	mu         sync.Mutex
	rate       float64 // tokens per second
	bucketSize float64
	idleAfter  time.Duration
	lastPrune  time.Time
	now        func() time.Time
}

// NewBurstGuard allows bursts of bucketSize refilled at rate tokens per second.
func NewBurstGuard(rate, bucketSize float64) *BurstGuard {
	return &BurstGuard{
		tokens:     make(map[string]float64),
		lastRefill: make(map[string]time.Time),
		rate:       rate,
		bucketSize: bucketSize,
		idleAfter:  10 * time.Minute,
		now:        time.Now,
	}
}

// Take consumes one token for client and reports whether one was available.
func (g *BurstGuard) Take(client string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.pruneLocked(now)

	last, seen := g.lastRefill[client]
	if !seen {
		g.tokens[client] = g.bucketSize
		last = now
	}

	elapsed := now.Sub(last).Seconds()
	g.tokens[client] = min(g.bucketSize, g.tokens[client]+elapsed*g.rate)
	g.lastRefill[client] = now

	if g.tokens[client] < 1 {
		return false
	}
	g.tokens[client]--
	return true
}

// pruneLocked drops buckets that have been idle long enough to be full again.
func (g *BurstGuard) pruneLocked(now time.Time) {
	if now.Sub(g.lastPrune) < g.idleAfter {
		return
	}
	g.lastPrune = now
	for client, last := range g.lastRefill {
		if now.Sub(last) > g.idleAfter {
			delete(g.lastRefill, client)
			delete(g.tokens, client)
		}
	}
}

// Middleware rejects requests with 429 once the client's bucket is empty.
func (g *BurstGuard) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.Take(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			return
		}
		c.Next()
	}
}
