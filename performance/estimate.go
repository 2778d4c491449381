package performance

import (
	"math/rand"
	"sync"
	"time"

	"github.com/siteaudit/backend/model"
)

const (
	baseScore   = 50
	desktopMin  = 20
	desktopMax  = 85
	mobileFloor = 15
	minPenalty  = 10
	maxPenalty  = 20
)

// PenaltySource supplies the desktop-to-mobile penalty, in [10, 20].
type PenaltySource interface {
	MobilePenalty() int
}

// RandomPenalty draws penalties from a seeded generator. Safe for concurrent use.
type RandomPenalty struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandomPenalty returns a penalty source whose sequence is fixed by seed.
func NewRandomPenalty(seed int64) *RandomPenalty {
	return &RandomPenalty{rnd: rand.New(rand.NewSource(seed))}
}

func (r *RandomPenalty) MobilePenalty() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return minPenalty + r.rnd.Intn(maxPenalty-minPenalty+1)
}

// FixedPenalty always returns the same penalty, clamped to [10, 20].
type FixedPenalty int

func (f FixedPenalty) MobilePenalty() int {
	return clamp(int(f), minPenalty, maxPenalty)
}

// EstimateDesktop is the heuristic desktop score. WordPress is penalised as a platform,
// regardless of how well the site is tuned.
func EstimateDesktop(signals model.TechnicalSignals, wp model.WordPressProfile) int {
	score := baseScore
	if signals.HasSSL {
		score += 5
	}
	if signals.HasCDN {
		score += 8
	}
	switch signals.Caching {
	case model.CachingEnabled:
		score += 10
	case model.CachingPartial:
		score += 5
	}
	switch signals.ImageOptimization {
	case model.ImagesGood:
		score += 8
	case model.ImagesNeedsImprovement:
		score += 3
	}
	switch {
	case wp.PluginCount > 25:
		score -= 20
	case wp.PluginCount > 15:
		score -= 12
	case wp.PluginCount > 10:
		score -= 8
	}
	if wp.IsWordPress {
		score -= 10
	}
	if !signals.HasSSL && !signals.HasCDN {
		score -= 8
	}
	return clamp(score, desktopMin, desktopMax)
}

// EstimateMobile subtracts the drawn penalty from desktop, floored at 15.
func EstimateMobile(desktop int, penalty PenaltySource) int {
	mobile := desktop - penalty.MobilePenalty()
	if mobile < mobileFloor {
		return mobileFloor
	}
	return mobile
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func seedNow() int64 {
	return time.Now().UnixNano()
}
