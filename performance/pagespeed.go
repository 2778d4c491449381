package performance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
)

const (
	DefaultPageSpeedEndpoint = "https://www.googleapis.com/pagespeedonline/v5/runPagespeed"

	StrategyDesktop = "desktop"
	StrategyMobile  = "mobile"

	attemptTimeout = 30 * time.Second
	maxAttempts    = 3
	strategyDelay  = 1500 * time.Millisecond
)

// ErrNoScore means the response carried no well-formed performance score.
var ErrNoScore = errors.New("no performance score in response")

// errRateLimited is retried with backoff.
var errRateLimited = errors.New("rate limited")

// Sleeper waits for d or until ctx is done. Tests replace it to avoid real delays.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// PageSpeed queries a Lighthouse-backed speed-test API.
type PageSpeed struct {
	endpoint string
	apiKey   string
	client   *http.Client
	sleep    Sleeper
}

// NewPageSpeed returns nil when apiKey is empty, which makes the estimator use heuristics only.
func NewPageSpeed(endpoint, apiKey string, transport http.RoundTripper) *PageSpeed {
	if apiKey == "" {
		return nil
	}
	if endpoint == "" {
		endpoint = DefaultPageSpeedEndpoint
	}
	return &PageSpeed{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Transport: transport},
		sleep:    sleepContext,
	}
}

// Score returns the 0..100 performance score for one strategy. HTTP 429 is retried with
// exponential backoff (1s, 2s); every other failure ends the attempt sequence.
func (p *PageSpeed) Score(ctx context.Context, target, strategy string) (int, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			if err := p.sleep(ctx, backoff); err != nil {
				return 0, err
			}
		}
		score, err := p.fetch(ctx, target, strategy)
		if err == nil {
			return score, nil
		}
		lastErr = err
		if !errors.Is(err, errRateLimited) {
			return 0, err
		}
	}
	return 0, fmt.Errorf("%s: gave up after %d attempts: %w", strategy, maxAttempts, lastErr)
}

func (p *PageSpeed) fetch(ctx context.Context, target, strategy string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, attemptTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("url", target)
	q.Set("strategy", strategy)
	q.Set("category", "performance")
	q.Set("key", p.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return 0, errRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("pagespeed returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return 0, err
	}

	score := gjson.GetBytes(body, "lighthouseResult.categories.performance.score")
	if score.Type != gjson.Number {
		return 0, ErrNoScore
	}
	v := score.Float()
	if v < 0 || v > 1 {
		return 0, ErrNoScore
	}
	return int(math.Round(v * 100)), nil
}
