package analyzer

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/siteaudit/backend/config"
	"github.com/siteaudit/backend/fetcher"
	"github.com/siteaudit/backend/logging"
	"github.com/siteaudit/backend/performance"
	"github.com/siteaudit/backend/prober"
	"github.com/siteaudit/backend/stats"
	"github.com/siteaudit/backend/store"
	"github.com/siteaudit/backend/techdetect"
	"github.com/siteaudit/backend/websec"
	"github.com/siteaudit/backend/wordpress"
)

// Service is an Analyzer together with the outbound client it owns.
type Service struct {
	*Analyzer
	client *prober.Client
}

// Build wires the full pipeline from cfg. kv backs the cache and the limiter; st may be nil.
func Build(cfg config.Config, kv store.KeyValueStore, st *stats.Storage, logger *logrus.Logger) (*Service, error) {
	client, err := prober.New(prober.Options{
		AllowPrivate:  cfg.AllowPrivateTargets,
		OutboundProxy: cfg.OutboundProxy,
		Concurrency:   cfg.ProbeConcurrency,
	}, logging.Component(logger, "prober"))
	if err != nil {
		return nil, fmt.Errorf("failed to create outbound client: %w", err)
	}
	transport := client.Transport()

	var lookup techdetect.Lookup
	if bw := techdetect.NewBuiltWithLookup(cfg.BuiltWithEndpoint, cfg.BuiltWithAPIKey, transport); bw != nil {
		lookup = bw
	}

	opts := Options{
		Fetcher: fetcher.New(transport, fetcher.Options{
			ProxyEndpoint: cfg.FetchProxyEndpoint,
			AllowPrivate:  cfg.AllowPrivateTargets,
		}, logging.Component(logger, "fetcher")),
		Detector:  techdetect.New(lookup, logging.Component(logger, "techdetect")),
		WordPress: wordpress.New(client, logging.Component(logger, "wordpress")),
		Scanner:   websec.New(client, websec.Options{}, logging.Component(logger, "websec")),
		Estimator: performance.NewEstimator(
			performance.NewPageSpeed(cfg.PageSpeedEndpoint, cfg.PageSpeedAPIKey, transport),
			nil,
			logging.Component(logger, "performance"),
		),
		Stats:              st,
		MaxRecommendations: cfg.MaxRecommendations,
		Log:                logging.Component(logger, "analyzer"),
	}
	if kv != nil {
		opts.Cache = store.NewCache(kv, cfg.CacheTTL)
		opts.Limiter = store.NewLimiter(kv, cfg.RateLimit, time.Minute)
	}
	return &Service{Analyzer: New(opts), client: client}, nil
}

// Close releases the probe worker pool.
func (s *Service) Close() {
	s.client.Close()
}

// PoolStats exposes the probe pool counters for the health endpoint.
func (s *Service) PoolStats() prober.PoolStats {
	return s.client.PoolStats()
}
