package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/siteaudit/backend/analyzer"
	"github.com/siteaudit/backend/api"
	"github.com/siteaudit/backend/config"
	"github.com/siteaudit/backend/logging"
	"github.com/siteaudit/backend/stats"
	"github.com/siteaudit/backend/store"
)

func main() {
	envLoaded := config.LoadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	log := logging.Component(logger, "server")
	if !envLoaded {
		log.Info("No .env file found, using environment variables")
	}

	gin.SetMode(cfg.GinMode)

	kv, err := store.Open(cfg.StoreDriver, cfg.SQLitePath)
	if err != nil {
		log.WithError(err).Fatal("failed to open store")
	}
	defer kv.Close()

	pipeline, err := stats.NewStorage(cfg.DataDir, logging.Component(logger, "stats"))
	if err != nil {
		log.WithError(err).Fatal("failed to initialize pipeline statistics")
	}
	pipeline.Cleanup(cfg.StatsRetentionMonths)

	visitors, err := logging.NewStatistics(cfg.DataDir, cfg.DevMode)
	if err != nil {
		log.WithError(err).Warn("failed to load saved statistics, starting fresh")
	}

	svc, err := analyzer.Build(cfg, kv, pipeline, logger)
	if err != nil {
		log.WithError(err).Fatal("failed to build analyzer")
	}
	defer svc.Close()

	router := api.NewRouter(api.Options{
		Analyzer:   svc,
		Statistics: visitors,
		Pipeline:   pipeline,
		PoolStats:  svc.PoolStats,
		BurstRate:  cfg.BurstRate,
		BurstSize:  cfg.BurstSize,
		Log:        logging.Component(logger, "api"),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{"port": cfg.Port, "store": cfg.StoreDriver}).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("forced shutdown")
	}
	if err := visitors.Save(); err != nil {
		log.WithError(err).Warn("failed to save statistics")
	}
	if err := pipeline.Shutdown(); err != nil {
		log.WithError(err).Warn("failed to save pipeline statistics")
	}
}
