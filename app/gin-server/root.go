package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/yoockh/mockinterview/config"
	"github.com/yoockh/mockinterview/internal/logger"
	"github.com/yoockh/mockinterview/internal/observability"
	"github.com/yoockh/mockinterview/internal/telemetry"
)

const serviceName = "mockinterview"

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:          "gin-server",
		Short:        "Mock interview scheduling, quota and live session API",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "optional config file (yaml, json or toml)")

	root.AddCommand(
		newServeCmd(&configFile),
		newWorkerCmd(&configFile),
		newMigrateCmd(&configFile),
	)
	return root
}

// app holds what every sub-command opens before doing its own work.
type app struct {
	cfg     *config.Settings
	log     *logrus.Logger
	metrics *observability.Metrics
	db      *gorm.DB
	rdb     *redis.Client

	shutdownTracer func(context.Context) error
}

func bootstrap(ctx context.Context, configFile string, needRedis bool) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	rt := &app{cfg: cfg, log: logger.New(cfg.LogLevel)}

	if cfg.OTELEnabled {
		shutdown, err := telemetry.InitTracer(serviceName, rt.log)
		if err != nil {
			return nil, err
		}
		rt.shutdownTracer = shutdown
	}

	rt.metrics = observability.NewMetrics(cfg.MetricsNamespace, prometheus.DefaultRegisterer)

	rt.db, err = config.OpenPostgres(cfg.PostgresURI, rt.log)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.log.Info("PostgreSQL connected")

	if needRedis {
		rt.rdb, err = config.OpenRedis(ctx, cfg.RedisAddr)
		if err != nil {
			rt.close()
			return nil, err
		}
		rt.log.Info("Redis connected")
	}
	return rt, nil
}

func (rt *app) close() {
	if rt.rdb != nil {
		_ = rt.rdb.Close()
	}
	if rt.db != nil {
		if sqlDB, err := rt.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if rt.shutdownTracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = rt.shutdownTracer(ctx)
	}
}
