// Command lotteryd runs the lottery decision core: the Draw RPC and admin
// HTTP surface, plus the hourly metrics rollup and pricing-activation
// sweep jobs. Bootstrap follows cmd/appserver/main.go's shape (flags
// overriding config/env, migrate-on-start, signal-based graceful shutdown).
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/r3e-network/lottery-core/assetclient"
	"github.com/r3e-network/lottery-core/domain/selector"
	"github.com/r3e-network/lottery-core/executor"
	"github.com/r3e-network/lottery-core/httpapi"
	"github.com/r3e-network/lottery-core/internal/config"
	"github.com/r3e-network/lottery-core/internal/lock"
	"github.com/r3e-network/lottery-core/internal/logging"
	"github.com/r3e-network/lottery-core/internal/metrics"
	"github.com/r3e-network/lottery-core/domain/outbox"
	"github.com/r3e-network/lottery-core/internal/redisstore"
	"github.com/r3e-network/lottery-core/metricsjob"
	"github.com/r3e-network/lottery-core/outboxjob"
	"github.com/r3e-network/lottery-core/pipeline"
	"github.com/r3e-network/lottery-core/pricingjob"
	"github.com/r3e-network/lottery-core/store/migrations"
	"github.com/r3e-network/lottery-core/store/postgres"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides config/env)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New("lotteryd", cfg.Logging.Level, cfg.Logging.Format)

	ctx := context.Background()

	store, err := postgres.Open(ctx, postgres.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
	})
	if err != nil {
		logger.WithError(err).Fatal("connect to postgres")
	}
	defer store.Close()

	if cfg.Database.MigrateOnStart {
		if err := migrations.Apply(store.DB().DB); err != nil {
			logger.WithError(err).Fatal("apply migrations")
		}
	}

	redisStore := redisstore.New(redisstore.Config{
		Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB, PoolSize: cfg.Redis.PoolSize,
	})
	defer redisStore.Close()

	lockSvc := lock.New(redisStore.Client())

	assetClient, err := assetclient.New(assetclient.Config{
		BaseURL: cfg.AssetClient.BaseURL, Token: cfg.AssetClient.Token, Timeout: cfg.AssetClient.Timeout,
	})
	if err != nil {
		logger.WithError(err).Fatal("construct asset client")
	}

	m := metrics.New("lotteryd")

	exec := executor.New(store, redisStore, lockSvc, assetClient, m, logger, executor.Config{
		LockAcquireTimeout:      cfg.Draw.LockAcquireTimeout,
		LockTTL:                 cfg.Draw.LockTTL,
		IdempotencyCommittedTTL: cfg.Draw.IdempotencyCommittedTTL,
	})

	pipe := pipeline.New(store, redisStore, assetClient, exec, logger, m, pipeline.Config{
		DecisionDeadline:        cfg.Draw.DecisionDeadline,
		IdempotencyInFlightTTL:  cfg.Draw.IdempotencyInFlightTTL,
		IdempotencyCommittedTTL: cfg.Draw.IdempotencyCommittedTTL,
		DefaultPityThreshold:    int64(cfg.Draw.DefaultPityThreshold),
		AntiEmptyThreshold:      int64(cfg.Draw.AntiEmptyThreshold),
		AntiHighThreshold:       int64(cfg.Draw.AntiHighThreshold),
		AntiHighCooldownRounds:  int64(cfg.Draw.AntiHighCooldownRounds),
	}, func() selector.RNG { return selector.CryptoRNG{} })

	metricsRollup := metricsjob.New(store, redisStore, logger, metricsjob.Config{
		DecisionRetentionHours: cfg.Draw.DecisionRetentionHours,
	})
	if err := metricsRollup.Start(ctx); err != nil {
		logger.WithError(err).Fatal("start metrics rollup job")
	}
	defer metricsRollup.Stop(context.Background())

	pricingSweep := pricingjob.New(store, logger, pricingjob.Config{})
	if err := pricingSweep.Start(ctx); err != nil {
		logger.WithError(err).Fatal("start pricing activation sweep")
	}
	defer pricingSweep.Stop(context.Background())

	outboxResolver := outboxjob.New(postgres.NewOutboxStore(store), assetClient, m, logger, outboxjob.Config{
		Schedule:   cfg.Outbox.Schedule,
		BatchLimit: cfg.Outbox.BatchLimit,
		RetryPolicy: outbox.RetryPolicy{
			MaxAttempts: cfg.Outbox.MaxAttempts,
			BaseBackoff: cfg.Outbox.BaseBackoff,
			MaxBackoff:  cfg.Outbox.MaxBackoff,
		},
	})
	if err := outboxResolver.Start(ctx); err != nil {
		logger.WithError(err).Fatal("start outbox resolver")
	}
	defer outboxResolver.Stop(context.Background())

	health := httpapi.NewHealthChecker("lottery-core")
	health.RegisterCheck("postgres", func() error { return store.Ping(ctx) })
	health.RegisterCheck("redis", func() error { return redisStore.Ping(ctx) })

	router := httpapi.NewRouter(pipe, store, logger, m, health, httpapi.Config{
		AdminBearerTokenHash: cfg.Admin.BearerTokenHash,
		RateLimitPerSecond:   50,
		RateLimitBurst:       100,
	})

	listenAddr := determineAddr(*addr, cfg)
	server := &http.Server{Addr: listenAddr, Handler: router}

	go func() {
		logger.WithFields(map[string]interface{}{"addr": listenAddr}).Info("lotteryd listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("http server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
	}
}

func determineAddr(flagAddr string, cfg *config.Config) string {
	if flagAddr != "" {
		return flagAddr
	}
	if cfg.Server.Port != 0 {
		host := cfg.Server.Host
		if host == "" {
			host = "0.0.0.0"
		}
		return host + ":" + strconv.Itoa(cfg.Server.Port)
	}
	return ":8080"
}
