package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/crm-automation/internal/api"
	"github.com/ignite/crm-automation/internal/config"
	"github.com/ignite/crm-automation/internal/pkg/distlock"
	"github.com/ignite/crm-automation/internal/pkg/logger"
	"github.com/ignite/crm-automation/internal/repository/postgres"
	"github.com/ignite/crm-automation/internal/sending"
	"github.com/ignite/crm-automation/internal/service/assignment"
	"github.com/ignite/crm-automation/internal/service/campaign"
	"github.com/ignite/crm-automation/internal/service/scoring"
	"github.com/ignite/crm-automation/internal/service/segment"
	"github.com/ignite/crm-automation/internal/service/suppression"
	"github.com/ignite/crm-automation/internal/worker"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config (optional)")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		fatal("load config", err)
	}
	if err := cfg.Validate(); err != nil {
		fatal("invalid config", err)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactPII(cfg.Logging.Redact())
	if cfg.Logging.File != "" {
		closer := logger.ConfigureFile(logger.FileOptions{
			Path:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   cfg.Logging.Compress,
		})
		defer closer.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Open(ctx, cfg.Database.URL, postgres.PoolOptions{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime(),
	})
	if err != nil {
		fatal("connect postgres", err)
	}
	defer db.Close()
	logger.Info("[worker] connected to postgres")

	checks := map[string]api.HealthCheck{"postgres": db.PingContext}
	locks := distlock.Factory{TTL: cfg.Redis.LockTTL()}
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			fatal("parse redis url", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()

		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		err = rdb.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			logger.Warn("[worker] redis unreachable, using postgres advisory locks", "error", err)
		} else {
			locks.Redis = rdb
			checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
			logger.Info("[worker] connected to redis")
		}
	}
	if locks.Redis == nil {
		// Advisory locks pin a connection for the whole job, so they get a
		// pool of their own.
		lockDB, err := postgres.Open(ctx, cfg.Database.URL, postgres.PoolOptions{
			MaxOpenConns:    cfg.Database.LockMaxConns,
			MaxIdleConns:    cfg.Database.LockMaxConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime(),
		})
		if err != nil {
			fatal("connect postgres lock pool", err)
		}
		defer lockDB.Close()
		locks.AdvisoryDB = lockDB
	}

	var transport sending.Transport = sending.LogTransport{}
	if cfg.SES.Enabled {
		ses, err := sending.NewSESTransport(ctx, sending.SESOptions{
			Region:    cfg.SES.Region,
			AccessKey: cfg.SES.AccessKey,
			SecretKey: cfg.SES.SecretKey,
			FromEmail: cfg.SES.FromEmail,
			FromName:  cfg.SES.FromName,
			Timeout:   cfg.SES.Timeout(),
		})
		if err != nil {
			fatal("configure ses", err)
		}
		transport = ses
		logger.Info("[worker] sending through ses", "region", cfg.SES.Region)
	} else {
		logger.Warn("[worker] ses disabled, campaign mail is only logged")
	}

	store := postgres.NewStore(db)
	suppressions := suppression.NewService(postgres.NewSuppressionRepo(db))
	segments := segment.NewService(store)
	campaigns := campaign.NewService(store, suppressions, transport, campaign.Options{
		TrackingBaseURL: cfg.Tracking.BaseURL,
		BatchSize:       cfg.Campaigns.BatchSize,
		LiquidEnabled:   cfg.Campaigns.LiquidEnabled,
	})

	poller := worker.NewPoller(locks,
		worker.Job{
			Name:     worker.JobCampaigns,
			Interval: cfg.Polling.CampaignsInterval(),
			Run:      func(ctx context.Context) { campaigns.ProcessActiveCampaigns(ctx) },
		},
		worker.Job{
			Name:     worker.JobDynamicLists,
			Interval: cfg.Polling.DynamicListsInterval(),
			Run:      func(ctx context.Context) { segments.ProcessDynamicLists(ctx) },
		},
	)
	if err := poller.Start(); err != nil {
		fatal("start poller", err)
	}

	var server *http.Server
	if cfg.Ops.Enabled {
		h := api.NewHandlers(api.Deps{
			Jobs:         poller,
			Campaigns:    campaigns,
			Scoring:      scoring.NewService(store),
			Assignment:   assignment.NewService(store, assignment.WithLocks(locks)),
			Suppressions: suppressions,
			Checks:       checks,
		})
		server = &http.Server{
			Addr:              cfg.Ops.Addr,
			Handler:           api.SetupRoutes(h, cfg.Ops.AllowedOrigins),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("[worker] ops server listening", "addr", cfg.Ops.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("[worker] ops server failed", "error", err)
			}
		}()
	}

	logger.Info("[worker] running",
		"campaigns_interval", cfg.Polling.CampaignsInterval().String(),
		"dynamic_lists_interval", cfg.Polling.DynamicListsInterval().String())

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	<-done
	logger.Info("[worker] shutting down")

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("[worker] ops server shutdown", "error", err)
		}
		shutdownCancel()
	}
	poller.Stop()
	cancel()
	logger.Info("[worker] stopped")
}

func fatal(msg string, err error) {
	logger.Error("[worker] "+msg, "error", err)
	os.Exit(1)
}
