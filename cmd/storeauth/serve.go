package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MrEthical07/storeauth"
	"github.com/MrEthical07/storeauth/account"
	"github.com/MrEthical07/storeauth/account/memory"
	"github.com/MrEthical07/storeauth/account/postgres"
	"github.com/MrEthical07/storeauth/cache"
	"github.com/MrEthical07/storeauth/httpapi"
	"github.com/MrEthical07/storeauth/internal/appconfig"
	"github.com/MrEthical07/storeauth/internal/logger"
	"github.com/MrEthical07/storeauth/mailer"
	"github.com/MrEthical07/storeauth/oauth/google"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(flags *rootFlags) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if err := logger.Init(cfg.Logger()); err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			if migrate && cfg.DatabaseURL != "" {
				if err := postgres.Migrate(cmd.Context(), cfg.DatabaseURL); err != nil {
					return err
				}
			}
			return serve(cmd.Context(), cfg, logger.L())
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply database migrations before serving")
	return cmd
}

func serve(ctx context.Context, cfg *appconfig.Config, log *zap.Logger) error {
	engineCfg, err := cfg.Engine()
	if err != nil {
		return err
	}

	repo, closeRepo, err := openAccounts(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeRepo()

	store, closeCache, err := openCache(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeCache()

	var notifier storeauth.Notifier = mailer.NewLog(log)
	if cfg.SMTPEnabled() {
		smtp, err := mailer.NewSMTP(cfg.SMTPConfig(), log)
		if err != nil {
			return err
		}
		notifier = smtp
	}

	var sink storeauth.AuditSink = storeauth.NewZapSink(log.Named("audit"))
	if cfg.Audit.Sink == "json" {
		sink = storeauth.NewJSONWriterSink(os.Stdout)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	b := storeauth.New().
		WithConfig(engineCfg).
		WithAccounts(repo).
		WithCache(store).
		WithNotifier(notifier).
		WithLogger(log).
		WithAuditSink(sink).
		WithMetrics(reg)
	if cfg.GoogleEnabled() {
		p, err := google.New(cfg.GoogleConfig())
		if err != nil {
			return err
		}
		b = b.WithOAuthProvider(p)
	}
	engine, err := b.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	log.Info("security report", zap.Any("report", engine.SecurityReport()))

	handler, err := httpapi.NewRouter(engine, httpapi.Options{Logger: log, Registerer: reg, Gatherer: reg})
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("http shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if n := engine.AuditDropped(); n > 0 {
		log.Warn("audit events dropped", zap.Uint64("count", n))
	}
	return nil
}

func openAccounts(ctx context.Context, cfg *appconfig.Config, log *zap.Logger) (account.Repository, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, accounts are kept in memory")
		return memory.New(), func() {}, nil
	}
	store, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func openCache(ctx context.Context, cfg *appconfig.Config, log *zap.Logger) (cache.Client, func(), error) {
	if cfg.RedisURL == "" {
		log.Warn("REDIS_URL not set, sessions are kept in process memory")
		return cache.NewMemory(), func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return cache.NewRedis(rdb, cfg.RedisPrefix), func() { _ = rdb.Close() }, nil
}
