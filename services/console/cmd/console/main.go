package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"pumpconsole/internal/util"
	"pumpconsole/pkg/events"
	"pumpconsole/pkg/storage"
	"pumpconsole/services/console/internal/apiclient"
	"pumpconsole/services/console/internal/app"
	"pumpconsole/services/console/internal/authstate"
	"pumpconsole/services/console/internal/config"
	"pumpconsole/services/console/internal/server"
	"pumpconsole/services/console/internal/session"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	durations, err := cfg.Durations()
	if err != nil {
		log.Fatalf("failed to parse durations: %v", err)
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	client := apiclient.NewClient(apiclient.Config{
		BaseURL: cfg.APIBaseURL,
		Timeout: durations.APITimeout,
		Metrics: apiclient.NewMetrics(registry),
	})

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer rdb.Close()
	store := session.NewRedisStoreWithClient(rdb, cfg.SessionKeyPrefix)
	if err := store.Ping(ctx); err != nil {
		log.Fatalf("failed to reach redis: %v", err)
	}

	refresher := session.NewRefresher(session.RefresherConfig{
		Store:      store,
		Tokens:     client,
		Credential: client,
		Lookahead:  durations.RefreshLookahead,
		Metrics:    client.Metrics(),
	})
	auth := authstate.New(authstate.Config{
		API:             client,
		Refresher:       refresher,
		Credential:      client,
		RefreshInterval: durations.RefreshInterval,
	})
	defer auth.Close()
	client.SetHooks(auth.BeforeRequest, auth.HandleUnauthorized)

	var archive storage.ObjectStore
	if cfg.MinioEndpoint != "" {
		minioStore, err := storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("failed to init report archive: %v", err)
		}
		archive = minioStore
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.AMQPURL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.EventsExchange)
		if err != nil {
			log.Fatalf("failed to init event publisher: %v", err)
		}
		publisher = amqpPublisher
	}

	appCore, err := app.New(app.Config{
		Client:         client,
		Auth:           auth,
		Archive:        archive,
		Events:         publisher,
		MaxUploadBytes: cfg.MaxUploadBytes,
		SearchDebounce: durations.PartSearchDebounce,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer appCore.Close()

	httpServer, err := server.New(server.Config{
		App:                     appCore,
		Redis:                   rdb,
		Metrics:                 promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		TrustedProxies:          trusted,
		AllowedOrigins:          cfg.AllowedOrigins,
		LoginRateLimitPerMinute: cfg.LoginRateLimitPerMinute,
		MaxUploadBytes:          cfg.MaxUploadBytes,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}
	defer httpServer.Close()

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Guards answer 503 until the stored session has been restored.
		if err := auth.Init(gctx); err != nil {
			logger.Warn("session restore failed", "err", err)
		}
		return nil
	})
	g.Go(func() error {
		slog.Info("server listening", "addr", addr, "api", cfg.APIBaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
	slog.Info("server stopped")
}
