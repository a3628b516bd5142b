package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/queryforge/trustcore/pkg/api"
	"github.com/queryforge/trustcore/pkg/config"
	"github.com/queryforge/trustcore/pkg/keys"
	"github.com/queryforge/trustcore/pkg/observability"
	"github.com/queryforge/trustcore/pkg/rbac"
	"github.com/queryforge/trustcore/pkg/storage"
	"github.com/queryforge/trustcore/pkg/tokens"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.SetLevel(cfg.Observability.LogLevel)

	store, err := storage.NewRedisStore(cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer store.Close()

	var metrics *observability.Metrics
	registry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	keyManager := keys.NewManager(store, cfg.Keys, log)
	keyManager.Metrics = metrics
	if err := keyManager.Initialize(ctx); err != nil {
		log.Fatalf("Failed to initialize signing keys: %v", err)
	}
	if err := keyManager.StartRotation(); err != nil {
		log.Fatalf("Failed to start key rotation: %v", err)
	}
	defer keyManager.StopRotation()

	tokenService := tokens.NewService(store, keyManager, cfg.Tokens, log)
	tokenService.Metrics = metrics

	engine := rbac.NewEngine(store, cfg.RBAC, log)
	engine.Metrics = metrics
	if err := engine.Initialize(ctx); err != nil {
		log.Fatalf("Failed to seed system roles: %v", err)
	}

	apiServer := api.NewServer(store, keyManager, tokenService, engine, log)
	if cfg.Observability.MetricsEnabled {
		apiServer.Router().Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods("GET")
	}

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      apiServer,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Infof("Listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Errorf("Server error: %v", err)
		os.Exit(1)
	}
	log.Info("Stopped")
}
