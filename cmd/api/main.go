package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/httplog"
	"github.com/marcelsud/webhook-gateway/config"
	"github.com/marcelsud/webhook-gateway/dispatch"
	"github.com/marcelsud/webhook-gateway/forward"
	"github.com/marcelsud/webhook-gateway/gateway"
	"github.com/marcelsud/webhook-gateway/internal/http/chi"
	"github.com/marcelsud/webhook-gateway/metrics"
	"github.com/marcelsud/webhook-gateway/notify"
	"github.com/marcelsud/webhook-gateway/providers"
	"github.com/marcelsud/webhook-gateway/ratelimit"
	"github.com/marcelsud/webhook-gateway/webhook"
	"github.com/marcelsud/webhook-gateway/webhook/memory"
	"github.com/marcelsud/webhook-gateway/webhook/postgres"
	webhookredis "github.com/marcelsud/webhook-gateway/webhook/redis"
	"github.com/marcelsud/webhook-gateway/webhook/verifier"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const TIMEOUT = 30 * time.Second

/* The entry point wires every package together
 * Imports flow one way: the binary imports the gateway and engine,
 * which import the storage layer.
 */

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	logger := httplog.NewLogger("webhook-gateway", httplog.Options{
		JSON: true,
	})

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
	)
	defer stop()

	var redisClient *redis.Client
	if cfg.UsesRedis() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("connecting to Redis: %w", err)
		}
	}

	repo, collector, err := openStore(cfg, redisClient)
	if err != nil {
		return err
	}
	defer repo.Close(context.Background())

	var limiter ratelimit.Limiter = ratelimit.NewMemory()
	if cfg.RateLimiter == config.StoreRedis {
		limiter = ratelimit.NewRedis(redisClient)
	}

	loader := providers.NewLoader()
	loader.DefaultToleranceSeconds = cfg.DefaultToleranceSeconds
	providerStore, err := providers.OpenStore(loader, cfg.ProvidersFile)
	if err != nil {
		return err
	}

	exporter, err := metrics.NewOTelExporter(collector)
	if err != nil {
		return err
	}
	counters, err := exporter.Observer()
	if err != nil {
		return err
	}
	observer := notify.Multi{notify.NewLog(logger), counters}

	service := webhook.NewService(repo)

	registry := dispatch.NewRegistry()
	client := &http.Client{Timeout: cfg.HandlerTimeout()}
	handlers, err := providerStore.Current().RegisterHandlers(registry, forward.Builder(client))
	if err != nil {
		return err
	}

	pool := dispatch.NewPool(cfg.Workers, cfg.QueueSize)
	pool.Start()

	engine := dispatch.NewEngine(registry, service, dispatch.Options{
		Executor:       pool,
		Observer:       observer,
		Logger:         logger,
		HandlerTimeout: cfg.HandlerTimeout(),
	})

	gw := gateway.New(gateway.Options{
		Providers:  providerStore,
		Verifiers:  verifier.NewRegistry(cfg.ProductionMode),
		Limiter:    limiter,
		Events:     service,
		Dispatcher: engine,
		Observer:   observer,
		Logger:     logger,
	})

	r := chi.WebhookHandlers(ctx, chi.Deps{
		Gateway:      gw,
		Providers:    providerStore,
		Events:       service,
		Reloader:     providerStore,
		Metrics:      exporter.ServeHTTP(),
		Logger:       logger,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Addr:         ":" + cfg.Port,
		Handler:      r,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().
			Str("port", cfg.Port).
			Str("store", cfg.Store).
			Str("rate_limiter", cfg.RateLimiter).
			Bool("production", cfg.ProductionMode).
			Int("providers", len(providerStore.List())).
			Int("handlers", handlers).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		reloadOnHangup(gctx, providerStore, logger)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return shutdown(srv, engine, pool, exporter, logger)
	})

	return g.Wait()
}

// openStore builds the event repository and the metrics collector reading it
func openStore(cfg *config.Config, client *redis.Client) (webhook.Repository, metrics.Collector, error) {
	switch cfg.Store {
	case config.StoreRedis:
		return webhookredis.NewRepositoryWithClient(client, cfg.DedupTTL()), metrics.NewRedisCollector(client), nil
	case config.StorePostgres:
		if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
			return nil, nil, err
		}
		repo, err := postgres.NewRepository(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return repo, metrics.NewStoreCollector(repo), nil
	default:
		repo := memory.NewRepository()
		return repo, metrics.NewStoreCollector(repo), nil
	}
}

// reloadOnHangup re-reads the providers file on SIGHUP. Handler registrations
// are fixed at startup; only provider policy is refreshed.
func reloadOnHangup(ctx context.Context, store *providers.Store, logger zerolog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := store.Reload(); err != nil {
				logger.Error().Err(err).Msg("reloading providers")
				continue
			}
			logger.Info().Int("providers", len(store.List())).Msg("providers reloaded")
		}
	}
}

func shutdown(srv *http.Server, engine *dispatch.Engine, pool *dispatch.Pool, exporter *metrics.OTelExporter, logger zerolog.Logger) error {
	ctxTimeout, stop := context.WithTimeout(context.Background(), TIMEOUT)
	defer stop()

	logger.Info().Msg("shutting down server")

	var errs []error
	if err := srv.Shutdown(ctxTimeout); err != nil {
		errs = append(errs, fmt.Errorf("shutting down http server: %w", err))
	}
	// pending retries are abandoned, in-flight attempts finish
	if err := engine.Shutdown(ctxTimeout); err != nil {
		errs = append(errs, fmt.Errorf("draining dispatch engine: %w", err))
	}
	if err := pool.Stop(ctxTimeout); err != nil {
		errs = append(errs, fmt.Errorf("stopping worker pool: %w", err))
	}
	if err := exporter.Shutdown(ctxTimeout); err != nil {
		errs = append(errs, fmt.Errorf("stopping metrics exporter: %w", err))
	}

	return errors.Join(errs...)
}
