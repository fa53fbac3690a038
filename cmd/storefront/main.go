package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/config"
	h "github.com/fjod/storefront/internal/http"
	"github.com/fjod/storefront/internal/logger"
	"github.com/fjod/storefront/internal/poller"
	"github.com/fjod/storefront/internal/publisher"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/service"
	"github.com/fjod/storefront/internal/storeapi"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any(logger.KeyError, err))
		os.Exit(1)
	}

	log := logger.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(log)

	startedAt := time.Now()
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	// background consumers must finish before redis and the ledger are closed
	var workers sync.WaitGroup

	api := storeapi.NewClient(cfg.StoreAPIBaseURL, cfg.RequestTimeout,
		storeapi.WithBreaker(cfg.BreakerMaxFailures, cfg.BreakerOpenTimeout))

	opts := []service.Option{
		service.WithLogger(log),
		service.WithCurrency(cfg.Currency),
		service.WithPaymentWaitTimeout(cfg.PaymentWaitTimeout),
	}

	var snapshots *cache.RedisCache
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			// the cart still works without its fallback snapshot
			log.Warn("redis unavailable, continuing without snapshot cache", slog.Any(logger.KeyError, err))
		}
		snapshots = cache.NewRedisCache(redisClient, cfg.SnapshotTTL)
		opts = append(opts, service.WithCache(snapshots))
	}

	if snapshots != nil && len(cfg.KafkaBrokers) > 0 {
		reader := poller.NewKafkaReader(cfg.KafkaTopic, poller.DefaultGroupID, cfg.KafkaBrokers...)
		goWorker(ctx, &workers, poller.NewPoller(reader, snapshots, log).Run)
	}

	if cfg.LedgerDSN != "" {
		repo, err := repository.NewRepository(cfg.LedgerDSN)
		if err != nil {
			log.Error("failed to open checkout ledger", slog.Any(logger.KeyError, err))
			os.Exit(1)
		}
		defer repo.Close()

		if err := repo.RunMigrations(); err != nil {
			log.Error("failed to run migrations", slog.Any(logger.KeyError, err))
			os.Exit(1)
		}
		n, err := repo.FailOrphanedAttempts(ctx, startedAt, "storefront restarted during checkout")
		if err != nil {
			log.Error("failed to close orphaned checkout attempts", slog.Any(logger.KeyError, err))
		} else if n > 0 {
			log.Info("closed orphaned checkout attempts", slog.Int("count", n))
		}
		opts = append(opts, service.WithRecorder(repo))

		if len(cfg.KafkaBrokers) > 0 {
			writer := publisher.NewKafkaWriter(cfg.KafkaTopic, cfg.KafkaBrokers...)
			outbox := publisher.NewOutboxPoller(repo, writer, log)
			goWorker(ctx, &workers, outbox.Run)
			log.Info("outbox publisher started", slog.String("topic", cfg.KafkaTopic))
		}
	}

	var bridgeOpts []checkout.BridgeOption
	bridgeOpts = append(bridgeOpts, checkout.WithBridgeLogger(log))
	if cfg.PaymentScriptURL != "" {
		bridgeOpts = append(bridgeOpts, checkout.WithScriptProbe(cfg.PaymentScriptURL, &http.Client{Timeout: cfg.RequestTimeout}))
	}
	bridge := checkout.NewBridge(cfg.PaymentKeyID, bridgeOpts...)

	svc := service.New(api, bridge, opts...)

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: h.NewRouter(svc, h.RouterConfig{
			RequestTimeout: cfg.RequestTimeout,
			MaxRequestBody: cfg.MaxRequestBody,
		}),
		ReadTimeout: 10 * time.Second,
		// outcome requests wait for verification and order creation
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("storefront starting", slog.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.Any(logger.KeyError, err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", slog.Any(logger.KeyError, err))
	}
	svc.Close()
	stop()
	workers.Wait()

	log.Info("server exited")
}

// goWorker runs fn until ctx ends. wg.Wait returns once fn has returned.
func goWorker(ctx context.Context, wg *sync.WaitGroup, fn func(context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		fn(ctx)
	}()
}
