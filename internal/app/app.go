package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/zyfzsi/ldc-shop/internal/cache"
	healthcheck "github.com/zyfzsi/ldc-shop/internal/health"
	"github.com/zyfzsi/ldc-shop/internal/httpapi"
	"github.com/zyfzsi/ldc-shop/internal/metrics"
	"github.com/zyfzsi/ldc-shop/internal/service/aggregates"
	"github.com/zyfzsi/ldc-shop/internal/service/lifecycle"
	"github.com/zyfzsi/ldc-shop/internal/service/notify"
	"github.com/zyfzsi/ldc-shop/internal/service/reservation"
	"github.com/zyfzsi/ldc-shop/internal/service/sweeper"
	"github.com/zyfzsi/ldc-shop/internal/version"
)

// Run собирает зависимости и запускает HTTP API, сервер метрик и
// sweep-воркер; блокируется до отмены ctx или фатальной ошибки сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	repos, err := buildRepositories(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := repos.Close(); err != nil {
			logger.WithError(err).Warn("close storage failed")
		}
	}()

	producer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(producer, logger)

	dedup := cache.NewDisabled()
	if cfg.RedisAddr != "" {
		dedup = cache.New(cfg.RedisAddr)
		if err := dedup.Ping(ctx); err != nil {
			logger.WithError(err).Warn("redis unavailable, callback dedup disabled")
		} else {
			logger.WithField("addr", cfg.RedisAddr).Info("redis dedup initialized")
		}
	}
	defer func() { _ = dedup.Close() }()

	shopMetrics := metrics.NewShopMetrics()

	recomputer := aggregates.NewEngine(
		repos.Products, repos.Cards, repos.Orders, repos.Reviews, repos.Settings,
		logger.WithField("component", "aggregates"), shopMetrics,
	)

	sweepOptions := []sweeper.Option{sweeper.WithRecomputer(recomputer)}
	if producer != nil {
		sweepOptions = append(sweepOptions, sweeper.WithPublisher(producer))
	}
	sweep := sweeper.New(
		repos.Orders, repos.Cards, repos.Users, repos.Settings,
		logger.WithField("component", "sweeper"),
		sweepOptions...,
	)

	notifier := notify.NewLogDispatcher(logger.WithField("component", "notify"))

	reservationOptions := []reservation.Option{
		reservation.WithSweeper(sweep),
		reservation.WithRecomputer(recomputer),
		reservation.WithNotifier(notifier),
		reservation.WithMetrics(shopMetrics),
	}
	lifecycleOptions := []lifecycle.Option{
		lifecycle.WithRecomputer(recomputer),
		lifecycle.WithNotifier(notifier),
		lifecycle.WithDedup(dedup),
		lifecycle.WithMetrics(shopMetrics),
	}
	if producer != nil {
		reservationOptions = append(reservationOptions, reservation.WithPublisher(producer))
		lifecycleOptions = append(lifecycleOptions, lifecycle.WithPublisher(producer))
	}

	reserve := reservation.NewEngine(
		repos.Products, repos.Cards, repos.Orders, repos.Users, repos.Settings,
		logger.WithField("component", "reservation"),
		reservationOptions...,
	)
	machine := lifecycle.NewMachine(
		repos.Orders, repos.Cards, repos.Users, repos.Products, repos.Settings,
		logger.WithField("component", "lifecycle"),
		lifecycleOptions...,
	)

	if err := recomputer.Backfill(ctx); err != nil {
		logger.WithError(err).Warn("aggregates backfill failed")
	}

	healthHandler := healthcheck.NewHandler(version.String())
	healthHandler.RegisterChecker("storage", healthcheck.NewSimpleChecker("storage", func() error {
		return repos.Ping(context.Background())
	}))
	if cfg.RedisAddr != "" {
		healthHandler.RegisterChecker("redis", healthcheck.NewSimpleChecker("redis", func() error {
			return dedup.Ping(context.Background())
		}))
	}

	apiHandler := httpapi.NewHandler(
		reserve, machine, sweep, recomputer,
		repos.Orders, repos.Products, repos.Reviews,
		logger.WithField("component", "httpapi"),
	)
	apiSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpapi.NewRouter(apiHandler, healthHandler),
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	worker := sweeper.NewWorker(sweep,
		sweeper.WithLogger(logger.WithField("component", "sweep-worker")),
		sweeper.WithInterval(cfg.SweepInterval),
	)
	go worker.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP сервер")
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func buildRepositories(ctx context.Context, cfg Config, logger *log.Entry) (*Repositories, error) {
	switch cfg.StorageDriver {
	case StoragePostgres:
		repos, err := newPostgresRepositories(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		logger.Info("postgres storage initialized")
		return repos, nil
	default:
		logger.Info("in-memory storage initialized")
		return newMemoryRepositories(), nil
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	if h, ok := healthHandler.(*healthcheck.Handler); ok {
		mux.HandleFunc("/readyz", h.ReadinessHandler)
	}

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez", addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
