// Package app собирает сервис: хранилище, движок согласования, фоновые воркеры и серверы.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
	"github.com/vladislavdragonenkov/sveapay/internal/gateway"
	"github.com/vladislavdragonenkov/sveapay/internal/health"
	"github.com/vladislavdragonenkov/sveapay/internal/httpapi"
	"github.com/vladislavdragonenkov/sveapay/internal/messages"
	"github.com/vladislavdragonenkov/sveapay/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/sveapay/internal/metrics"
	"github.com/vladislavdragonenkov/sveapay/internal/service/authpoll"
	"github.com/vladislavdragonenkov/sveapay/internal/service/cart"
	"github.com/vladislavdragonenkov/sveapay/internal/service/nonce"
	"github.com/vladislavdragonenkov/sveapay/internal/service/outbox"
	"github.com/vladislavdragonenkov/sveapay/internal/service/reconcile"
	"github.com/vladislavdragonenkov/sveapay/internal/version"
)

const shutdownTimeout = 5 * time.Second

// runtime — собранный, но ещё не запущенный сервис.
type runtime struct {
	deps     *runtimeDependencies
	engine   *reconcile.Engine
	poller   *authpoll.Poller
	relay    *outbox.Relay
	sweeper  *nonce.Sweeper
	producer *kafka.Producer
	consumer *kafka.Consumer
	health   *health.Handler
	handler  http.Handler
	logger   *log.Entry
}

// Run запускает сервис и блокируется до отмены ctx или падения одного из серверов.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	shutdownTracing, err := initTracing(cfg.Tracing, nil)
	if err != nil {
		return err
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			logger.WithError(err).Warn("tracer provider shutdown failed")
		}
	}()

	rt, err := build(ctx, cfg, prometheus.DefaultRegisterer, logger)
	if err != nil {
		return err
	}
	defer rt.close()

	if n, err := rt.poller.Rearm(rt.deps.orders); err != nil {
		logger.WithError(err).Warn("failed to re-arm strong auth checks")
	} else if n > 0 {
		logger.WithField("orders", n).Info("strong auth checks scheduled")
	}

	workersCtx, stopWorkers := context.WithCancel(ctx)
	var workers sync.WaitGroup
	rt.startWorkers(workersCtx, &workers)
	defer func() {
		stopWorkers()
		workers.Wait()
	}()

	grpcServer, grpcHealth := newGRPCServer(logger)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, rt.health)
	apiSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           rt.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("gRPC сервер слушает %s", cfg.GRPCAddr)
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		stopGRPC(grpcServer, grpcHealth, logger)
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		stopGRPC(grpcServer, grpcHealth, logger)
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// build создаёт все компоненты, не открывая сетевых портов.
func build(ctx context.Context, cfg Config, registerer prometheus.Registerer, logger *log.Entry) (*runtime, error) {
	settings := gateway.Settings{}
	if cfg.GatewaysFile != "" {
		loaded, err := gateway.LoadSettings(cfg.GatewaysFile)
		if err != nil {
			return nil, err
		}
		settings = loaded
		logger.WithFields(log.Fields{
			"file":    cfg.GatewaysFile,
			"methods": len(settings.Methods),
		}).Info("gateway settings loaded")
	} else {
		logger.Warn("gateway settings file is not configured, all payment methods are disabled")
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	vendor, err := gateway.NewHTTPClient(gateway.WithLogger(logger.WithField("component", "gateway")))
	if err != nil {
		deps.close(logger)
		return nil, err
	}

	reconcileMetrics := metrics.NewReconcileMetricsWithRegisterer(registerer)
	engine := reconcile.NewEngine(reconcile.Dependencies{
		Orders:        deps.orders,
		Subscriptions: deps.subscriptions,
		Timeline:      deps.timeline,
		Outbox:        deps.outbox,
		Cart:          cart.NewOutboxCart(deps.outbox),
		Vendor:        vendor,
		Settings:      settings,
		Router:        reconcile.DefaultRouter(),
		Links:         reconcile.NewLinks(cfg.PublicBaseURL),
		Catalog:       messages.NewCatalog(cfg.DefaultLocale),
		Metrics:       reconcileMetrics,
		Logger:        logger.WithField("component", "reconcile"),
	})

	poller := authpoll.NewPoller(engine,
		authpoll.WithLogger(logger.WithField("component", "authpoll")),
		authpoll.WithMetrics(reconcileMetrics),
		authpoll.WithDelay(cfg.AuthPollDelay),
	)
	engine.SetScheduler(poller)

	// Ошибка уже залогирована; без брокера события outbox публикуются в лог.
	producer, _ := initKafkaProducer(cfg, logger)
	publisher, deadLetter := outboxPublishers(cfg, producer, logger)
	relayOptions := []outbox.Option{
		outbox.WithLogger(logger.WithField("component", "outbox-relay")),
		outbox.WithMetrics(metrics.NewOutboxMetricsWithRegisterer(registerer)),
		outbox.WithInterval(cfg.OutboxInterval),
		outbox.WithBatch(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
	}
	if deadLetter != nil {
		relayOptions = append(relayOptions, outbox.WithDeadLetter(deadLetter))
	}

	consumer, err := initLifecycleConsumer(cfg, engine, producer, logger)
	if err != nil {
		logger.WithError(err).Warn("failed to create lifecycle consumer, status sync over kafka is disabled")
		consumer = nil
	}

	healthHandler := health.NewHandler(version.Current().Version)
	if deps.store != nil {
		healthHandler.Register("storage", true, deps.store.Ping)
	}
	healthHandler.Register("gateway", false, func(context.Context) error {
		if !vendor.Breaker().Healthy() {
			return domain.ErrVendorUnavailable
		}
		return nil
	})

	nonces := nonce.NewService(deps.nonces, cfg.NonceTTL, logger.WithField("component", "nonce-service"))
	api := httpapi.New(httpapi.Dependencies{
		Engine: engine,
		Orders: deps.orders,
		Nonces: nonces,
		Health: healthHandler,
		Logger: logger.WithField("component", "http-api"),
	})

	sweeper := nonce.NewSweeper(deps.nonces,
		nonce.WithSweepInterval(cfg.NonceSweepInterval),
		nonce.WithSweepLogger(logger.WithField("component", "nonce-sweeper")),
	)

	return &runtime{
		deps:     deps,
		engine:   engine,
		poller:   poller,
		relay:    outbox.NewRelay(deps.outbox, publisher, relayOptions...),
		sweeper:  sweeper,
		producer: producer,
		consumer: consumer,
		health:   healthHandler,
		handler:  api.Routes(),
		logger:   logger,
	}, nil
}

// startWorkers запускает фоновые воркеры; все они завершаются с отменой ctx.
func (rt *runtime) startWorkers(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(2)
	go func() {
		defer wg.Done()
		rt.relay.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		rt.sweeper.Run(ctx)
	}()
	if rt.consumer != nil {
		rt.consumer.Start(ctx)
	}
}

// close останавливает таймеры, consumer и закрывает внешние соединения.
func (rt *runtime) close() {
	rt.poller.Stop()
	if rt.consumer != nil {
		if err := rt.consumer.Stop(); err != nil {
			rt.logger.WithError(err).Warn("failed to stop lifecycle consumer")
		}
	}
	closeKafka(rt.producer, rt.logger)
	rt.deps.close(rt.logger)
}

// newGRPCServer создаёт gRPC-сервер со стандартным health-сервисом, reflection и метриками.
func newGRPCServer(logger *log.Entry) (*grpc.Server, *grpchealth.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	healthServer := grpchealth.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	grpcMetrics.InitializeMetrics(server)
	reflection.Register(server)

	return server, healthServer
}

// stopGRPC переводит health в NOT_SERVING и останавливает сервер, принудительно по таймауту.
func stopGRPC(server *grpc.Server, healthServer *grpchealth.Server, logger *log.Entry) {
	healthServer.Shutdown()
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *health.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", health.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
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
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).WithField("addr", srv.Addr).Warn("http shutdown with error")
	}
}
