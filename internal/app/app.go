package app

import (
	"context"
	"errors"
	"net"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vladislavdragonenkov/cart/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/cart/internal/health"
	"github.com/vladislavdragonenkov/cart/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/cart/internal/metrics"
	grpcsvc "github.com/vladislavdragonenkov/cart/internal/service/grpc"
	"github.com/vladislavdragonenkov/cart/internal/session"
	"github.com/vladislavdragonenkov/cart/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run поднимает gRPC API корзин, HTTP метрики и фоновые воркеры до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := log.WithField("component", "app")
	cartMetrics := metrics.NewCartMetrics()

	registryOptions := []session.Option{
		session.WithLogger(logger.WithField("layer", "sessions")),
		session.WithRecorder(cartMetrics),
		session.WithObserver(cartMetrics.ObserveChange),
	}

	// Публикация событий корзин в Kafka (опционально)
	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	forwarderCtx, stopForwarder := context.WithCancel(context.Background())
	forwarderDone := make(chan struct{})
	if kafkaProducer != nil {
		forwarder := kafka.NewForwarder(
			kafkaProducer,
			kafka.WithLogger(logger.WithField("layer", "kafka")),
			kafka.WithTopic(cfg.KafkaTopic),
			kafka.WithBufferSize(cfg.EventBufferSize),
		)
		registryOptions = append(registryOptions, session.WithObserver(forwarder.Observe))
		go func() {
			defer close(forwarderDone)
			forwarder.Run(forwarderCtx)
		}()
	} else {
		close(forwarderDone)
	}

	registry := session.NewRegistry(registryOptions...)
	cleanupWorker := session.NewCleanupWorker(
		registry,
		session.WithCleanupLogger(logger.WithField("layer", "session-cleanup")),
		session.WithInterval(cfg.SessionCleanupInterval),
		session.WithIdleTTL(cfg.SessionIdleTTL),
	)
	go cleanupWorker.Run(ctx)

	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			grpcMetrics.UnaryServerInterceptor(),
			grpcsvc.ScopeUnaryInterceptor(registry),
		),
		grpc.ChainStreamInterceptor(
			grpcMetrics.StreamServerInterceptor(),
			grpcsvc.ScopeStreamInterceptor(registry),
		),
	)
	cartService := grpcsvc.NewCartService(registry, logger.WithField("layer", "grpc"))
	grpcsvc.RegisterCartServiceServer(grpcServer, cartService)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	grpcMetrics.InitializeMetrics(grpcServer)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("sessions", healthcheck.NewThresholdChecker("sessions", registry.Count, cfg.SessionSoftLimit))
	healthHandler.RegisterChecker("registry", healthcheck.NewSimpleChecker("registry", func() error {
		if registry.Closed() {
			return domain.ErrRegistryClosed
		}
		return nil
	}))

	logger.WithField("checkers", healthHandler.Names()).Info("health checks registered")

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	shutdown := func() {
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		// Закрытие сессий завершает открытые Watch-потоки до GracefulStop.
		registry.Close()
		stopGRPC(grpcServer, logger)
		shutdownHTTP(metricsSrv, logger)

		stopForwarder()
		<-forwarderDone
		closeKafka(kafkaProducer, logger)
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdown()
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("gRPC сервер слушает %s", lis.Addr())
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем gRPC сервер")
		shutdown()
		return ctx.Err()
	case err := <-errCh:
		shutdown()
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// stopGRPC останавливает сервер, дожидаясь активных вызовов не дольше shutdownTimeout.
func stopGRPC(server *grpc.Server, logger *log.Entry) {
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
