package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/salonbook/libs/grpcx"
	"github.com/md-rashed-zaman/salonbook/libs/httpx"
	"github.com/md-rashed-zaman/salonbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/salonbook/libs/otel"
	"github.com/md-rashed-zaman/salonbook/libs/runtime"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/config"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = runtime.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		runtime.NewLogger("booking-service").Error("config error", "err", err)
		os.Exit(1)
	}
	logger := runtime.NewLeveledLogger(cfg.ServiceName, cfg.LogLevel)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.ServiceName))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	backend, closeBackend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("store backend init failed", "err", err, "backend", cfg.StoreBackend)
		os.Exit(1)
	}
	defer closeBackend()

	store, err := storage.Open(ctx, backend, storage.Options{Logger: logger, Seed: true})
	if err != nil {
		logger.Error("store open failed", "err", err)
		os.Exit(1)
	}

	bookingMetrics := metrics.NewBookingMetrics(nil)
	publisher := events.NewPublisher(logger, events.PublisherConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.EventsTopic,
		Source:  cfg.ServiceName,
		Retries: 3,
	}, bookingMetrics.ObserveEvent)
	go publisher.Run(ctx)

	bookingHandler := handlers.NewBookingHandler(store, handlers.Options{
		Logger:           logger,
		Metrics:          bookingMetrics,
		Events:           publisher,
		Location:         cfg.Location,
		ScheduleEnforced: cfg.ScheduleEnforced,
		ReportLocale:     cfg.ReportLocale,
	})

	checks := readyChecks(store, cfg, kafkax.ReadyCheck(cfg.KafkaBrokers))
	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/metrics", promhttp.Handler())

	r := chi.NewRouter()
	bookingHandler.Routes(r)
	mux.Handle("/api/", r)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(cfg.BodyLimitBytes),
		httpx.WithTimeout(cfg.RequestTimeout),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if cfg.GRPCPort != "" {
		grpcSrv, healthSrv := grpcx.NewHealthServer()
		go grpcx.WatchReadiness(ctx, logger, healthSrv, cfg.ServiceName, 5*time.Second, checks...)
		go func() {
			lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
			if err != nil {
				logger.Error("grpc listen failed", "err", err)
				return
			}
			logger.Info("grpc server starting", "addr", lis.Addr().String())
			if err := grpcSrv.Serve(lis); err != nil {
				logger.Error("grpc server error", "err", err)
			}
		}()
		defer grpcSrv.GracefulStop()
	}

	go func() {
		logger.Info("http server starting",
			"addr", srv.Addr,
			"backend", cfg.StoreBackend,
			"schedule_enforced", cfg.ScheduleEnforced,
			"events_enabled", publisher.Enabled(),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
