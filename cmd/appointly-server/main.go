package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"appointly/internal/config"
	"appointly/internal/dateparse"
	"appointly/internal/observability/metrics"
	"appointly/internal/service/appointments"
	"appointly/internal/store/postgres"
	grpcTransport "appointly/internal/transport/grpc"
	httpTransport "appointly/internal/transport/http"
)

const serviceName = "appointly-server"

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", serviceName),
	)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", serviceName),
	)
	slog.SetDefault(log)

	log.Info("starting",
		slog.String("http_addr", cfg.HTTPAddr()),
		slog.String("grpc_addr", cfg.GRPCAddr()),
		slog.String("log_level", cfg.LogLevel),
		slog.String("time_zone", cfg.Booking.TimeZone),
		slog.String("mail_provider", cfg.Mail.Provider),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		os.Exit(1)
	}
	defer func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}()

	cal, err := newCalendar(ctx, cfg)
	if err != nil {
		log.Error("calendar setup failed", slog.Any("err", err))
		os.Exit(1)
	}

	notifier, err := newNotifier(ctx, cfg, log)
	if err != nil {
		log.Error("mail setup failed", slog.Any("err", err))
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	bookingMetrics := metrics.NewBookingMetrics(reg)

	svc := appointments.NewService(
		postgres.NewAppointmentRepo(db),
		cal,
		notifier,
		dateparse.NewWhenExtractor(),
		appointments.Config{
			Location:              cfg.Booking.Location,
			SlotDuration:          cfg.Booking.SlotDuration,
			ExternalTimeout:       cfg.Booking.ExternalTimeout,
			SendConfirmationEmail: cfg.Booking.SendConfirmationEmail,
			CreateMeetingLink:     cfg.Booking.CreateMeetingLink,
		},
		appointments.WithObserver(bookingMetrics),
		appointments.WithLogger(log),
	)

	var limiter *httpTransport.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = httpTransport.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	httpServer := &http.Server{
		Addr: cfg.HTTPAddr(),
		Handler: httpTransport.NewRouter(httpTransport.RouterConfig{
			Logger:            log,
			Appointments:      httpTransport.NewAppointmentsHandler(svc, log),
			MetricsHandler:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			Ready:             db.PingContext,
			RequestTimeout:    cfg.HTTPRequestTimeout,
			RateLimiter:       limiter,
			TrustProxyHeaders: cfg.TrustProxyHeaders,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	healthServer := grpcTransport.NewHealthServer(log, cfg.GRPCRequestTimeout)
	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", cfg.GRPCAddr()))
		os.Exit(1)
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- healthServer.Serve(lis)
	}()
	go func() {
		log.Info("http server started", slog.String("http_addr", cfg.HTTPAddr()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error("server stopped with error", slog.Any("err", err))
		}
	}
	shutdown(log, httpServer, healthServer, cfg.ShutdownTimeout)
}

func shutdown(log *slog.Logger, httpServer *http.Server, healthServer *grpcTransport.HealthServer, timeout time.Duration) {
	log.Info("shutting down http server", slog.Duration("timeout", timeout))

	grpcDone := make(chan struct{})
	go func() {
		healthServer.Shutdown(timeout)
		close(grpcDone)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn("http graceful shutdown failed; closing", slog.Any("err", err))
		_ = httpServer.Close()
	}
	<-grpcDone
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
