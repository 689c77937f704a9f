package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/webdoc-rokib/visa-track-sub000/internal/archive"
	"github.com/webdoc-rokib/visa-track-sub000/internal/attendance"
	"github.com/webdoc-rokib/visa-track-sub000/internal/config"
	"github.com/webdoc-rokib/visa-track-sub000/internal/database"
	"github.com/webdoc-rokib/visa-track-sub000/internal/httpapi"
	"github.com/webdoc-rokib/visa-track-sub000/internal/logging"
	"github.com/webdoc-rokib/visa-track-sub000/internal/store/postgres"
	"github.com/webdoc-rokib/visa-track-sub000/internal/telemetry"
	"github.com/webdoc-rokib/visa-track-sub000/internal/tracking"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	loc, _ := cfg.Location()

	shutdownTelemetry := telemetry.Setup("visatrack")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.RunMigrations {
		if err := database.Migrate(cfg.DatabaseURL); err != nil {
			log.WithError(err).Fatal("migrate")
		}
	}
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("db connect")
	}
	defer pool.Close()

	store := postgres.NewStore(pool, postgres.Options{
		SessionTTL:     cfg.SessionTTL,
		DeleteTokenTTL: cfg.DeleteTokenTTL,
	})

	tracker := attendance.NewTracker(store, attendance.Options{
		Location:   loc,
		StaleAfter: cfg.AttendanceStaleAfter,
		BatchSize:  cfg.AttendanceBatchSize,
	})
	sweeper := attendance.NewSweeper(tracker, cfg.AttendanceSweepInterval)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	options := httpapi.Options{
		Attendance: tracker,
		Tracking:   tracking.NewService(store, cfg.TrackingCacheSize, cfg.TrackingCacheTTL),
		Ready:      database.NewReadinessChecker(pool),
		RateLimit: httpapi.RateLimitConfig{
			IPPerMinute:   cfg.RateLimitPerMinute,
			IPBurst:       cfg.RateLimitBurst,
			UserPerMinute: cfg.UserRateLimitPerMinute,
			UserBurst:     cfg.UserRateLimitBurst,
		},
		Location: loc,
	}
	if cfg.MinioEndpoint != "" {
		archiver, err := archive.NewMinio(ctx, archive.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.WithError(err).Warn("report archive disabled")
		} else {
			options.Archiver = archiver
		}
	}
	handler := httpapi.NewHandler(store, options)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(handler.Routes(), "visatrack"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("visatrack listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown error")
	}
}
