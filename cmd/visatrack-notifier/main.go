package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/webdoc-rokib/visa-track-sub000/internal/config"
	"github.com/webdoc-rokib/visa-track-sub000/internal/database"
	"github.com/webdoc-rokib/visa-track-sub000/internal/events"
	"github.com/webdoc-rokib/visa-track-sub000/internal/logging"
	"github.com/webdoc-rokib/visa-track-sub000/internal/reminders"
	"github.com/webdoc-rokib/visa-track-sub000/internal/store/postgres"
	"github.com/webdoc-rokib/visa-track-sub000/internal/telemetry"
	"github.com/webdoc-rokib/visa-track-sub000/internal/worker"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	loc, _ := cfg.Location()

	shutdownTelemetry := telemetry.Setup("visatrack-notifier")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("db connect")
	}
	defer pool.Close()

	provider, err := worker.NewProvider(worker.ProviderConfig{
		Kind:         cfg.NotifyProvider,
		Channel:      cfg.NotifyChannel,
		WebhookURL:   cfg.WebhookURL,
		WebhookToken: cfg.WebhookToken,
		BotToken:     cfg.BotToken,
		BotAPIURL:    cfg.BotAPIURL,
		BotChatID:    cfg.BotChatID,
	})
	if err != nil {
		log.WithError(err).Fatal("notification provider")
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kafka := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() { _ = kafka.Close() }()
		publisher = kafka
		log.WithFields(log.Fields{"brokers": cfg.KafkaBrokers, "topic": cfg.KafkaTopic}).Info("relaying ledger events to kafka")
	}

	var schedule worker.ReminderSchedule
	if cfg.RedisAddr != "" {
		client, err := reminders.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.WithError(err).Warn("reminder schedule disabled")
		} else {
			defer func() { _ = client.Close() }()
			schedule = reminders.NewSchedule(client, reminders.DefaultKey, loc)
		}
	}

	store := postgres.NewStore(pool, postgres.Options{})
	w := worker.New(store, provider, publisher, schedule, worker.Config{
		BatchSize:   cfg.NotifyBatchSize,
		MaxAttempts: cfg.NotifyMaxAttempts,
		Channel:     cfg.NotifyChannel,
		Location:    loc,
	})

	interval := cfg.NotifyInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	go worker.Start(ctx, interval, w)
	log.WithFields(log.Fields{"provider": cfg.NotifyProvider, "interval": interval}).Info("visatrack-notifier started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()
}
