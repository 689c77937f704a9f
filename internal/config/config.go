package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	RealtimePort  string
	DatabaseURL   string
	RunMigrations bool

	LogLevel  string
	LogFormat string
	Timezone  string

	SessionTTL     time.Duration
	DeleteTokenTTL time.Duration

	AttendanceSweepInterval time.Duration
	AttendanceStaleAfter    time.Duration
	AttendanceBatchSize     int

	RateLimitPerMinute     int
	RateLimitBurst         int
	UserRateLimitPerMinute int
	UserRateLimitBurst     int

	TrackingCacheSize int
	TrackingCacheTTL  time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers []string
	KafkaTopic   string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	RealtimePollInterval time.Duration
	RealtimeBatchSize    int

	NotifyInterval    time.Duration
	NotifyBatchSize   int
	NotifyMaxAttempts int
	NotifyProvider    string
	NotifyChannel     string
	WebhookURL        string
	WebhookToken      string
	BotToken          string
	BotAPIURL         string
	BotChatID         string
}

// Load reads configuration from the environment. A .env file in the working directory is
// applied first when present; variables already set in the environment win.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:          readString("PORT", "8080"),
		RealtimePort:  readString("REALTIME_PORT", "8081"),
		DatabaseURL:   os.Getenv("DB_DSN"),
		RunMigrations: readBool("DB_MIGRATE", true),

		LogLevel:  readString("LOG_LEVEL", "info"),
		LogFormat: readString("LOG_FORMAT", "text"),
		Timezone:  readString("APP_TIMEZONE", "Local"),

		SessionTTL:     readDurationSeconds("SESSION_TTL_SECONDS", 8*60*60),
		DeleteTokenTTL: readDurationSeconds("DELETE_TOKEN_TTL_SECONDS", 600),

		AttendanceSweepInterval: readDurationSeconds("ATTENDANCE_SWEEP_INTERVAL_SECONDS", 30*60),
		AttendanceStaleAfter:    readDurationSeconds("ATTENDANCE_STALE_AFTER_SECONDS", 12*60*60),
		AttendanceBatchSize:     readInt("ATTENDANCE_SWEEP_BATCH_SIZE", 100),

		RateLimitPerMinute:     readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:         readInt("RATE_LIMIT_BURST", 30),
		UserRateLimitPerMinute: readInt("USER_RATE_LIMIT_PER_MIN", 600),
		UserRateLimitBurst:     readInt("USER_RATE_LIMIT_BURST", 120),

		TrackingCacheSize: readInt("TRACKING_CACHE_SIZE", 1024),
		TrackingCacheTTL:  readDurationSeconds("TRACKING_CACHE_TTL_SECONDS", 30),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       readInt("REDIS_DB", 0),

		KafkaBrokers: readList("KAFKA_BROKERS"),
		KafkaTopic:   readString("KAFKA_TOPIC", "visatrack.file-events"),

		MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    readString("MINIO_BUCKET", "visatrack-reports"),
		MinioUseSSL:    readBool("MINIO_USE_SSL", false),

		RealtimePollInterval: readDurationSeconds("REALTIME_POLL_SECONDS", 2),
		RealtimeBatchSize:    readInt("REALTIME_BATCH_SIZE", 200),

		NotifyInterval:    readDurationSeconds("NOTIFY_INTERVAL_SECONDS", 5),
		NotifyBatchSize:   readInt("NOTIFY_BATCH_SIZE", 100),
		NotifyMaxAttempts: readInt("NOTIFY_MAX_ATTEMPTS", 3),
		NotifyProvider:    readString("NOTIFY_PROVIDER", "log"),
		NotifyChannel:     readString("NOTIFY_CHANNEL", "inapp"),
		WebhookURL:        os.Getenv("NOTIFY_WEBHOOK_URL"),
		WebhookToken:      os.Getenv("NOTIFY_WEBHOOK_TOKEN"),
		BotToken:          os.Getenv("BOT_TOKEN"),
		BotAPIURL:         os.Getenv("BOT_API_URL"),
		BotChatID:         os.Getenv("BOT_CHAT_ID"),
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DB_DSN is required"))
	}
	if c.AttendanceSweepInterval <= 0 || c.AttendanceStaleAfter <= 0 {
		errs = append(errs, errors.New("attendance sweep interval and stale threshold must be positive"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL_SECONDS must be positive"))
	}
	if c.MinioEndpoint != "" && (c.MinioAccessKey == "" || c.MinioSecretKey == "") {
		errs = append(errs, errors.New("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required with MINIO_ENDPOINT"))
	}
	if c.NotifyProvider == "bot" && (c.BotToken == "" || c.BotChatID == "") {
		errs = append(errs, errors.New("BOT_TOKEN and BOT_CHAT_ID are required for the bot provider"))
	}
	if c.NotifyProvider == "webhook" && c.WebhookURL == "" {
		errs = append(errs, errors.New("NOTIFY_WEBHOOK_URL is required for the webhook provider"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Location resolves the calendar timezone used for attendance dates, reminders and periods.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("APP_TIMEZONE: %w", err)
	}
	return loc, nil
}

func readString(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func readList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
