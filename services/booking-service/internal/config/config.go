package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/config"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/reporting"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	ServiceName string
	Port        string
	// GRPCPort is empty when the gRPC health server is disabled.
	GRPCPort string
	LogLevel string

	StoreBackend   string
	DatabaseURL    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	StateKeyPrefix string

	KafkaBrokers string
	EventsTopic  string

	ScheduleEnforced bool
	ReportLocale     string
	Location         *time.Location

	BodyLimitBytes int64
	RequestTimeout time.Duration
}

func Load() (Config, error) {
	cfg := Config{
		ServiceName:      config.String("SERVICE_NAME", "booking-service"),
		LogLevel:         config.String("LOG_LEVEL", "info"),
		StoreBackend:     strings.ToLower(config.String("STORE_BACKEND", BackendMemory)),
		DatabaseURL:      config.String("DATABASE_URL", ""),
		RedisAddr:        config.String("REDIS_ADDR", ""),
		RedisPassword:    config.String("REDIS_PASSWORD", ""),
		RedisDB:          config.Int("REDIS_DB", 0),
		StateKeyPrefix:   config.String("STATE_KEY_PREFIX", "salon"),
		KafkaBrokers:     config.String("KAFKA_BROKERS", ""),
		EventsTopic:      config.String("BOOKING_EVENTS_TOPIC", ""),
		ScheduleEnforced: config.Bool("SCHEDULE_ENFORCED", false),
		ReportLocale:     strings.ToLower(config.String("REPORT_LOCALE", reporting.DefaultLocale)),
		BodyLimitBytes:   int64(config.PositiveInt("REQUEST_BODY_LIMIT_BYTES", 1<<20)),
		RequestTimeout:   config.Duration("REQUEST_TIMEOUT_SECONDS", 15*time.Second),
	}

	port, err := config.Port("PORT", "8083")
	if err != nil {
		return Config{}, err
	}
	cfg.Port = port

	if config.String("GRPC_PORT", "") != "" {
		grpcPort, err := config.Port("GRPC_PORT", "")
		if err != nil {
			return Config{}, err
		}
		cfg.GRPCPort = grpcPort
	}

	switch cfg.StoreBackend {
	case BackendMemory:
	case BackendRedis:
		if cfg.RedisAddr == "" {
			return Config{}, fmt.Errorf("REDIS_ADDR is required when STORE_BACKEND=%s", BackendRedis)
		}
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=%s", BackendPostgres)
		}
	default:
		return Config{}, fmt.Errorf("STORE_BACKEND must be one of memory, redis, postgres (got %q)", cfg.StoreBackend)
	}

	if !reporting.SupportedLocale(cfg.ReportLocale) {
		return Config{}, fmt.Errorf("REPORT_LOCALE %q is not supported", cfg.ReportLocale)
	}

	tz := config.String("TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Config{}, fmt.Errorf("TIMEZONE: %w", err)
	}
	cfg.Location = loc
	return cfg, nil
}
