package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/lessonpay-backend/internal/data/db"
	"github.com/yungbote/lessonpay-backend/internal/observability"
	"github.com/yungbote/lessonpay-backend/internal/platform/envutil"
	"github.com/yungbote/lessonpay-backend/internal/platform/logger"
	"github.com/yungbote/lessonpay-backend/internal/platform/midtrans"
	"github.com/yungbote/lessonpay-backend/internal/platform/momo"
	"github.com/yungbote/lessonpay-backend/internal/platform/redislock"
	"github.com/yungbote/lessonpay-backend/internal/services"
)

type Config struct {
	Port         string   `yaml:"port"`
	LogMode      string   `yaml:"log_mode"`
	JWTSecretKey string   `yaml:"jwt_secret_key"`
	CORSOrigins  []string `yaml:"cors_origins"`
	DBMigrate    bool     `yaml:"db_migrate"`

	WebhookTimeout time.Duration `yaml:"webhook_timeout"`
	ExpiryInterval time.Duration `yaml:"payment_expiry_interval"`
	StreakTimezone string        `yaml:"streak_timezone"`

	Postgres db.PostgresConfig        `yaml:"postgres"`
	Redis    redislock.Config         `yaml:"redis"`
	Payment  services.PaymentConfig   `yaml:"payment"`
	Momo     momo.Config              `yaml:"momo"`
	Midtrans midtrans.Config          `yaml:"midtrans"`
	Otel     observability.OtelConfig `yaml:"otel"`
}

func defaultConfig() Config {
	return Config{
		Port:           "8080",
		LogMode:        "development",
		DBMigrate:      true,
		WebhookTimeout: 10 * time.Second,
		ExpiryInterval: 5 * time.Minute,
		Postgres: db.PostgresConfig{
			Host:    "localhost",
			Port:    "5432",
			User:    "postgres",
			Name:    "lessonpay",
			SSLMode: "disable",
		},
		Payment: services.PaymentConfig{
			IntentTTL: 24 * time.Hour,
		},
		Otel: observability.OtelConfig{
			ServiceName: "lessonpay-backend",
		},
	}
}

// LoadConfig layers defaults, then CONFIG_FILE (yaml), then the environment.
// A .env file in the working directory is loaded first when present.
func LoadConfig(log *logger.Logger) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("Could not load .env", "error", err)
	}

	cfg := defaultConfig()
	if path := envutil.String("CONFIG_FILE", ""); path != "" {
		if err := loadConfigFile(path, &cfg); err != nil {
			return Config{}, err
		}
		log.Info("Loaded config file", "path", path)
	}
	applyEnv(&cfg)

	if strings.TrimSpace(cfg.JWTSecretKey) == "" {
		return Config{}, fmt.Errorf("missing JWT_SECRET_KEY")
	}
	if cfg.StreakTimezone != "" {
		if _, err := time.LoadLocation(cfg.StreakTimezone); err != nil {
			return Config{}, fmt.Errorf("invalid STREAK_TIMEZONE %q: %w", cfg.StreakTimezone, err)
		}
	}
	return cfg, nil
}

func loadConfigFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Port = envutil.String("PORT", cfg.Port)
	cfg.LogMode = envutil.String("LOG_MODE", cfg.LogMode)
	cfg.JWTSecretKey = envutil.String("JWT_SECRET_KEY", cfg.JWTSecretKey)
	cfg.DBMigrate = envutil.Bool("DB_MIGRATE", cfg.DBMigrate)
	cfg.WebhookTimeout = envutil.Duration("WEBHOOK_TIMEOUT", cfg.WebhookTimeout)
	cfg.ExpiryInterval = envutil.Duration("PAYMENT_EXPIRY_INTERVAL", cfg.ExpiryInterval)
	cfg.StreakTimezone = envutil.String("STREAK_TIMEZONE", cfg.StreakTimezone)
	if origins := envutil.String("CORS_ORIGINS", ""); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}

	cfg.Postgres.Host = envutil.String("POSTGRES_HOST", cfg.Postgres.Host)
	cfg.Postgres.Port = envutil.String("POSTGRES_PORT", cfg.Postgres.Port)
	cfg.Postgres.User = envutil.String("POSTGRES_USER", cfg.Postgres.User)
	cfg.Postgres.Password = envutil.String("POSTGRES_PASSWORD", cfg.Postgres.Password)
	cfg.Postgres.Name = envutil.String("POSTGRES_NAME", cfg.Postgres.Name)
	cfg.Postgres.SSLMode = envutil.String("POSTGRES_SSLMODE", cfg.Postgres.SSLMode)
	cfg.Postgres.MaxOpenConns = envutil.Int("POSTGRES_MAX_OPEN_CONNS", cfg.Postgres.MaxOpenConns)
	cfg.Postgres.MaxIdleConns = envutil.Int("POSTGRES_MAX_IDLE_CONNS", cfg.Postgres.MaxIdleConns)
	cfg.Postgres.ConnMaxLifetime = envutil.Duration("POSTGRES_CONN_MAX_LIFETIME", cfg.Postgres.ConnMaxLifetime)

	cfg.Payment.Provider = envutil.String("PAYMENT_PROVIDER", cfg.Payment.Provider)
	cfg.Payment.ReturnURL = envutil.String("PAYMENT_RETURN_URL", cfg.Payment.ReturnURL)
	cfg.Payment.NotifyBaseURL = envutil.String("PAYMENT_NOTIFY_BASE_URL", cfg.Payment.NotifyBaseURL)
	cfg.Payment.IntentTTL = envutil.Duration("PAYMENT_INTENT_TTL", cfg.Payment.IntentTTL)

	cfg.Redis = redislock.ConfigFromEnv(cfg.Redis)
	cfg.Momo = momo.ConfigFromEnv(cfg.Momo)
	cfg.Midtrans = midtrans.ConfigFromEnv(cfg.Midtrans)

	cfg.Otel.ServiceName = envutil.String("OTEL_SERVICE_NAME", cfg.Otel.ServiceName)
	cfg.Otel.Environment = envutil.String("OTEL_ENVIRONMENT", cfg.Otel.Environment)
	cfg.Otel.Version = envutil.String("OTEL_SERVICE_VERSION", cfg.Otel.Version)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// StreakLocation resolves STREAK_TIMEZONE, falling back to the process zone.
func (c Config) StreakLocation() *time.Location {
	if c.StreakTimezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.StreakTimezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c Config) momoConfigured() bool {
	return c.Momo.PartnerCode != "" && c.Momo.AccessKey != "" && c.Momo.SecretKey != ""
}

func (c Config) midtransConfigured() bool {
	return c.Midtrans.ServerKey != ""
}
