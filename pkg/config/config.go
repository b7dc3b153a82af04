package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration, per spec §6's env var
// table.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	OTel     OTelConfig     `mapstructure:"otel"`
	Booking  BookingConfig  `mapstructure:"booking"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Payment      PaymentConfig      `mapstructure:"payment"`
	Notification NotificationConfig `mapstructure:"notification"`
	Cors         CorsConfig         `mapstructure:"cors"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
	Version     string `mapstructure:"version"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
	HealthTimeout time.Duration `mapstructure:"health_timeout"`
}

// DatabaseConfig holds the single PostgreSQL connection this service
// owns (spec §6: one bounded context, one database).
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// RedisConfig holds Redis connection settings, used only by the
// idempotency middleware in this bounded context.
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the Redis address.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	ServiceName   string  `mapstructure:"service_name"`
	CollectorAddr string  `mapstructure:"collector_addr"`
	SampleRatio   float64 `mapstructure:"sample_ratio"`
}

// BookingConfig holds the domain tunables spec §6 names as env vars.
type BookingConfig struct {
	HoldTTL            time.Duration   `mapstructure:"hold_ttl"`
	OutboxPollInterval time.Duration   `mapstructure:"outbox_poll_interval"`
	OutboxBatchSize    int             `mapstructure:"outbox_batch_size"`
	OutboxMaxRetries   int             `mapstructure:"outbox_max_retries"`
	OutboxRetryDelays  []time.Duration `mapstructure:"outbox_retry_delays"`
	ReapInterval       time.Duration   `mapstructure:"reap_interval"`
	ReapBatchSize      int             `mapstructure:"reap_batch_size"`
}

// WebhookConfig holds the shared secret used to verify inbound payment
// webhook signatures (spec §6).
type WebhookConfig struct {
	Secret string `mapstructure:"secret"`
}

// PaymentConfig holds the outbound coordinates for the external payment
// gateway this service calls during the booking saga (spec §4.K); the
// gateway implementation itself lives outside this bounded context.
type PaymentConfig struct {
	BaseURL string `mapstructure:"base_url"`
	ApiKey  string `mapstructure:"api_key"`
}

// CorsConfig holds the allowed cross-origin callers for the HTTP
// surface, per spec §6 ("CORS_ORIGINS required unless development").
type CorsConfig struct {
	Origins []string `mapstructure:"origins"`
}

// NotificationConfig holds the outbound coordinates for the external
// notification gateway the outbox's TicketIssued consumer calls (spec
// §4.K); the gateway implementation itself is out of scope.
type NotificationConfig struct {
	BaseURL string `mapstructure:"base_url"`
	ApiKey  string `mapstructure:"api_key"`
}

// Load loads configuration from environment variables and an optional
// .env file.
func Load() (*Config, error) {
	return load(".env")
}

// LoadWithPath loads configuration from a specific env file path.
func LoadWithPath(path string) (*Config, error) {
	return load(path)
}

func load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{}
	bindConfig(v, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "avionics")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("APP_DEBUG", true)
	v.SetDefault("APP_VERSION", "1.0.0")

	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", "30s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")
	v.SetDefault("SHUTDOWN_GRACE_S", 30)
	v.SetDefault("HEALTH_TIMEOUT_S", 5)

	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "postgres")
	v.SetDefault("DATABASE_DBNAME", "avionics")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 50)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 10)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("DATABASE_CONN_MAX_IDLE_TIME", "30m")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 50)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 5)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "3s")

	v.SetDefault("OTEL_ENABLED", true)
	v.SetDefault("OTEL_SERVICE_NAME", "avionics")
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)

	v.SetDefault("HOLD_TTL_MIN", 15)
	v.SetDefault("OUTBOX_POLL_MS", 1000)
	v.SetDefault("OUTBOX_BATCH", 100)
	v.SetDefault("OUTBOX_MAX_RETRIES", 3)
	v.SetDefault("OUTBOX_RETRY_DELAYS_MS", "1000,2000,4000")
	v.SetDefault("REAP_INTERVAL_S", 60)
	v.SetDefault("REAP_BATCH", 100)

	v.SetDefault("WEBHOOK_SECRET", "")

	v.SetDefault("PAYMENT_BASE_URL", "http://localhost:8081")
	v.SetDefault("PAYMENT_API_KEY", "")

	v.SetDefault("NOTIFICATION_BASE_URL", "http://localhost:8082")
	v.SetDefault("NOTIFICATION_API_KEY", "")

	v.SetDefault("CORS_ORIGINS", "")
}

func bindConfig(v *viper.Viper, cfg *Config) {
	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")
	cfg.App.Debug = v.GetBool("APP_DEBUG")
	cfg.App.Version = v.GetString("APP_VERSION")

	cfg.Server.Host = v.GetString("SERVER_HOST")
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.IdleTimeout = v.GetDuration("SERVER_IDLE_TIMEOUT")
	cfg.Server.ShutdownGrace = time.Duration(v.GetInt("SHUTDOWN_GRACE_S")) * time.Second
	cfg.Server.HealthTimeout = time.Duration(v.GetInt("HEALTH_TIMEOUT_S")) * time.Second

	cfg.Database.Host = v.GetString("DATABASE_HOST")
	cfg.Database.Port = v.GetInt("DATABASE_PORT")
	cfg.Database.User = v.GetString("DATABASE_USER")
	cfg.Database.Password = v.GetString("DATABASE_PASSWORD")
	cfg.Database.DBName = v.GetString("DATABASE_DBNAME")
	cfg.Database.SSLMode = v.GetString("DATABASE_SSLMODE")
	cfg.Database.MaxOpenConns = v.GetInt("DATABASE_MAX_OPEN_CONNS")
	cfg.Database.MaxIdleConns = v.GetInt("DATABASE_MAX_IDLE_CONNS")
	cfg.Database.ConnMaxLifetime = v.GetDuration("DATABASE_CONN_MAX_LIFETIME")
	cfg.Database.ConnMaxIdleTime = v.GetDuration("DATABASE_CONN_MAX_IDLE_TIME")

	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetInt("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.PoolSize = v.GetInt("REDIS_POOL_SIZE")
	cfg.Redis.MinIdleConns = v.GetInt("REDIS_MIN_IDLE_CONNS")
	cfg.Redis.DialTimeout = v.GetDuration("REDIS_DIAL_TIMEOUT")
	cfg.Redis.ReadTimeout = v.GetDuration("REDIS_READ_TIMEOUT")
	cfg.Redis.WriteTimeout = v.GetDuration("REDIS_WRITE_TIMEOUT")

	cfg.OTel.Enabled = v.GetBool("OTEL_ENABLED")
	cfg.OTel.ServiceName = v.GetString("OTEL_SERVICE_NAME")
	cfg.OTel.CollectorAddr = v.GetString("OTEL_COLLECTOR_ADDR")
	cfg.OTel.SampleRatio = v.GetFloat64("OTEL_SAMPLE_RATIO")

	cfg.Booking.HoldTTL = time.Duration(v.GetInt("HOLD_TTL_MIN")) * time.Minute
	cfg.Booking.OutboxPollInterval = time.Duration(v.GetInt("OUTBOX_POLL_MS")) * time.Millisecond
	cfg.Booking.OutboxBatchSize = v.GetInt("OUTBOX_BATCH")
	cfg.Booking.OutboxMaxRetries = v.GetInt("OUTBOX_MAX_RETRIES")
	cfg.Booking.OutboxRetryDelays = parseMillisList(v.GetString("OUTBOX_RETRY_DELAYS_MS"))
	cfg.Booking.ReapInterval = time.Duration(v.GetInt("REAP_INTERVAL_S")) * time.Second
	cfg.Booking.ReapBatchSize = v.GetInt("REAP_BATCH")

	cfg.Webhook.Secret = v.GetString("WEBHOOK_SECRET")

	cfg.Payment.BaseURL = v.GetString("PAYMENT_BASE_URL")
	cfg.Payment.ApiKey = v.GetString("PAYMENT_API_KEY")

	cfg.Notification.BaseURL = v.GetString("NOTIFICATION_BASE_URL")
	cfg.Notification.ApiKey = v.GetString("NOTIFICATION_API_KEY")

	if origins := v.GetString("CORS_ORIGINS"); origins != "" {
		cfg.Cors.Origins = strings.Split(origins, ",")
	}
}

// parseMillisList parses a comma-separated list of millisecond counts
// (e.g. "1000,2000,4000") into the outbox publisher's retry schedule.
// Entries that don't parse as a positive integer are skipped rather than
// failing config load outright, since a malformed schedule shouldn't take
// the whole process down.
func parseMillisList(raw string) []time.Duration {
	var delays []time.Duration
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ms, err := strconv.Atoi(part)
		if err != nil || ms <= 0 {
			continue
		}
		delays = append(delays, time.Duration(ms)*time.Millisecond)
	}
	return delays
}

// Validate checks required settings.
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.Host == "" || c.Database.DBName == "" {
		return fmt.Errorf("database host and dbname are required")
	}
	if c.IsProduction() && c.Webhook.Secret == "" {
		return fmt.Errorf("WEBHOOK_SECRET must be set in production")
	}
	if !c.IsDevelopment() && len(c.Cors.Origins) == 0 {
		return fmt.Errorf("CORS_ORIGINS must be set outside development")
	}
	return nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development environment.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}
