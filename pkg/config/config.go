package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Change feed backends.
const (
	ChangeFeedMemory = "memory"
	ChangeFeedRedis  = "redis"
)

const devJWTSecret = "dev_secret"

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Leave         LeaveConfig
	Notifications NotificationsConfig
	Server        ServerConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// LeaveConfig tunes the leave workflow.
type LeaveConfig struct {
	Timezone        string
	CacheEnabled    bool
	BalanceCacheTTL time.Duration
	ChangeFeed      string
	StreamHeartbeat time.Duration
	// WriteRate and WriteBurst limit filing and decision calls per caller.
	// A zero rate disables the limit.
	WriteRate  float64
	WriteBurst int
}

// NotificationsConfig controls the asynchronous notification worker.
type NotificationsConfig struct {
	WorkerConcurrency int
	WorkerRetries     int
	RetryDelay        time.Duration
	QueueSize         int
}

// ServerConfig holds HTTP server timeouts.
type ServerConfig struct {
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:      v.GetString("REDIS_HOST"),
		Port:      v.GetInt("REDIS_PORT"),
		Password:  v.GetString("REDIS_PASSWORD"),
		DB:        v.GetInt("REDIS_DB"),
		KeyPrefix: v.GetString("REDIS_KEY_PREFIX"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Issuer:     v.GetString("JWT_ISSUER"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Leave = LeaveConfig{
		Timezone:        v.GetString("LEAVE_TIMEZONE"),
		CacheEnabled:    v.GetBool("ENABLE_LEAVE_CACHE"),
		BalanceCacheTTL: parseDuration(v.GetString("LEAVE_BALANCE_CACHE_TTL"), 5*time.Minute),
		ChangeFeed:      strings.ToLower(strings.TrimSpace(v.GetString("LEAVE_CHANGE_FEED"))),
		StreamHeartbeat: parseDuration(v.GetString("LEAVE_STREAM_HEARTBEAT"), 25*time.Second),
		WriteRate:       v.GetFloat64("LEAVE_WRITE_RATE"),
		WriteBurst:      v.GetInt("LEAVE_WRITE_BURST"),
	}

	cfg.Notifications = NotificationsConfig{
		WorkerConcurrency: v.GetInt("NOTIFICATIONS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("NOTIFICATIONS_WORKER_RETRIES"),
		RetryDelay:        parseDuration(v.GetString("NOTIFICATIONS_RETRY_DELAY"), 2*time.Second),
		QueueSize:         v.GetInt("NOTIFICATIONS_QUEUE_SIZE"),
	}

	cfg.Server = ServerConfig{
		ReadHeaderTimeout: parseDuration(v.GetString("SERVER_READ_HEADER_TIMEOUT"), 10*time.Second),
		ShutdownTimeout:   parseDuration(v.GetString("SERVER_SHUTDOWN_TIMEOUT"), 15*time.Second),
	}

	return cfg
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Leave.ChangeFeed {
	case ChangeFeedMemory, ChangeFeedRedis:
	default:
		return fmt.Errorf("LEAVE_CHANGE_FEED must be %q or %q, got %q", ChangeFeedMemory, ChangeFeedRedis, c.Leave.ChangeFeed)
	}
	if _, err := c.Leave.Location(); err != nil {
		return fmt.Errorf("LEAVE_TIMEZONE: %w", err)
	}
	if c.Env == EnvProduction && (c.JWT.Secret == "" || c.JWT.Secret == devJWTSecret) {
		return errors.New("JWT_SECRET must be set in production")
	}
	if c.Leave.WriteRate < 0 || c.Leave.WriteBurst < 0 {
		return errors.New("LEAVE_WRITE_RATE and LEAVE_WRITE_BURST must not be negative")
	}
	if c.Notifications.WorkerConcurrency < 0 {
		return errors.New("NOTIFICATIONS_WORKER_CONCURRENCY must not be negative")
	}
	return nil
}

// Location resolves the timezone in which leave dates are evaluated.
func (l LeaveConfig) Location() (*time.Location, error) {
	if strings.TrimSpace(l.Timezone) == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(l.Timezone)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "hris")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_KEY_PREFIX", "hris:")

	v.SetDefault("JWT_SECRET", devJWTSecret)
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("LEAVE_TIMEZONE", "UTC")
	v.SetDefault("ENABLE_LEAVE_CACHE", true)
	v.SetDefault("LEAVE_BALANCE_CACHE_TTL", "5m")
	v.SetDefault("LEAVE_CHANGE_FEED", ChangeFeedMemory)
	v.SetDefault("LEAVE_STREAM_HEARTBEAT", "25s")
	v.SetDefault("LEAVE_WRITE_RATE", 1.0)
	v.SetDefault("LEAVE_WRITE_BURST", 5)

	v.SetDefault("NOTIFICATIONS_WORKER_CONCURRENCY", 2)
	v.SetDefault("NOTIFICATIONS_WORKER_RETRIES", 3)
	v.SetDefault("NOTIFICATIONS_RETRY_DELAY", "2s")
	v.SetDefault("NOTIFICATIONS_QUEUE_SIZE", 0)

	v.SetDefault("SERVER_READ_HEADER_TIMEOUT", "10s")
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", "15s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
