package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server  ServerConfig
	SQLite  SQLiteConfig
	Logger  LoggerConfig
	Webhook WebhookConfig
	Redis   RedisConfig
	Audit   AuditConfig
}

type ServerConfig struct {
	Addr     string
	AppEnv   string
	Timezone string
}

type SQLiteConfig struct {
	Path          string
	MigrationsDir string
}

type LoggerConfig struct {
	Level             string
	Encoding          string
	DisableCaller     bool
	DisableStacktrace bool
}

type WebhookConfig struct {
	URLs      []string
	Timeout   time.Duration
	QueueSize int
}

// RedisConfig enables event publishing when Addr is set.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	Channel   string
	QueueSize int
}

// AuditConfig drives the retention purge. RetentionDays <= 0 keeps rows forever.
type AuditConfig struct {
	RetentionDays int
	PurgeInterval time.Duration
}

func LoadEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:     getEnv("APP_ADDR", ":8080"),
			AppEnv:   getEnv("APP_ENV", "dev"),
			Timezone: getEnv("APP_TIMEZONE", "UTC"),
		},
		SQLite: SQLiteConfig{
			Path:          getEnv("SQLITE_PATH", "baletrack.db"),
			MigrationsDir: getEnv("MIGRATIONS_DIR", ""),
		},
		Logger: LoggerConfig{
			Level:             getEnv("LOGGER_LEVEL", "info"),
			Encoding:          getEnv("LOGGER_ENCODING", "console"),
			DisableCaller:     getEnvBool("LOGGER_DISABLE_CALLER", false),
			DisableStacktrace: getEnvBool("LOGGER_DISABLE_STACKTRACE", true),
		},
		Webhook: WebhookConfig{
			URLs:      getEnvSlice("WEBHOOK_URLS", nil),
			Timeout:   getEnvDuration("WEBHOOK_TIMEOUT", 30*time.Second),
			QueueSize: getEnvInt("WEBHOOK_QUEUE_SIZE", 256),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", ""),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvInt("REDIS_DB", 0),
			Channel:   getEnv("REDIS_CHANNEL", "baletrack:events"),
			QueueSize: getEnvInt("REDIS_QUEUE_SIZE", 256),
		},
		Audit: AuditConfig{
			RetentionDays: getEnvInt("AUDIT_RETENTION_DAYS", 0),
			PurgeInterval: getEnvDuration("AUDIT_PURGE_INTERVAL", 24*time.Hour),
		},
	}
}

// Location resolves the configured timezone, falling back to UTC.
func (c ServerConfig) Location() *time.Location {
	if strings.TrimSpace(c.Timezone) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		out := make([]string, 0)
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return fallback
}
