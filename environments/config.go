package environments

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Upstream UpstreamConfig
	Push     PushConfig
	Cache    CacheConfig
	Window   WindowConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port string
}

// UpstreamConfig points at the messaging provider's REST API.
type UpstreamConfig struct {
	BaseURL string
	AuthKey string
	Timeout time.Duration
}

// PushConfig points at the messaging provider's websocket push channel.
type PushConfig struct {
	URL              string
	AuthKey          string
	HandshakeTimeout time.Duration
}

type CacheConfig struct {
	Host       string
	Port       string
	Password   string
	DB         int
	SummaryTTL time.Duration
}

// WindowConfig controls the customer service window rule.
type WindowConfig struct {
	Duration     time.Duration
	TickInterval time.Duration
}

type AuthConfig struct {
	ConsoleAPIKey string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: GetEnv("SERVER_PORT", "8080"),
		},
		Upstream: UpstreamConfig{
			BaseURL: GetEnv("UPSTREAM_BASE_URL", "http://localhost:9000"),
			AuthKey: GetEnv("UPSTREAM_AUTH_KEY", ""),
			Timeout: GetEnvAsDuration("UPSTREAM_TIMEOUT", 30*time.Second),
		},
		Push: PushConfig{
			URL:              GetEnv("PUSH_URL", "ws://localhost:9000/push"),
			AuthKey:          GetEnv("PUSH_AUTH_KEY", ""),
			HandshakeTimeout: GetEnvAsDuration("PUSH_HANDSHAKE_TIMEOUT", 10*time.Second),
		},
		Cache: CacheConfig{
			Host:       GetEnv("CACHE_HOST", "localhost"),
			Port:       GetEnv("CACHE_PORT", "6379"),
			Password:   GetEnv("CACHE_PASSWORD", ""),
			DB:         GetEnvAsInt("CACHE_DB", 0),
			SummaryTTL: GetEnvAsDuration("CACHE_SUMMARY_TTL", 30*time.Second),
		},
		Window: WindowConfig{
			Duration:     GetEnvAsDuration("SESSION_WINDOW_DURATION", 24*time.Hour),
			TickInterval: GetEnvAsDuration("SESSION_WINDOW_TICK", 60*time.Second),
		},
		Auth: AuthConfig{
			ConsoleAPIKey: GetEnv("CONSOLE_API_KEY", ""),
		},
	}
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
