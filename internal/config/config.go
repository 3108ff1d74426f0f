package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// PreviewMode controls how list summaries expose the last message.
type PreviewMode string

const (
	// PreviewPresence only reports whether a last message exists.
	PreviewPresence PreviewMode = "presence"
	// PreviewFull carries the last message text.
	PreviewFull PreviewMode = "full"
)

// Config aggregates runtime configuration for the client and the relay.
type Config struct {
	App      AppConfig
	Logger   LoggerConfig
	Client   ClientConfig
	Relay    RelayConfig
	Postgres PostgresConfig
	Redis    RedisConfig
}

// AppConfig identifies the running binary.
type AppConfig struct {
	Name    string
	Env     string
	Version string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// ClientConfig controls the vendor-side sync client.
type ClientConfig struct {
	APIBaseURL        string
	RealtimeURL       string
	AuthToken         string
	RequestTimeout    time.Duration
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	WriteTimeout      time.Duration
	ReloadConflation  time.Duration
	PreviewMode       PreviewMode
	PageSize          int
}

// RelayConfig controls the development relay server.
type RelayConfig struct {
	Host           string
	Port           string
	RealtimePort   string
	AllowedOrigins []string
	JWTSecret      string
	TokenTTL       time.Duration
	RequestTimeout time.Duration
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	preview := PreviewMode(strings.ToLower(getEnv("SYNC_PREVIEW_MODE", string(PreviewPresence))))
	if preview != PreviewPresence && preview != PreviewFull {
		return nil, fmt.Errorf("invalid SYNC_PREVIEW_MODE %q", preview)
	}

	cfg := &Config{
		App: AppConfig{
			Name:    getEnv("APP_NAME", "ticket-sync"),
			Env:     getEnv("APP_ENV", "development"),
			Version: getEnv("APP_VERSION", "dev"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Client: ClientConfig{
			APIBaseURL:        strings.TrimRight(getEnv("API_BASE_URL", "http://127.0.0.1:8080/api"), "/"),
			RealtimeURL:       getEnv("REALTIME_URL", "ws://127.0.0.1:8081/ws"),
			AuthToken:         os.Getenv("AUTH_TOKEN"),
			RequestTimeout:    getEnvAsDuration("HTTP_REQUEST_TIMEOUT", 15*time.Second),
			ReconnectAttempts: getEnvAsInt("REALTIME_RECONNECT_ATTEMPTS", 5),
			ReconnectDelay:    getEnvAsDuration("REALTIME_RECONNECT_DELAY", time.Second),
			WriteTimeout:      getEnvAsDuration("REALTIME_WRITE_TIMEOUT", 5*time.Second),
			ReloadConflation:  getEnvAsDuration("SYNC_RELOAD_CONFLATION", 0),
			PreviewMode:       preview,
			PageSize:          getEnvAsInt("SYNC_PAGE_SIZE", 20),
		},
		Relay: RelayConfig{
			Host:           getEnv("RELAY_HOST", "0.0.0.0"),
			Port:           getEnv("RELAY_PORT", "8080"),
			RealtimePort:   getEnv("RELAY_REALTIME_PORT", "8081"),
			AllowedOrigins: splitList(getEnv("RELAY_ALLOWED_ORIGINS", "localhost:*")),
			JWTSecret:      getEnv("AUTH_JWT_SECRET", "dev-secret"),
			TokenTTL:       time.Duration(getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60)) * time.Minute,
			RequestTimeout: getEnvAsDuration("RELAY_REQUEST_TIMEOUT", 30*time.Second),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
			Channel:  getEnv("REDIS_EVENTS_CHANNEL", "ticket-sync:events"),
		},
	}

	if cfg.Client.ReconnectAttempts < 0 {
		cfg.Client.ReconnectAttempts = 0
	}
	if cfg.Client.PageSize <= 0 {
		cfg.Client.PageSize = 20
	}

	return cfg, nil
}

// Addr returns the relay HTTP bind address.
func (r RelayConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// RealtimeAddr returns the relay websocket bind address.
func (r RelayConfig) RealtimeAddr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.RealtimePort)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvAsDuration accepts Go durations ("1500ms") or plain milliseconds.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(val); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
