package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	WhatsApp  WhatsAppConfig
	Desk      DeskConfig
	RateLimit RateLimitConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
	BootstrapAdminName    string
	BootstrapAdminEmail   string
	BootstrapAdminPass    string
}

// WhatsAppConfig holds Cloud API credentials for the requester channel.
type WhatsAppConfig struct {
	APIBaseURL         string
	APIVersion         string
	Token              string
	PhoneNumberID      string
	VerifyToken        string
	SendTimeoutSeconds int
}

// DeskConfig tunes queue and ticket behavior.
type DeskConfig struct {
	LockTTLMinutes  int
	DedupTTLHours   int
	NotifyWorkers   int
	NotifyQueueSize int
}

// RateLimitConfig bounds per-IP request rates on the agent API.
type RateLimitConfig struct {
	Max           int
	WindowSeconds int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "intake-desk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 480),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
			BootstrapAdminName:    getEnv("AUTH_BOOTSTRAP_ADMIN_NAME", "admin"),
			BootstrapAdminEmail:   os.Getenv("AUTH_BOOTSTRAP_ADMIN_EMAIL"),
			BootstrapAdminPass:    os.Getenv("AUTH_BOOTSTRAP_ADMIN_PASSWORD"),
		},
		WhatsApp: WhatsAppConfig{
			APIBaseURL:         getEnv("WHATSAPP_API_BASE_URL", "https://graph.facebook.com"),
			APIVersion:         getEnv("WHATSAPP_API_VERSION", "v18.0"),
			Token:              os.Getenv("WHATSAPP_TOKEN"),
			PhoneNumberID:      os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
			VerifyToken:        os.Getenv("WHATSAPP_VERIFY_TOKEN"),
			SendTimeoutSeconds: getEnvAsInt("WHATSAPP_SEND_TIMEOUT_SECONDS", 10),
		},
		Desk: DeskConfig{
			LockTTLMinutes:  getEnvAsInt("DESK_LOCK_TTL_MINUTES", 15),
			DedupTTLHours:   getEnvAsInt("DESK_DEDUP_TTL_HOURS", 72),
			NotifyWorkers:   getEnvAsInt("DESK_NOTIFY_WORKERS", 2),
			NotifyQueueSize: getEnvAsInt("DESK_NOTIFY_QUEUE_SIZE", 256),
		},
		RateLimit: RateLimitConfig{
			Max:           getEnvAsInt("RATE_LIMIT_MAX", 120),
			WindowSeconds: getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// LockTTL returns the ticket claim window.
func (d DeskConfig) LockTTL() time.Duration {
	if d.LockTTLMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(d.LockTTLMinutes) * time.Minute
}

// DedupTTL returns how long inbound message ids are remembered.
func (d DeskConfig) DedupTTL() time.Duration {
	if d.DedupTTLHours <= 0 {
		return 72 * time.Hour
	}
	return time.Duration(d.DedupTTLHours) * time.Hour
}

// SendTimeout returns the outbound request timeout for the channel.
func (w WhatsAppConfig) SendTimeout() time.Duration {
	if w.SendTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(w.SendTimeoutSeconds) * time.Second
}

// Enabled reports whether credentials for outbound sends are present.
func (w WhatsAppConfig) Enabled() bool {
	return w.Token != "" && w.PhoneNumberID != ""
}

// Window returns the rate limit window.
func (r RateLimitConfig) Window() time.Duration {
	if r.WindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(r.WindowSeconds) * time.Second
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
