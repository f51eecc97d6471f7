package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App     AppConfig
	Store   StoreConfig
	Session SessionPolicy
	SMTP    SMTPConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	ClientURL          string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
}

type StoreConfig struct {
	// Driver selects the document store backend: "memory" or "postgres".
	Driver      string
	PostgresDSN string
}

// SessionPolicy carries every temporal policy of the sync engine as a named,
// independently configurable value. The write-side reap threshold (5m) and
// the read-side student visibility threshold (10m) are deliberately separate
// knobs.
type SessionPolicy struct {
	InactivityTimeout    time.Duration
	MaxDuration          time.Duration
	StudentListStaleness time.Duration
	HeartbeatInterval    time.Duration
	CacheTTL             time.Duration
	ListenerMaxAttempts  int
	ListenerBaseBackoff  time.Duration
}

type SMTPConfig struct {
	Host       string
	Port       int
	Email      string
	Password   string
	SenderName string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			ClientURL:          getEnv("CLIENT_URL", "http://localhost:5173"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Store: StoreConfig{
			Driver:      getEnv("STORE_DRIVER", "memory"),
			PostgresDSN: getEnv("DB_CONNECTION_STRING", ""),
		},
		Session: SessionPolicy{
			InactivityTimeout:    getEnvAsDuration("SESSION_INACTIVITY_TIMEOUT", 5*time.Minute),
			MaxDuration:          getEnvAsDuration("SESSION_MAX_DURATION", 4*time.Hour),
			StudentListStaleness: getEnvAsDuration("SESSION_STUDENT_LIST_STALENESS", 10*time.Minute),
			HeartbeatInterval:    getEnvAsDuration("PRESENCE_HEARTBEAT_INTERVAL", 30*time.Second),
			CacheTTL:             getEnvAsDuration("SESSION_CACHE_TTL", 10*time.Second),
			ListenerMaxAttempts:  getEnvAsInt("LISTENER_MAX_ATTEMPTS", 5),
			ListenerBaseBackoff:  getEnvAsDuration("LISTENER_BASE_BACKOFF", 500*time.Millisecond),
		},
		SMTP: SMTPConfig{
			Host:       getEnv("SMTP_HOST", ""),
			Port:       getEnvAsInt("SMTP_PORT", 587),
			Email:      getEnv("SMTP_EMAIL", ""),
			Password:   getEnv("SMTP_PASSWORD", ""),
			SenderName: getEnv("SMTP_SENDER_NAME", "ClassLive"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
