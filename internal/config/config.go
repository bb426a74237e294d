package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	Logger LoggerConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	AuthJWTSecret string

	OpenAIAPIKey string
	OpenAIModel  string

	VisionEndpoint string
	VisionAPIKey   string

	RateLimitPerMinute int
	RateLimitPerDay    int

	SweepHour     int
	SweepTimezone string
	SweepTimeout  time.Duration
}

type LoggerConfig struct {
	Level string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "kaimo"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		Logger: LoggerConfig{
			Level: getenv("LOG_LEVEL", "info"),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "kaimo"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),

		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),

		OpenAIAPIKey: strings.TrimSpace(getenv("OPENAI_API_KEY", "")),
		OpenAIModel:  getenv("OPENAI_MODEL", "gpt-4o-mini"),

		VisionEndpoint: getenv("VISION_ENDPOINT", ""),
		VisionAPIKey:   strings.TrimSpace(getenv("VISION_API_KEY", "")),

		RateLimitPerMinute: getenvInt("RATE_LIMIT_PER_MINUTE", 5),
		RateLimitPerDay:    getenvInt("RATE_LIMIT_PER_DAY", 50),

		SweepHour:     getenvInt("SWEEP_HOUR", 2),
		SweepTimezone: getenv("SWEEP_TIMEZONE", "Asia/Tokyo"),
		SweepTimeout:  getenvDuration("SWEEP_TIMEOUT", 5*time.Minute),
	}
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("config: invalid %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("config: invalid %s=%q, using default %s", key, v, fallback)
		return fallback
	}
	return d
}

// Module wires configuration loading for the application.
var Module = fx.Module("config",
	fx.Provide(Load),
)
