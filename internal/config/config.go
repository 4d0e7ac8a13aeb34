package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	LogLevel    string
	LogFormat   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

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

	SMTPHost            string
	SMTPPort            int
	SMTPUsername        string
	SMTPPassword        string
	SMTPFrom            string
	SMTPMaxConnections  int
	SMTPMaxMessagesConn int

	TrafficAPIBaseURL string

	MetricsAddr string

	ScanInterval     time.Duration
	ScanCutoffHour   int
	PopTimeout       time.Duration
	EmailMaxRetries  int
	EmailMaxAttempts int
	EmailBackoff     []time.Duration
	HealthInterval   time.Duration
	ReconcileWindow  time.Duration
	ScanLockTTL      time.Duration
	StandardPriceKey string
	VideoPriceKey    string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "trafficd"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		LogFormat:   getenv("LOG_FORMAT", "json"),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
		RedisDB:       getenvInt("REDIS_DB", 0),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "postgres"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),

		SMTPHost:            getenv("SMTP_HOST", ""),
		SMTPPort:            getenvInt("SMTP_PORT", 587),
		SMTPUsername:        getenv("SMTP_USERNAME", ""),
		SMTPPassword:        getenv("SMTP_PASSWORD", ""),
		SMTPFrom:            getenv("SMTP_FROM", "no-reply@adlift.io"),
		SMTPMaxConnections:  getenvInt("SMTP_MAX_CONNECTIONS", 5),
		SMTPMaxMessagesConn: getenvInt("SMTP_MAX_MESSAGES_PER_CONN", 100),

		TrafficAPIBaseURL: getenv("TRAFFIC_API_BASE_URL", "http://localhost:8090"),

		MetricsAddr: getenv("METRICS_ADDR", ":2112"),

		ScanInterval:     getenvDuration("SCAN_INTERVAL", 24*time.Hour),
		ScanCutoffHour:   getenvInt("SCAN_CUTOFF_HOUR", 7),
		PopTimeout:       getenvDuration("QUEUE_POP_TIMEOUT", 10*time.Second),
		EmailMaxRetries:  getenvInt("EMAIL_MAX_RETRIES", 3),
		EmailMaxAttempts: getenvInt("EMAIL_MAX_ATTEMPTS", 6),
		EmailBackoff:     getenvDurations("EMAIL_BACKOFF", []time.Duration{time.Second, 5 * time.Second, 30 * time.Second}),
		HealthInterval:   getenvDuration("MAIL_HEALTH_INTERVAL", time.Minute),
		ReconcileWindow:  getenvDuration("REFUND_RECONCILE_WINDOW", 7*24*time.Hour),
		ScanLockTTL:      getenvDuration("SCAN_LOCK_TTL", 10*time.Minute),
		StandardPriceKey: getenv("STANDARD_PRICE_SETTING", "keyword_unit_price"),
		VideoPriceKey:    getenv("VIDEO_PRICE_SETTING", "video_keyword_unit_price"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDurations(key string, def []time.Duration) []time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parts := strings.Split(value, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		parsed, err := time.ParseDuration(p)
		if err != nil {
			return def
		}
		out = append(out, parsed)
	}
	if len(out) == 0 {
		return def
	}
	return out
}
