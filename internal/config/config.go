package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Module provides the environment-backed Config and the hot-reloaded engine settings.
var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewEngineConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPPort    string

	LogLevel  string
	LogFormat string

	OtelEnabled       bool
	OTLPEndpoint      string
	OTLPProtocol      string
	OtelSamplingRatio float64

	// Adjuster selects the order promotion adjuster implementation.
	// "friendly" runs this engine, "legacy" leaves discounting to the host platform.
	Adjuster string

	DBType            string
	// DBDSN, when set, is passed to the driver verbatim.
	DBDSN             string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBAutoMigrate     bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// OrderLockTTLSeconds bounds how long one recalculation may hold an order.
	OrderLockTTLSeconds int
	CouponAttemptRate   float64
	CouponAttemptBurst  int

	KafkaBrokers []string
	KafkaTopic   string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:             getenv("APP_SERVICE", "promotions"),
		AppVersion:          getenv("APP_VERSION", "0.1.0"),
		Environment:         getenv("ENVIRONMENT", "development"),
		HTTPPort:            getenv("HTTP_PORT", "8080"),
		LogLevel:            strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
		LogFormat:           strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
		OtelEnabled:         getenvBool("OTEL_ENABLED", true),
		OTLPEndpoint:        strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317"))),
		OTLPProtocol:        otlpProtocol(),
		OtelSamplingRatio:   getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		Adjuster:            normalizeAdjuster(getenv("PROMOTION_ADJUSTER", AdjusterFriendly)),
		DBType:              getenv("DATABASE_TYPE", "postgres"),
		DBDSN:               strings.TrimSpace(getenv("DATABASE_DSN", "")),
		DBHost:              getenv("DATABASE_HOST", "localhost"),
		DBPort:              getenv("DATABASE_PORT", "5432"),
		DBName:              getenv("DATABASE_NAME", "postgres"),
		DBUser:              getenv("DATABASE_USER", "postgres"),
		DBPassword:          getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:           getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:       getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:       getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime:   getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime:   getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBAutoMigrate:       getenvBool("DATABASE_AUTO_MIGRATE", true),
		RedisAddr:           strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:       getenv("REDIS_PASSWORD", ""),
		RedisDB:             getenvInt("REDIS_DB", 0),
		OrderLockTTLSeconds: getenvInt("ORDER_LOCK_TTL_SECONDS", 30),
		CouponAttemptRate:   getenvFloat("COUPON_ATTEMPT_RATE", 0.2),
		CouponAttemptBurst:  getenvInt("COUPON_ATTEMPT_BURST", 10),
		KafkaBrokers:        parseList(getenv("KAFKA_BROKERS", "")),
		KafkaTopic:          getenv("KAFKA_TOPIC", "promotions.events"),
	}
}

const (
	AdjusterFriendly = "friendly"
	AdjusterLegacy   = "legacy"
)

func normalizeAdjuster(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case AdjusterLegacy:
		return AdjusterLegacy
	default:
		return AdjusterFriendly
	}
}

// otlpProtocol prefers the traces-specific override, matching the otel exporter env conventions.
func otlpProtocol() string {
	protocol := getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))
	return strings.ToLower(strings.TrimSpace(protocol))
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
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

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
