// Package config loads the server configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string

	MongoURI         string
	MongoDBName      string
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	RedisAddr     string
	RedisPassword string

	CatalogDBPath          string
	CatalogMigrationsPath  string
	CatalogRefreshInterval time.Duration

	PostgresHost           string
	PostgresPort           int
	PostgresUser           string
	PostgresPassword       string
	PostgresDBName         string
	CheckoutMigrationsPath string

	KafkaBrokers []string

	PostalBaseURL string
	OrdersBaseURL string

	PaymentGatewaySecret string
}

// Load reads .env when present and falls back to defaults that work
// against a local docker-compose stack.
func Load() *Config {
	// Missing .env is fine, the environment wins anyway
	_ = godotenv.Load()

	return &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		MongoURI:         getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:      getEnv("MONGO_DB_NAME", "storefront"),
		MongoMaxPoolSize: uint64(getInt("MONGO_MAX_POOL_SIZE", 50)),
		MongoMinPoolSize: uint64(getInt("MONGO_MIN_POOL_SIZE", 5)),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		CatalogDBPath:          getEnv("CATALOG_DB_PATH", "./catalog.db"),
		CatalogMigrationsPath:  getEnv("CATALOG_MIGRATIONS_PATH", "./internal/catalog/migrations"),
		CatalogRefreshInterval: getDuration("CATALOG_REFRESH_INTERVAL", 5*time.Minute),

		PostgresHost:           getEnv("DB_HOST", "localhost"),
		PostgresPort:           getInt("DB_PORT", 5432),
		PostgresUser:           getEnv("DB_USER", "postgres"),
		PostgresPassword:       getEnv("DB_PASSWORD", "postgres"),
		PostgresDBName:         getEnv("DB_NAME", "storefront"),
		CheckoutMigrationsPath: getEnv("CHECKOUT_MIGRATIONS_PATH", "./internal/checkout/migrations"),

		KafkaBrokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),

		PostalBaseURL: getEnv("POSTAL_API_URL", "https://api.postalpincode.in"),
		OrdersBaseURL: getEnv("ORDERS_API_URL", "http://localhost:8081"),

		PaymentGatewaySecret: getEnv("PAYMENT_GATEWAY_SECRET", "rzp_test_secret"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
