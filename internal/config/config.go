package config

import (
	"os"
	"strconv"
)

// Config holds runtime settings sourced from the environment.
type Config struct {
	Port          string
	AllowedOrigin string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AMQPURL       string
	SaleQueueName string

	AuthSecret            string
	AccessTokenTTLMinutes int

	PageSize               int
	ProductCacheTTLSeconds int
}

// Load reads configuration from environment variables with development
// defaults for everything except secrets.
func Load() Config {
	cfg := Config{
		Port:          getEnv("PORT", "8080"),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "*"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       0,

		AMQPURL:       os.Getenv("AMQP_URL"),
		SaleQueueName: getEnv("SALE_QUEUE_NAME", "sale-events"),

		AuthSecret:            os.Getenv("AUTH_SECRET"),
		AccessTokenTTLMinutes: 480,

		PageSize:               20,
		ProductCacheTTLSeconds: 60,
	}

	if raw := os.Getenv("REDIS_DB"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			cfg.RedisDB = parsed
		}
	}
	if raw := os.Getenv("ACCESS_TOKEN_TTL_MINUTES"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			cfg.AccessTokenTTLMinutes = parsed
		}
	}
	if raw := os.Getenv("SALES_PAGE_SIZE"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			cfg.PageSize = parsed
		}
	}
	if raw := os.Getenv("PRODUCT_CACHE_TTL_SECONDS"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			cfg.ProductCacheTTLSeconds = parsed
		}
	}

	return cfg
}

// Address returns the listen address derived from Port.
func (c Config) Address() string {
	return ":" + c.Port
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
