package config

import (
	"fmt"
	"os"
	"strings"
)

type Config struct {
	Port                 string
	Environment          string
	PostgresUser         string
	PostgresPassword     string
	PostgresDB           string
	PostgresHost         string
	PostgresPort         string
	PostgresSSLMode      string
	PostgresTimeZone     string
	StripeSecretKey      string
	StripePublishableKey string
	StripeWebhookSecret  string
	FrontendURL          string
	JWTSecret            string
	KafkaBrokers         []string
	OrderEventsTopic     string
	RedisAddr            string
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		Environment:          getEnv("ENVIRONMENT", "development"),
		PostgresUser:         os.Getenv("POSTGRES_USER"),
		PostgresPassword:     os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:           os.Getenv("POSTGRES_DB"),
		PostgresHost:         os.Getenv("POSTGRES_HOST"),
		PostgresPort:         getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:      getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone:     getEnv("POSTGRES_TIMEZONE", "UTC"),
		StripeSecretKey:      os.Getenv("STRIPE_SECRET_KEY"),
		StripePublishableKey: os.Getenv("STRIPE_PUBLISHABLE_KEY"),
		StripeWebhookSecret:  os.Getenv("STRIPE_WEBHOOK_SECRET"),
		FrontendURL:          getEnv("FRONTEND_URL", "http://localhost:3000"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		KafkaBrokers:         splitCSV(os.Getenv("KAFKA_BROKERS")),
		OrderEventsTopic:     getEnv("ORDER_EVENTS_TOPIC", "order.events"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
	}

	if cfg.PostgresUser == "" || cfg.PostgresPassword == "" || cfg.PostgresDB == "" || cfg.PostgresHost == "" {
		return nil, fmt.Errorf("database config incomplete")
	}
	if cfg.StripeSecretKey == "" || cfg.StripePublishableKey == "" || cfg.StripeWebhookSecret == "" {
		return nil, fmt.Errorf("stripe config incomplete")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

// DSN builds the Postgres connection string consumed by the gorm driver.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB,
		c.PostgresPort, c.PostgresSSLMode, c.PostgresTimeZone,
	)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
