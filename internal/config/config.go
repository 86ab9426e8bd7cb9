package config

import (
	"errors"
	"fmt"
	"log"
	"os"
)

const (
	defaultDSN         = "host=localhost user=postgres password=postgres dbname=tradeops port=5432 sslmode=disable"
	defaultCORSOrigins = "http://localhost:5173"

	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	HTTPPort    string
	DatabaseDSN string
	StoreDriver string
	JWTSecret   string
	CORSOrigins string
	KafkaBroker string // empty disables event publishing
	KafkaTopic  string
}

var (
	ErrMissingJWTSecret = errors.New("JWT_SECRET is not set")
	ErrShortJWTSecret   = errors.New("JWT_SECRET must be at least 32 characters")
	ErrUnknownDriver    = errors.New("unknown STORE_DRIVER")
)

func Load() *Config {
	cfg := FromEnv()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] %v", err)
	}
	if cfg.StoreDriver == StoreDriverPostgres && cfg.DatabaseDSN == defaultDSN {
		log.Println("[WARN] DATABASE_DSN uses the default value, set your own postgres connection for production.")
	}
	if cfg.CORSOrigins == defaultCORSOrigins {
		log.Println("[WARN] CORS_ALLOWED_ORIGINS uses the default value, set your own domain for production.")
	}
	if cfg.KafkaBroker == "" {
		log.Println("[WARN] KAFKA_BROKER is empty, container events will not be published.")
	}

	return cfg
}

func FromEnv() *Config {
	return &Config{
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		DatabaseDSN: getEnv("DATABASE_DSN", defaultDSN),
		StoreDriver: getEnv("STORE_DRIVER", StoreDriverPostgres),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		CORSOrigins: getEnv("CORS_ALLOWED_ORIGINS", defaultCORSOrigins),
		KafkaBroker: getEnv("KAFKA_BROKER", ""),
		KafkaTopic:  getEnv("KAFKA_TOPIC", "tradeops.containers"),
	}
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if len(c.JWTSecret) < 32 {
		return ErrShortJWTSecret
	}
	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.StoreDriver)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
