package config

import (
	"os"
	"strconv"
	"strings"
)

// Store backend selectors.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config captures process-level configuration. Values come from the
// environment so main stays lean and deployments stay twelve-factor.
type Config struct {
	Addr string

	// Store selects the key-value backend: memory, redis, or postgres.
	Store string
	// StoreQuotaBytes caps the memory backend; 0 means unlimited.
	StoreQuotaBytes int64

	RedisURL    string
	PostgresURL string

	KafkaBrokers []string
	KafkaTopic   string

	// JWTSigningKey enables bearer-token auth on the API when non-empty.
	JWTSigningKey string

	MaxArtifactBytes int64
}

// FromEnv builds a Config from environment variables with development-safe
// defaults.
func FromEnv() Config {
	cfg := Config{
		Addr:             envOr("PMOHUB_ADDR", ":8080"),
		Store:            envOr("PMOHUB_STORE", StoreMemory),
		StoreQuotaBytes:  envInt64("PMOHUB_STORE_QUOTA_BYTES", 5<<20),
		RedisURL:         os.Getenv("PMOHUB_REDIS_URL"),
		PostgresURL:      os.Getenv("PMOHUB_POSTGRES_URL"),
		KafkaTopic:       envOr("PMOHUB_KAFKA_TOPIC", "pmohub.changes"),
		JWTSigningKey:    os.Getenv("PMOHUB_JWT_SIGNING_KEY"),
		MaxArtifactBytes: envInt64("PMOHUB_MAX_ARTIFACT_BYTES", 2<<20),
	}
	if brokers := os.Getenv("PMOHUB_KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
