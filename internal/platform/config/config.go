package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures the full service configuration. FromEnv builds it from
// environment variables so main stays lean.
type Server struct {
	Addr          string
	JWTSigningKey string

	// Remote capabilities.
	VerifierURL    string
	ObjectStoreURL string

	// Session store selection: "memory" (default), "redis", or "postgres".
	SessionBackend string
	RedisURL       string
	PostgresDSN    string
	SessionTTL     time.Duration

	// Audit trail: Kafka is optional; the in-memory sink always runs.
	KafkaBrokers []string
	KafkaTopic   string

	// Workflow bounds.
	MaxAttempts int
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	cfg := Server{
		Addr:           envOr("VERIGATE_ADDR", ":8080"),
		JWTSigningKey:  envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		VerifierURL:    envOr("VERIFIER_URL", "http://localhost:9090"),
		ObjectStoreURL: envOr("OBJECT_STORE_URL", "http://localhost:9091"),
		SessionBackend: envOr("SESSION_BACKEND", "memory"),
		RedisURL:       os.Getenv("REDIS_URL"),
		PostgresDSN:    os.Getenv("POSTGRES_DSN"),
		SessionTTL:     24 * time.Hour,
		KafkaTopic:     envOr("KAFKA_AUDIT_TOPIC", "verigate.audit"),
		MaxAttempts:    3,
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	if ttl := os.Getenv("SESSION_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil && d > 0 {
			cfg.SessionTTL = d
		}
	}
	if max := os.Getenv("MAX_ATTEMPTS"); max != "" {
		if n, err := strconv.Atoi(max); err == nil && n > 0 {
			cfg.MaxAttempts = n
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
