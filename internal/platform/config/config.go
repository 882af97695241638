package config

import (
	"os"
	"strings"
	"time"
)

// Server captures process-level configuration. Built from environment
// variables so main stays lean.
type Server struct {
	Addr          string
	AdminID       string
	JWTSigningKey string

	// Backend URLs. Empty means the in-memory implementation is used.
	PostgresURL  string
	RedisURL     string
	KafkaBrokers []string
	TopicPrefix  string

	ShutdownTimeout time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	addr := os.Getenv("MEDGATE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	admin := os.Getenv("MEDGATE_ADMIN")
	if admin == "" {
		admin = "admin"
	}

	jwtSigningKey := os.Getenv("MEDGATE_JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default - must be overridden in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	prefix := os.Getenv("MEDGATE_EVENT_TOPIC_PREFIX")
	if prefix == "" {
		prefix = "medgate"
	}

	var brokers []string
	if raw := os.Getenv("MEDGATE_KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	return Server{
		Addr:            addr,
		AdminID:         admin,
		JWTSigningKey:   jwtSigningKey,
		PostgresURL:     os.Getenv("MEDGATE_POSTGRES_URL"),
		RedisURL:        os.Getenv("MEDGATE_REDIS_URL"),
		KafkaBrokers:    brokers,
		TopicPrefix:     prefix,
		ShutdownTimeout: 10 * time.Second,
	}
}

// RedisConfig carries tuning for the shared Redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisFromEnv builds Redis settings with defaults suited to short
// rate-limit lookups.
func RedisFromEnv() RedisConfig {
	return RedisConfig{
		URL:          os.Getenv("MEDGATE_REDIS_URL"),
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	}
}
