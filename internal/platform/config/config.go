package config

import (
	"os"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr string
	// JWTSigningKey enables bearer-token auth on the identify endpoint when
	// non-empty. The endpoint is open by default.
	JWTSigningKey  string
	RequestTimeout time.Duration
}

// Postgres holds the contact store connection settings. An empty URL selects
// the in-memory store.
type Postgres struct {
	URL string
}

// Redis holds connection settings for the optional identifier lock. An empty
// URL disables it.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka holds audit publishing settings. Empty brokers keep the audit trail
// in-process only.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Config aggregates all service configuration.
type Config struct {
	Server   Server
	Postgres Postgres
	Redis    Redis
	Kafka    Kafka
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	addr := os.Getenv("IDENTITY_LINK_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	topic := os.Getenv("AUDIT_TOPIC")
	if topic == "" {
		topic = "identity-link.audit"
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	return Config{
		Server: Server{
			Addr:           addr,
			JWTSigningKey:  os.Getenv("JWT_SIGNING_KEY"),
			RequestTimeout: 30 * time.Second,
		},
		Postgres: Postgres{
			URL: os.Getenv("DATABASE_URL"),
		},
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: Kafka{
			Brokers: brokers,
			Topic:   topic,
		},
	}
}
