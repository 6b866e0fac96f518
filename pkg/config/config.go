// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store selects and configures the persistence driver.
type Store struct {
	Driver         string   `env:"STORE_DRIVER"    envDefault:"memory"`
	SQLitePath     string   `env:"SQLITE_PATH"     envDefault:"roomchat.db"`
	ScyllaHosts    []string `env:"SCYLLA_HOSTS"    envDefault:"localhost:9042"`
	ScyllaKeyspace string   `env:"SCYLLA_KEYSPACE" envDefault:"chat"`
}

// Kafka configures the event journal. No brokers disables it.
type Kafka struct {
	Brokers []string `env:"KAFKA_BROKERS"`
	Topic   string   `env:"KAFKA_TOPIC"    envDefault:"chat-events"`
	GroupID string   `env:"KAFKA_GROUP_ID" envDefault:"roomchat-auditor"`
}

// Enabled reports whether any broker is configured.
func (k Kafka) Enabled() bool {
	return len(k.Brokers) > 0
}

// Common is shared by every service.
type Common struct {
	LogFile  string `env:"LOG_FILE"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	NodeID   int64  `env:"NODE_ID"   envDefault:"1"`
	// Empty disables the Redis presence mirror.
	RedisAddr string `env:"REDIS_ADDR"`
	Store     Store
	Kafka     Kafka
}

// Gateway is the websocket service.
type Gateway struct {
	Common
	Addr            string        `env:"GATEWAY_ADDR"     envDefault:":5000"`
	AllowedOrigins  []string      `env:"ALLOWED_ORIGINS"  envDefault:"http://localhost:3000,http://localhost:3001,http://localhost:3002"`
	MaxFrameBytes   int64         `env:"MAX_FRAME_BYTES"  envDefault:"16384"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// API is the HTTP read service.
type API struct {
	Common
	Addr            string        `env:"API_ADDR"         envDefault:":8081"`
	AllowedOrigins  []string      `env:"ALLOWED_ORIGINS"  envDefault:"http://localhost:3000,http://localhost:3001,http://localhost:3002"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Auditor consumes the journal into an append-only log.
type Auditor struct {
	Common
	AuditLog string `env:"AUDIT_LOG" envDefault:"audit.log"`
}

// Load parses T from the environment.
func Load[T any]() (T, error) {
	cfg, err := env.ParseAs[T]()
	if err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// OriginAllowed reports whether origin is in allowed. "*" allows everything;
// an empty origin (non-browser clients) is always allowed.
func OriginAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		a = strings.TrimSpace(a)
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}
