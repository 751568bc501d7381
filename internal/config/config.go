// Package config loads service configuration from environment variables,
// applies defaults and validates everything on startup.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all service configuration.
type Config struct {
	Server      ServerConfig
	Ledger      LedgerConfig
	Mongo       MongoConfig
	Operations  OperationsConfig
	Upload      UploadConfig
	Rate        RateLimitConfig
	Security    SecurityConfig
	Connections ConnectionsConfig
	Logging     LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"10m"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds the graceful drain of in-flight operations
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"60s"`

	// MaxBodyBytes caps JSON request bodies, including base64 file content
	MaxBodyBytes int64 `env:"SERVER_MAX_BODY_BYTES" default:"209715200"`
}

// LedgerConfig selects where log entries and connection descriptors live.
type LedgerConfig struct {
	// Backend is memory or postgres (default: memory)
	Backend string `env:"LEDGER_BACKEND" default:"memory"`

	// URL is the PostgreSQL connection string, required for the postgres backend
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// MongoConfig points at the service content database. Empty URI keeps
// workspace content in memory.
type MongoConfig struct {
	URI      string `env:"MONGO_URI"`
	Database string `env:"MONGO_DATABASE" default:"tenantinit"`

	// VectorDimensions > 0 builds an Atlas vector search index instead of a text index
	VectorDimensions int    `env:"MONGO_VECTOR_DIMENSIONS" default:"0"`
	AuthSource       string `env:"MONGO_AUTH_SOURCE" default:"admin"`
}

// OperationsConfig bounds concurrent orchestrator work.
type OperationsConfig struct {
	MaxConcurrent       int           `env:"OPERATIONS_MAX_CONCURRENT" default:"8"`
	MaxWaitTime         time.Duration `env:"OPERATIONS_MAX_WAIT_TIME" default:"30s"`
	CollaboratorTimeout time.Duration `env:"COLLABORATOR_TIMEOUT" default:"2m"`

	// PostgresSSLMode applies to tenant relational connections
	PostgresSSLMode string `env:"TENANT_PG_SSLMODE" default:"prefer"`
}

// UploadConfig holds seeding limits.
type UploadConfig struct {
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"52428800"`
	BatchSize   int   `env:"UPLOAD_BATCH_SIZE" default:"500"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"120"`
	Burst             int  `env:"RATE_LIMIT_BURST" default:"20"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// CredentialKey is a base64 32-byte key sealing tenant database passwords
	CredentialKey string `env:"CREDENTIAL_KEY"`

	// TrustedProxies is a comma-separated list of proxy CIDRs allowed to set X-Forwarded-For
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// ConnectionsConfig points at an optional provisioning bootstrap file.
type ConnectionsConfig struct {
	File string `env:"CONNECTIONS_FILE"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" default:"info"`
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// UsePostgres reports whether the ledger and registry are durable.
func (c *LedgerConfig) UsePostgres() bool {
	return c.Backend == "postgres"
}
