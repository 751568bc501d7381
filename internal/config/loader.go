package config

import (
	"encoding/base64"
	"fmt"
	"net/netip"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from the process environment.
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads configuration through lookup, applies defaults and validates.
func LoadFrom(lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem(), lookup); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadStruct populates tagged fields, recursing into nested structs.
func loadStruct(v reflect.Value, lookup func(string) (string, bool)) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal, lookup); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		value, _ := lookup(envName)
		if alt := field.Tag.Get("envAlt"); value == "" && alt != "" {
			value, _ = lookup(alt)
		}

		if value == "" {
			if field.Tag.Get("required") == "true" {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = field.Tag.Get("default")
		}
		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(strings.TrimSpace(value))

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
			return nil
		}
		i, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(i)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		var result []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				result = append(result, p)
			}
		}
		field.Set(reflect.ValueOf(result))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks the configuration and reports every failure at once.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("SERVER_PORT (%d) must be 1-65535", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		add("SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.MaxBodyBytes <= 0 {
		add("SERVER_MAX_BODY_BYTES must be positive")
	}

	switch c.Ledger.Backend {
	case "memory":
	case "postgres":
		if c.Ledger.URL == "" {
			add("DATABASE_URL is required when LEDGER_BACKEND=postgres")
		}
		if c.Ledger.MaxConns <= 0 {
			add("DB_MAX_CONNS must be positive")
		}
		if c.Ledger.MinConns < 0 || c.Ledger.MinConns > c.Ledger.MaxConns {
			add("DB_MIN_CONNS (%d) must be between 0 and DB_MAX_CONNS (%d)", c.Ledger.MinConns, c.Ledger.MaxConns)
		}
	default:
		add("LEDGER_BACKEND (%q) must be one of: memory, postgres", c.Ledger.Backend)
	}

	if c.Mongo.URI != "" && c.Mongo.Database == "" {
		add("MONGO_DATABASE is required when MONGO_URI is set")
	}
	if c.Mongo.VectorDimensions < 0 {
		add("MONGO_VECTOR_DIMENSIONS must be non-negative")
	}

	if c.Operations.MaxConcurrent <= 0 {
		add("OPERATIONS_MAX_CONCURRENT must be positive")
	}
	if c.Operations.MaxWaitTime <= 0 {
		add("OPERATIONS_MAX_WAIT_TIME must be positive")
	}
	if c.Operations.CollaboratorTimeout <= 0 {
		add("COLLABORATOR_TIMEOUT must be positive")
	}

	if c.Upload.MaxFileSize <= 0 {
		add("UPLOAD_MAX_FILE_SIZE must be positive")
	}
	if c.Upload.BatchSize <= 0 {
		add("UPLOAD_BATCH_SIZE must be positive")
	}

	if c.Rate.Enabled && (c.Rate.RequestsPerMinute <= 0 || c.Rate.Burst <= 0) {
		add("RATE_LIMIT_REQUESTS_PER_MINUTE and RATE_LIMIT_BURST must be positive when rate limiting is enabled")
	}

	if c.Security.CredentialKey != "" {
		raw, err := base64.StdEncoding.DecodeString(c.Security.CredentialKey)
		if err != nil || len(raw) != 32 {
			add("CREDENTIAL_KEY must be a base64-encoded 32-byte key")
		}
	}
	for _, cidr := range c.Security.TrustedProxies {
		if _, err := netip.ParsePrefix(cidr); err != nil {
			add("TRUSTED_PROXIES entry %q is not a CIDR", cidr)
		}
	}

	if f := c.Connections.File; f != "" {
		switch strings.ToLower(f[strings.LastIndexByte(f, '.')+1:]) {
		case "yaml", "yml", "toml":
		default:
			add("CONNECTIONS_FILE (%q) must be .yaml, .yml or .toml", f)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		add("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level)
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		add("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format)
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// String returns a representation safe for logging. Secrets are masked.
func (c *Config) String() string {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "[MASKED]"
	}

	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Addr: %q}, ", c.Server.Addr())
	fmt.Fprintf(&b, "Ledger: {Backend: %q, URL: %q, MaxConns: %d}, ", c.Ledger.Backend, mask(c.Ledger.URL), c.Ledger.MaxConns)
	fmt.Fprintf(&b, "Mongo: {URI: %q, Database: %q}, ", mask(c.Mongo.URI), c.Mongo.Database)
	fmt.Fprintf(&b, "Operations: {MaxConcurrent: %d, MaxWaitTime: %s, CollaboratorTimeout: %s}, ",
		c.Operations.MaxConcurrent, c.Operations.MaxWaitTime, c.Operations.CollaboratorTimeout)
	fmt.Fprintf(&b, "Upload: {MaxFileSize: %d, BatchSize: %d}, ", c.Upload.MaxFileSize, c.Upload.BatchSize)
	fmt.Fprintf(&b, "Rate: {Enabled: %v, RequestsPerMinute: %d}, ", c.Rate.Enabled, c.Rate.RequestsPerMinute)
	fmt.Fprintf(&b, "Security: {CredentialKey: %q}, ", mask(c.Security.CredentialKey))
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
