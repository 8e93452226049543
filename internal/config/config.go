// Package config provides configuration management for the dispatcher
// service: which entity store backend to run, which catalogs to
// register and with what backend driver, and ambient server/logging
// settings.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the top-level dispatcher configuration.
type Config struct {
	Server     ServerConfig      `yaml:"server"`
	EntityStore EntityStoreConfig `yaml:"entity_store"`
	Catalogs   []CatalogConfig   `yaml:"catalogs"`
	Logging    LoggingConfig     `yaml:"logging"`
}

// ServerConfig configures the ops-only HTTP surface (health/metrics).
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"read_timeout"`
	WriteTimeout int    `yaml:"write_timeout"`
}

// EntityStoreConfig selects and configures the entity store backend that
// the dispatcher uses for identity and audit bookkeeping.
type EntityStoreConfig struct {
	// Type is one of "memory", "bbolt", "postgresql".
	Type     string               `yaml:"type"`
	BBolt    BBoltConfig          `yaml:"bbolt"`
	Postgres PostgresStoreConfig  `yaml:"postgresql"`
}

// BBoltConfig configures the embedded-KV entity store backend.
type BBoltConfig struct {
	Path string `yaml:"path"`
}

// PostgresStoreConfig configures the relational entity store backend.
type PostgresStoreConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Database        string `yaml:"database"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	SSLMode         string `yaml:"ssl_mode"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // seconds
}

// CatalogConfig registers one catalog identifier against a backend
// driver and its connection parameters. Exactly one of the driver-typed
// sub-configs is consulted, selected by Driver.
type CatalogConfig struct {
	// Name is the two-level catalog identifier, e.g. "lake.pg".
	Name string `yaml:"name"`
	// Driver is one of "relational", "lakehouse", "stream", "filesystem".
	Driver     string           `yaml:"driver"`
	Relational RelationalConfig `yaml:"relational"`
	Stream     StreamConfig     `yaml:"stream"`
	Filesystem FilesystemConfig `yaml:"filesystem"`
	// PropertiesSchema is an inline JSON Schema document validating
	// create/alter property maps for this catalog. Empty means
	// unrestricted.
	PropertiesSchema string `yaml:"properties_schema"`
}

// RelationalConfig configures a relational.Backend registration.
type RelationalConfig struct {
	DriverName string `yaml:"driver_name"` // "postgres" or "mysql"
	DSN        string `yaml:"dsn"`
	Dialect    string `yaml:"dialect"` // "postgres" or "mysql"
}

// StreamConfig configures a stream.Backend registration.
type StreamConfig struct {
	Hosts    []string `yaml:"hosts"`
	Keyspace string   `yaml:"keyspace"`
}

// FilesystemConfig configures a filesystem.Backend registration.
type FilesystemConfig struct {
	Root string `yaml:"root"`
}

// LoggingConfig configures the slog handler used throughout the service.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	// File, when set, mirrors log output to a size/age-rotated file
	// alongside stdout.
	File string `yaml:"file"`
	// SyslogAudit, when true, additionally mirrors warn-level-and-above
	// records (identity reconciliation warnings, multi-catalog
	// conflicts, degraded-success store failures) to syslog.
	SyslogAudit bool `yaml:"syslog_audit"`
}

// DefaultConfig returns a configuration suitable for local development: a
// single in-memory entity store and no registered catalogs.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8081,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		EntityStore: EntityStoreConfig{
			Type: "memory",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from a YAML file, expanding environment
// variable references, then applies environment variable overrides and
// validates the result. An empty path yields DefaultConfig with env
// overrides applied.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		// #nosec G304 -- path is from command-line argument, user-controlled input is expected
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CATALOGD_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("CATALOGD_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("CATALOGD_ENTITY_STORE_TYPE"); v != "" {
		c.EntityStore.Type = v
	}
	if v := os.Getenv("CATALOGD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CATALOGD_BBOLT_PATH"); v != "" {
		c.EntityStore.BBolt.Path = v
	}

	if v := os.Getenv("CATALOGD_PG_HOST"); v != "" {
		c.EntityStore.Postgres.Host = v
	}
	if v := os.Getenv("CATALOGD_PG_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.EntityStore.Postgres.Port = port
		}
	}
	if v := os.Getenv("CATALOGD_PG_DATABASE"); v != "" {
		c.EntityStore.Postgres.Database = v
	}
	if v := os.Getenv("CATALOGD_PG_USERNAME"); v != "" {
		c.EntityStore.Postgres.Username = v
	}
	if v := os.Getenv("CATALOGD_PG_PASSWORD"); v != "" {
		c.EntityStore.Postgres.Password = v
	}
	if v := os.Getenv("CATALOGD_PG_SSLMODE"); v != "" {
		c.EntityStore.Postgres.SSLMode = v
	}
}

// Validate checks structural invariants DefaultConfig and Load cannot
// guarantee by construction: port range, entity store type, and that
// every registered catalog names a known driver.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validStoreTypes := map[string]bool{"memory": true, "bbolt": true, "postgresql": true}
	if !validStoreTypes[c.EntityStore.Type] {
		return fmt.Errorf("invalid entity store type: %s", c.EntityStore.Type)
	}

	validDrivers := map[string]bool{"relational": true, "lakehouse": true, "stream": true, "filesystem": true}
	seen := map[string]bool{}
	for _, cat := range c.Catalogs {
		if cat.Name == "" {
			return fmt.Errorf("catalog entry missing name")
		}
		if seen[cat.Name] {
			return fmt.Errorf("duplicate catalog name: %s", cat.Name)
		}
		seen[cat.Name] = true
		if !validDrivers[cat.Driver] {
			return fmt.Errorf("catalog %s: invalid driver %q", cat.Name, cat.Driver)
		}
	}

	return nil
}

// Address returns the ops server bind address string.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
