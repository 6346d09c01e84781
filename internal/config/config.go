// Package config provides configuration management for the citation
// importer service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// Config holds all configuration for the citation importer service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings.
	Database DatabaseConfig `mapstructure:"database"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Crossref contains registry lookup client settings.
	Crossref CrossrefConfig `mapstructure:"crossref"`
	// Resolver contains batch resolution settings.
	Resolver ResolverConfig `mapstructure:"resolver"`
	// Importer contains import driver settings.
	Importer ImporterConfig `mapstructure:"importer"`
	// Session contains session store housekeeping settings.
	Session SessionConfig `mapstructure:"session"`
	// Security contains request privilege settings.
	Security SecurityConfig `mapstructure:"security"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password, loaded exclusively from the
	// CITIMP_DATABASE_PASSWORD environment variable.
	Password string `mapstructure:"-"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	// Default is "require". Use "disable" only for local development.
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool.
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open.
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files (relative or absolute).
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup (default: false).
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr, file path).
	Output string `mapstructure:"output"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
}

// CrossrefConfig holds registry lookup client configuration.
type CrossrefConfig struct {
	// BaseURL is the registry API base URL.
	BaseURL string `mapstructure:"base_url"`
	// SiteURL identifies the installation in the User-Agent header.
	SiteURL string `mapstructure:"site_url"`
	// MailTo is the contact address advertised in the User-Agent header.
	MailTo string `mapstructure:"mail_to"`
	// Timeout is the timeout for registry API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second to the registry.
	RateLimit float64 `mapstructure:"rate_limit"`
	// BurstSize is the burst size for the rate limiter.
	BurstSize int `mapstructure:"burst_size"`
	// MaxRetries is the maximum number of retries for failed calls.
	MaxRetries int `mapstructure:"max_retries"`
}

// ResolverConfig holds batch resolution configuration.
type ResolverConfig struct {
	// PauseEvery is the number of queries between pauses in large batches.
	PauseEvery int `mapstructure:"pause_every"`
	// PauseFor is how long a large batch pauses.
	PauseFor time.Duration `mapstructure:"pause_for"`
	// SessionTTL is the time to live of stored session entries.
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// ImporterConfig holds import driver configuration.
type ImporterConfig struct {
	// DefaultItemType receives items whose requested type is unknown.
	DefaultItemType string `mapstructure:"default_item_type"`
	// AllowedItemTypes lists the item types imports may target.
	AllowedItemTypes []string `mapstructure:"allowed_item_types"`
}

// SessionConfig holds session store housekeeping configuration.
type SessionConfig struct {
	// SweepInterval is how often expired session entries are purged.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// SecurityConfig holds request privilege configuration.
type SecurityConfig struct {
	// AdminHeader is the request header carrying the caller's role.
	AdminHeader string `mapstructure:"admin_header"`
	// AdminRole is the header value that grants detailed error output.
	AdminRole string `mapstructure:"admin_role"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// MetricsAddress returns the metrics server address.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("CITIMP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/citation-importer")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// A missing config file is fine, env vars and defaults apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// The database password never comes from a config file.
	cfg.Database.Password = os.Getenv("CITIMP_DATABASE_PASSWORD")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "citimp")
	v.SetDefault("database.name", "citation_importer")
	// Default to "require". Use CITIMP_DATABASE_SSL_MODE=disable for local development.
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Registry lookup defaults
	v.SetDefault("crossref.base_url", "https://api.crossref.org")
	v.SetDefault("crossref.site_url", "")
	v.SetDefault("crossref.mail_to", "")
	v.SetDefault("crossref.timeout", "30s")
	v.SetDefault("crossref.rate_limit", 5.0)
	v.SetDefault("crossref.burst_size", 5)
	v.SetDefault("crossref.max_retries", 3)

	// Resolver defaults
	v.SetDefault("resolver.pause_every", 20)
	v.SetDefault("resolver.pause_for", "5s")
	v.SetDefault("resolver.session_ttl", "24h")

	// Importer defaults
	v.SetDefault("importer.default_item_type", "publication")
	v.SetDefault("importer.allowed_item_types", []string{"publication"})

	// Session housekeeping defaults
	v.SetDefault("session.sweep_interval", "1h")

	// Security defaults
	v.SetDefault("security.admin_header", "X-Role")
	v.SetDefault("security.admin_role", "admin")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Server.MetricsPort)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Crossref.BaseURL == "" {
		return fmt.Errorf("crossref base URL is required")
	}
	if c.Crossref.RateLimit <= 0 {
		return fmt.Errorf("crossref rate limit must be positive")
	}

	if c.Resolver.PauseEvery <= 0 {
		return fmt.Errorf("resolver pause_every must be positive")
	}
	if c.Resolver.SessionTTL <= 0 {
		return fmt.Errorf("resolver session_ttl must be positive")
	}

	if c.Importer.DefaultItemType == "" {
		return fmt.Errorf("importer default item type is required")
	}

	if c.Security.AdminHeader == "" {
		return fmt.Errorf("security admin header is required")
	}

	return nil
}
