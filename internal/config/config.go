// Package config provides Viper-based configuration loading for the battle room server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds the public HTTP/websocket listener settings.
type ServerConfig struct {
	// Host is the bind address for the HTTP listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the HTTP listener.
	Port int `mapstructure:"port"`
	// ReadHeaderTimeout bounds how long the server waits for request headers.
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	// WriteTimeout is the per-frame websocket write timeout.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// OutboxSize is the number of outbound frames buffered per connection.
	OutboxSize int `mapstructure:"outbox_size"`
	// AllowedOrigins lists websocket origin patterns accepted in addition to same-origin.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AdminConfig holds the gRPC health listener settings.
type AdminConfig struct {
	GRPCHost string `mapstructure:"grpc_host"`
	GRPCPort int    `mapstructure:"grpc_port"`
	// HealthInterval is how often the store is pinged to update serving status.
	HealthInterval time.Duration `mapstructure:"health_interval"`
}

// Addr returns the "host:port" gRPC address.
func (a AdminConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.GRPCHost, a.GRPCPort)
}

// RoomsConfig holds room coordination settings.
type RoomsConfig struct {
	// MaxRounds is the number of turn pairs in a match.
	MaxRounds int `mapstructure:"max_rounds"`
	// SweepInterval is how often empty rooms are reclaimed.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// Retention is the minimum age of an empty room before the sweep deletes it.
	Retention time.Duration `mapstructure:"retention"`
}

// StorageConfig selects the durable store backing match archival.
type StorageConfig struct {
	// Driver is one of "postgres", "sqlite", or "memory".
	Driver string `mapstructure:"driver"`
	// SQLitePath is the database file used by the sqlite driver.
	SQLitePath string `mapstructure:"sqlite_path"`
	// QueueSize is the archiver's pending job capacity.
	QueueSize int `mapstructure:"queue_size"`
	// SaveTimeout bounds each archival write.
	SaveTimeout time.Duration `mapstructure:"save_timeout"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// GeneratorConfig holds content generator settings.
type GeneratorConfig struct {
	// Provider is "anthropic" or "static".
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	// MaxTokens caps the length of one generated turn.
	MaxTokens int64 `mapstructure:"max_tokens"`
	// Timeout bounds a single generation call.
	Timeout time.Duration `mapstructure:"timeout"`
	// Verses is the number of content units expected per turn.
	Verses int `mapstructure:"verses"`
	// PromptsFile is an optional YAML file overriding the built-in prompts.
	PromptsFile string `mapstructure:"prompts_file"`
}

// TracingConfig holds OpenTelemetry exporter settings.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Rooms     RoomsConfig     `mapstructure:"rooms"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	validators := []func() error{
		func() error { return validateServer(c.Server) },
		func() error { return validateAdmin(c.Admin) },
		func() error { return validateRooms(c.Rooms) },
		func() error { return validateStorage(c.Storage) },
		func() error {
			if c.Storage.Driver != "postgres" {
				return nil
			}
			return validateDatabase(c.Database)
		},
		func() error { return validateGenerator(c.Generator) },
		func() error { return validateTracing(c.Tracing) },
		func() error { return validateLogging(c.Logging) },
	}
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validatePort(field string, port int) string {
	if port < 1 || port > 65535 {
		return fmt.Sprintf("%s must be 1-65535, got %d", field, port)
	}
	return ""
}

func joinErrs(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s", strings.Join(errs, "; "))
}

func validateServer(s ServerConfig) error {
	var errs []string
	if msg := validatePort("server.port", s.Port); msg != "" {
		errs = append(errs, msg)
	}
	if s.ReadHeaderTimeout < 0 {
		errs = append(errs, "server.read_header_timeout must not be negative")
	}
	if s.WriteTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("server.write_timeout must be > 0, got %s", s.WriteTimeout))
	}
	if s.OutboxSize < 1 {
		errs = append(errs, fmt.Sprintf("server.outbox_size must be >= 1, got %d", s.OutboxSize))
	}
	return joinErrs(errs)
}

func validateAdmin(a AdminConfig) error {
	var errs []string
	if a.GRPCHost == "" {
		errs = append(errs, "admin.grpc_host must not be empty")
	}
	if msg := validatePort("admin.grpc_port", a.GRPCPort); msg != "" {
		errs = append(errs, msg)
	}
	if a.HealthInterval <= 0 {
		errs = append(errs, "admin.health_interval must be > 0")
	}
	return joinErrs(errs)
}

func validateRooms(r RoomsConfig) error {
	var errs []string
	if r.MaxRounds < 1 {
		errs = append(errs, fmt.Sprintf("rooms.max_rounds must be >= 1, got %d", r.MaxRounds))
	}
	if r.SweepInterval <= 0 {
		errs = append(errs, "rooms.sweep_interval must be > 0")
	}
	if r.Retention < 0 {
		errs = append(errs, "rooms.retention must not be negative")
	}
	return joinErrs(errs)
}

func validateStorage(s StorageConfig) error {
	var errs []string
	validDrivers := map[string]bool{"postgres": true, "sqlite": true, "memory": true}
	if !validDrivers[s.Driver] {
		errs = append(errs, fmt.Sprintf("storage.driver must be one of [postgres, sqlite, memory], got %q", s.Driver))
	}
	if s.Driver == "sqlite" && s.SQLitePath == "" {
		errs = append(errs, "storage.sqlite_path must not be empty when storage.driver is sqlite")
	}
	if s.QueueSize < 1 {
		errs = append(errs, fmt.Sprintf("storage.queue_size must be >= 1, got %d", s.QueueSize))
	}
	if s.SaveTimeout <= 0 {
		errs = append(errs, "storage.save_timeout must be > 0")
	}
	return joinErrs(errs)
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if msg := validatePort("database.port", d.Port); msg != "" {
		errs = append(errs, msg)
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	return joinErrs(errs)
}

func validateGenerator(g GeneratorConfig) error {
	var errs []string
	switch g.Provider {
	case "static":
	case "anthropic":
		if g.APIKey == "" {
			errs = append(errs, "generator.api_key must not be empty when generator.provider is anthropic")
		}
		if g.Model == "" {
			errs = append(errs, "generator.model must not be empty")
		}
		if g.MaxTokens < 1 {
			errs = append(errs, fmt.Sprintf("generator.max_tokens must be >= 1, got %d", g.MaxTokens))
		}
	default:
		errs = append(errs, fmt.Sprintf("generator.provider must be one of [anthropic, static], got %q", g.Provider))
	}
	if g.Timeout <= 0 {
		errs = append(errs, "generator.timeout must be > 0")
	}
	if g.Verses < 1 {
		errs = append(errs, fmt.Sprintf("generator.verses must be >= 1, got %d", g.Verses))
	}
	return joinErrs(errs)
}

func validateTracing(t TracingConfig) error {
	if !t.Enabled {
		return nil
	}
	var errs []string
	if t.Endpoint == "" {
		errs = append(errs, "tracing.endpoint must not be empty when tracing is enabled")
	}
	if t.ServiceName == "" {
		errs = append(errs, "tracing.service_name must not be empty")
	}
	return joinErrs(errs)
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := NewViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromViper(v)
}

// NewViper returns a Viper instance with defaults and RHYMEDUEL_ environment overrides applied.
func NewViper() *viper.Viper {
	v := viper.New()

	// Environment variable overrides with RHYMEDUEL_ prefix
	v.SetEnvPrefix("RHYMEDUEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return v
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_header_timeout", "10s")
	v.SetDefault("server.write_timeout", "3s")
	v.SetDefault("server.outbox_size", 64)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("admin.grpc_host", "127.0.0.1")
	v.SetDefault("admin.grpc_port", 50051)
	v.SetDefault("admin.health_interval", "30s")

	v.SetDefault("rooms.max_rounds", 6)
	v.SetDefault("rooms.sweep_interval", "1h")
	v.SetDefault("rooms.retention", "24h")

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite_path", "data/rhymeduel.db")
	v.SetDefault("storage.queue_size", 256)
	v.SetDefault("storage.save_timeout", "5s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "rhymeduel")
	v.SetDefault("database.password", "rhymeduel")
	v.SetDefault("database.name", "rhymeduel")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("generator.provider", "static")
	v.SetDefault("generator.model", "claude-sonnet-4-5")
	v.SetDefault("generator.api_key", "")
	v.SetDefault("generator.max_tokens", 512)
	v.SetDefault("generator.timeout", "20s")
	v.SetDefault("generator.verses", 4)
	v.SetDefault("generator.prompts_file", "")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "rhymeduel")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
