package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/resourcekit/internal/db"
	"github.com/spf13/viper"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Config is the full service configuration.
type Config struct {
	Server           ServerConfig
	Database         db.Config
	Storage          StorageConfig
	API              APIConfig
	Log              LogConfig
	CustomProperties CustomPropertiesConfig
	Export           ExportConfig
	Sessions         SessionsConfig

	// File is the config file that was read, empty when only defaults and
	// environment variables were used.
	File string
}

type ServerConfig struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
}

type StorageConfig struct {
	Backend string
}

// APIConfig holds the root used when building resource URLs.
type APIConfig struct {
	BaseURL string
}

type LogConfig struct {
	Level       string
	Development bool
}

type CustomPropertiesConfig struct {
	Strict bool
}

type ExportConfig struct {
	PageSize      int
	MaxRows       int
	CustomColumns bool
}

// SessionsConfig controls expiry of idle filter sessions. A zero TTL keeps
// sessions until they are deleted.
type SessionsConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":8080",
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			IdleTimeout:    60 * time.Second,
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Database: db.DefaultConfig(),
		Storage:  StorageConfig{Backend: BackendMemory},
		API:      APIConfig{BaseURL: "http://localhost:8080"},
		Log:      LogConfig{Level: "info"},
		CustomProperties: CustomPropertiesConfig{
			Strict: true,
		},
		Export: ExportConfig{
			PageSize:      1000,
			CustomColumns: true,
		},
		Sessions: SessionsConfig{
			TTL:           24 * time.Hour,
			SweepInterval: 10 * time.Minute,
		},
	}
}

// Load reads config.yaml from configPath, applying RESOURCEKIT_ environment
// overrides on top. A missing file is not an error.
func Load(configPath string) (Config, error) {
	// Start with default
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix("RESOURCEKIT") // RESOURCEKIT_DATABASE_HOST, RESOURCEKIT_LOG_LEVEL, ...
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Nested keys are only visible to IsSet once bound.
	for _, key := range []string{
		"server.addr", "server.read_timeout", "server.write_timeout", "server.idle_timeout", "server.allowed_origins",
		"database.host", "database.port", "database.user", "database.password", "database.dbname", "database.sslmode",
		"database.max_conns",
		"storage.backend",
		"api.base_url",
		"log.level", "log.development",
		"custom_properties.strict",
		"export.page_size", "export.max_rows", "export.custom_columns",
		"sessions.ttl", "sessions.sweep_interval",
	} {
		if err := v.BindEnv(key); err != nil {
			return cfg, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	} else {
		cfg.File = v.ConfigFileUsed()
	}

	// Override defaults if values exist
	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.read_timeout") {
		cfg.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	}
	if v.IsSet("server.write_timeout") {
		cfg.Server.WriteTimeout = v.GetDuration("server.write_timeout")
	}
	if v.IsSet("server.idle_timeout") {
		cfg.Server.IdleTimeout = v.GetDuration("server.idle_timeout")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("database.max_conns") {
		cfg.Database.MaxConns = v.GetInt32("database.max_conns")
	}

	if v.IsSet("storage.backend") {
		cfg.Storage.Backend = strings.ToLower(v.GetString("storage.backend"))
	}
	if v.IsSet("api.base_url") {
		cfg.API.BaseURL = v.GetString("api.base_url")
	}
	if v.IsSet("log.level") {
		cfg.Log.Level = v.GetString("log.level")
	}
	if v.IsSet("log.development") {
		cfg.Log.Development = v.GetBool("log.development")
	}
	if v.IsSet("custom_properties.strict") {
		cfg.CustomProperties.Strict = v.GetBool("custom_properties.strict")
	}

	if v.IsSet("export.page_size") {
		cfg.Export.PageSize = v.GetInt("export.page_size")
	}
	if v.IsSet("export.max_rows") {
		cfg.Export.MaxRows = v.GetInt("export.max_rows")
	}
	if v.IsSet("export.custom_columns") {
		cfg.Export.CustomColumns = v.GetBool("export.custom_columns")
	}
	if v.IsSet("sessions.ttl") {
		cfg.Sessions.TTL = v.GetDuration("sessions.ttl")
	}
	if v.IsSet("sessions.sweep_interval") {
		cfg.Sessions.SweepInterval = v.GetDuration("sessions.sweep_interval")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("unsupported storage backend %q", c.Storage.Backend)
	}
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Export.PageSize <= 0 {
		return fmt.Errorf("export.page_size must be positive")
	}
	if c.Export.MaxRows < 0 {
		return fmt.Errorf("export.max_rows must not be negative")
	}
	if c.Sessions.TTL > 0 && c.Sessions.SweepInterval <= 0 {
		return fmt.Errorf("sessions.sweep_interval must be positive when sessions.ttl is set")
	}
	return nil
}
