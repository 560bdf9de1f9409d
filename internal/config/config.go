// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables, prefixed FLOATPLANE_ (runtime override)
//  2. Config file (config.yaml in the working directory or /etc/floatplane)
//  3. Default values
//
// Credentials are carried in explicit config structs handed to the components
// that need them; nothing reads the process environment after Load returns.
// Sensitive values (API keys, database password) must never be logged.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// Sentinel errors returned by Validate, checked with errors.Is().
var (
	// ErrInvalidAddr indicates the HTTP listen address is empty.
	ErrInvalidAddr = errors.New("invalid listen address")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresSSLMode indicates an unknown sslmode value.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidTemperature indicates the sampling temperature is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max output token count is not positive.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidUploadsDir indicates the uploads directory is empty.
	ErrInvalidUploadsDir = errors.New("invalid uploads directory")
)

// OpenAIConfig configures the OpenAI-compatible provider adapter.
// BaseURL may point at any OpenAI-compatible endpoint (OpenRouter, a local
// proxy, an Anthropic-compatible gateway); empty means api.openai.com.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// GoogleConfig configures the Gemini provider adapter.
type GoogleConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// SearchConfig configures the internet search tool.
type SearchConfig struct {
	// SearXNGURL is the base URL of a SearXNG instance (e.g. http://searxng:8080).
	// Empty disables the primary backend; the DuckDuckGo fallback still runs.
	SearXNGURL string `mapstructure:"searxng_url"`

	// MaxResults caps the number of results handed to the model.
	MaxResults int `mapstructure:"max_results"`
}

// Config stores application configuration.
type Config struct {
	// HTTP server
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`

	// Logging
	LogLevel string `mapstructure:"log_level"` // debug, info, warn, error
	LogJSON  bool   `mapstructure:"log_json"`

	// Storage
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// UploadsDir is the root directory for stored file blobs.
	UploadsDir string `mapstructure:"uploads_dir"`

	// Generation parameters applied to every provider call.
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`

	// Provider credentials.
	OpenAI OpenAIConfig `mapstructure:"openai"`
	Google GoogleConfig `mapstructure:"google"`

	// Search tool.
	Search SearchConfig `mapstructure:"search"`

	// OTLPEndpoint enables trace export when set (e.g. http://otel:4318).
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// Load reads configuration from file and environment.
// path may name a specific config file; empty uses the default search paths.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("FLOATPLANE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/floatplane")
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults plus env are enough.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", "127.0.0.1:8000")
	v.SetDefault("cors_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "postgres")
	v.SetDefault("postgres_password", "postgres")
	v.SetDefault("postgres_db_name", "floatplane")
	v.SetDefault("postgres_ssl_mode", "disable")
	v.SetDefault("uploads_dir", "./uploads")
	v.SetDefault("temperature", 0.7)
	v.SetDefault("max_tokens", 4096)
	v.SetDefault("search.max_results", 5)
}

// Validate checks configuration values and returns a wrapped sentinel error
// for the first violation found.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: empty", ErrInvalidAddr)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	switch c.PostgresSSLMode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: %v (must be in [0, 2])", ErrInvalidTemperature, c.Temperature)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxTokens, c.MaxTokens)
	}
	if c.UploadsDir == "" {
		return fmt.Errorf("%w: empty", ErrInvalidUploadsDir)
	}
	return nil
}

// quoteDSNValue quotes a value for the PostgreSQL key=value DSN format.
func quoteDSNValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

// PostgresDSN returns the PostgreSQL DSN for the pgx driver.
// The password is quoted to survive spaces and special characters.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresUser,
		quoteDSNValue(c.PostgresPassword),
		c.PostgresDBName,
		c.PostgresSSLMode,
	)
}

// PostgresURL returns the PostgreSQL URL used by golang-migrate.
func (c *Config) PostgresURL() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:     fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:     c.PostgresDBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.PostgresSSLMode),
	}
	return u.String()
}
