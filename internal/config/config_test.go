package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}"))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8000", cfg.Addr)
	assert.Equal(t, "localhost", cfg.PostgresHost)
	assert.Equal(t, 5432, cfg.PostgresPort)
	assert.Equal(t, "disable", cfg.PostgresSSLMode)
	assert.Equal(t, float32(0.7), cfg.Temperature)
	assert.Equal(t, 4096, cfg.MaxTokens)
	assert.Equal(t, "./uploads", cfg.UploadsDir)
	assert.Equal(t, 5, cfg.Search.MaxResults)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
addr: "0.0.0.0:9000"
postgres_host: db.internal
temperature: 0.2
openai:
  api_key: sk-test
search:
  searxng_url: http://searxng:8080
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
	assert.Equal(t, "db.internal", cfg.PostgresHost)
	assert.Equal(t, float32(0.2), cfg.Temperature)
	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	assert.Equal(t, "http://searxng:8080", cfg.Search.SearXNGURL)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FLOATPLANE_POSTGRES_HOST", "env-host")

	cfg, err := Load(writeConfig(t, "postgres_host: file-host"))
	require.NoError(t, err)

	assert.Equal(t, "env-host", cfg.PostgresHost)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Addr:            "127.0.0.1:8000",
			PostgresHost:    "localhost",
			PostgresPort:    5432,
			PostgresSSLMode: "disable",
			Temperature:     0.7,
			MaxTokens:       1024,
			UploadsDir:      "./uploads",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid", func(*Config) {}, nil},
		{"empty addr", func(c *Config) { c.Addr = "" }, ErrInvalidAddr},
		{"empty host", func(c *Config) { c.PostgresHost = "" }, ErrInvalidPostgresHost},
		{"port too low", func(c *Config) { c.PostgresPort = 0 }, ErrInvalidPostgresPort},
		{"port too high", func(c *Config) { c.PostgresPort = 70000 }, ErrInvalidPostgresPort},
		{"bad sslmode", func(c *Config) { c.PostgresSSLMode = "maybe" }, ErrInvalidPostgresSSLMode},
		{"negative temperature", func(c *Config) { c.Temperature = -1 }, ErrInvalidTemperature},
		{"temperature too high", func(c *Config) { c.Temperature = 2.5 }, ErrInvalidTemperature},
		{"zero max tokens", func(c *Config) { c.MaxTokens = 0 }, ErrInvalidMaxTokens},
		{"empty uploads dir", func(c *Config) { c.UploadsDir = "" }, ErrInvalidUploadsDir},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	cfg := &Config{
		PostgresHost:     "localhost",
		PostgresPort:     5432,
		PostgresUser:     "app",
		PostgresPassword: "p'ass word",
		PostgresDBName:   "floatplane",
		PostgresSSLMode:  "disable",
	}

	dsn := cfg.PostgresDSN()
	assert.Contains(t, dsn, "host=localhost")
	assert.Contains(t, dsn, `password='p\'ass word'`)
}

func TestPostgresURL(t *testing.T) {
	cfg := &Config{
		PostgresHost:     "db",
		PostgresPort:     5433,
		PostgresUser:     "app",
		PostgresPassword: "se cret",
		PostgresDBName:   "floatplane",
		PostgresSSLMode:  "require",
	}

	u := cfg.PostgresURL()
	assert.Equal(t, "postgres://app:se%20cret@db:5433/floatplane?sslmode=require", u)
}

// writeConfig writes a temporary YAML config file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
