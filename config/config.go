/*
config.go - Configuration loading

PURPOSE:
  One Config for every command. Sources, later wins:
    1. Defaults below (the binary runs with no config file)
    2. configs/config.yaml, if present
    3. Environment, with "." replaced by "_" (JWT_SECRET, SERVER_PORT, ...)
  A .env file in the working directory is loaded into the environment first.

SEE ALSO:
  - cmd/server/main.go: Uses Load
*/
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultPath is where Load looks for the optional config file.
const DefaultPath = "configs/config.yaml"

type Config struct {
	Server struct {
		Port               int      `mapstructure:"port"`
		CorsAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
	} `mapstructure:"server"`

	Database struct {
		Path         string   `mapstructure:"path"`
		GroupIndexes []string `mapstructure:"group_indexes"`
	} `mapstructure:"database"`

	JWT struct {
		Secret          string `mapstructure:"secret"`
		ExpirationHours int    `mapstructure:"expiration_hours"`
		Issuer          string `mapstructure:"issuer"`
	} `mapstructure:"jwt"`

	Blob struct {
		Bucket        string `mapstructure:"bucket"`
		Endpoint      string `mapstructure:"endpoint"`
		Region        string `mapstructure:"region"`
		AccessKey     string `mapstructure:"access_key"`
		SecretKey     string `mapstructure:"secret_key"`
		PublicBaseURL string `mapstructure:"public_base_url"`
	} `mapstructure:"blob"`

	Import struct {
		ChunkSize int `mapstructure:"chunk_size"`
	} `mapstructure:"import"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`

	Auth struct {
		ResetURL string `mapstructure:"reset_url"`
	} `mapstructure:"auth"`
}

// Load reads configuration. path may be empty for DefaultPath.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	if path == "" {
		path = DefaultPath
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_allowed_origins", []string{"http://localhost:5173", "http://localhost:8080"})
	v.SetDefault("database.path", "clubportal.db")
	v.SetDefault("database.group_indexes", []string{"legacyLogs.sourceSheetId"})
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiration_hours", 24)
	v.SetDefault("jwt.issuer", "clubportal")
	v.SetDefault("blob.bucket", "")
	v.SetDefault("blob.endpoint", "")
	v.SetDefault("blob.region", "auto")
	v.SetDefault("blob.access_key", "")
	v.SetDefault("blob.secret_key", "")
	v.SetDefault("blob.public_base_url", "")
	v.SetDefault("import.chunk_size", 450)
	v.SetDefault("log.level", "info")
	v.SetDefault("auth.reset_url", "http://localhost:8080/reset?token=")

	if err := v.ReadInConfig(); err != nil {
		slog.Debug("no config file, using defaults", "path", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal: %w", err)
	}
	return &cfg, nil
}

// ValidateServe checks what the HTTP server needs beyond defaults.
func (c *Config) ValidateServe() error {
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret (JWT_SECRET) must be set")
	}
	if _, err := c.Indexes(); err != nil {
		return err
	}
	return nil
}

// Index is a declared collection-group index.
type Index struct {
	Group string
	Field string
}

// Indexes parses database.group_indexes entries of the form "group.field".
func (c *Config) Indexes() ([]Index, error) {
	var out []Index
	for _, raw := range c.Database.GroupIndexes {
		group, field, ok := strings.Cut(strings.TrimSpace(raw), ".")
		if !ok || group == "" || field == "" {
			return nil, fmt.Errorf("database.group_indexes: %q is not group.field", raw)
		}
		out = append(out, Index{Group: group, Field: field})
	}
	return out, nil
}

// LogLevel maps log.level to a slog level, defaulting to info.
func (c *Config) LogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
