package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/clubportal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "clubportal.db", cfg.Database.Path)
	assert.Equal(t, 450, cfg.Import.ChunkSize)
	assert.Equal(t, 24, cfg.JWT.ExpirationHours)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel())

	idx, err := cfg.Indexes()
	require.NoError(t, err)
	assert.Equal(t, []config.Index{{Group: "legacyLogs", Field: "sourceSheetId"}}, idx)
}

func TestLoad_FileAndEnv(t *testing.T) {
	// GIVEN: A config file setting the port and a JWT_SECRET in the environment
	// WHEN: Load runs
	// THEN: Both are applied and serve validation passes

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\nlog:\n  level: debug\n"), 0o600))
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel())
	assert.NoError(t, cfg.ValidateServe())
}

func TestValidateServe_RequiresSecret(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	cfg.JWT.Secret = ""
	assert.Error(t, cfg.ValidateServe())

	cfg.JWT.Secret = "x"
	cfg.Database.GroupIndexes = []string{"nodot"}
	assert.Error(t, cfg.ValidateServe())
}
