package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/1F47E/touchmap/pkg/viewport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "touchmap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, viewport.Config{ScreenWidth: 800, ScreenHeight: 600, BufferFactor: 1}, cfg.Screen.Viewport())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 10.0, cfg.Query.HalfSize)
	assert.False(t, cfg.PostGIS.Enabled())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
screen:
  width: 1024
  height: 768
  buffer_factor: 1.5
map:
  path: maps/iris.yaml
postgis:
  host: db.local
  database: iris
  max_conns: 4
log:
  level: debug
  format: console
query:
  half_size: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, viewport.Config{ScreenWidth: 1024, ScreenHeight: 768, BufferFactor: 1.5}, cfg.Screen.Viewport())
	assert.Equal(t, "maps/iris.yaml", cfg.Map.Path)
	assert.True(t, cfg.PostGIS.Enabled())

	conn := cfg.PostGIS.Connection()
	assert.Equal(t, "db.local", conn.Host)
	assert.Equal(t, 5432, conn.Port)
	assert.Equal(t, "iris", conn.Database)
	assert.Equal(t, 4, conn.MaxConns)
	assert.Equal(t, 5.0, cfg.Query.HalfSize)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "screen:\n  width: 1024\n")
	t.Setenv("TOUCHMAP_SCREEN_WIDTH", "320")
	t.Setenv("TOUCHMAP_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 320, cfg.Screen.Width)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	path := writeConfig(t, `
screen:
  width: 0
  height: -1
  buffer_factor: 0.5
postgis:
  host: db.local
  port: 70000
  user: ""
log:
  level: loud
  format: xml
query:
  half_size: 0
`)

	_, err := Load(path)
	require.Error(t, err)

	for _, msg := range []string{
		"screen.width", "screen.height", "screen.buffer_factor",
		"postgis.port", "postgis.user",
		"log.level", "log.format", "query.half_size",
	} {
		assert.Contains(t, err.Error(), msg)
	}
}
