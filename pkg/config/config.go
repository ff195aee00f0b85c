// Package config loads application settings from an optional YAML file and
// TOUCHMAP_ environment variables.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/1F47E/touchmap/pkg/postgis"
	"github.com/1F47E/touchmap/pkg/viewport"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Screen  ScreenConfig  `mapstructure:"screen"`
	Map     MapConfig     `mapstructure:"map"`
	PostGIS PostGISConfig `mapstructure:"postgis"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Query   QueryConfig   `mapstructure:"query"`
}

type ScreenConfig struct {
	Width        int     `mapstructure:"width"`
	Height       int     `mapstructure:"height"`
	BufferFactor float64 `mapstructure:"buffer_factor"`
}

type MapConfig struct {
	Path string `mapstructure:"path"`
}

// PostGISConfig is optional; an empty host disables postgis layers
type PostGISConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int    `mapstructure:"max_conns"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// File receives the logs instead of stderr when set
	File string `mapstructure:"file"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type QueryConfig struct {
	HalfSize float64 `mapstructure:"half_size"`
}

// Enabled reports whether a database is configured
func (p PostGISConfig) Enabled() bool {
	return p.Host != ""
}

// Connection converts the section to postgis settings
func (p PostGISConfig) Connection() postgis.Config {
	return postgis.Config{
		Host:     p.Host,
		Port:     p.Port,
		User:     p.User,
		Password: p.Password,
		Database: p.Database,
		SSLMode:  p.SSLMode,
		MaxConns: p.MaxConns,
	}
}

// Viewport converts the screen section to viewport settings
func (s ScreenConfig) Viewport() viewport.Config {
	return viewport.Config{
		ScreenWidth:  s.Width,
		ScreenHeight: s.Height,
		BufferFactor: s.BufferFactor,
	}
}

// Load reads configuration from file and environment variables. An empty
// path searches touchmap.yaml in . and ./configs and accepts its absence.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("screen.width", 800)
	v.SetDefault("screen.height", 600)
	v.SetDefault("screen.buffer_factor", 1.0)
	v.SetDefault("map.path", "")
	v.SetDefault("postgis.host", "")
	v.SetDefault("postgis.port", 5432)
	v.SetDefault("postgis.user", "postgres")
	v.SetDefault("postgis.password", "")
	v.SetDefault("postgis.database", "touchmap")
	v.SetDefault("postgis.sslmode", "disable")
	v.SetDefault("postgis.max_conns", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("query.half_size", 10.0)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("touchmap")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	// Environment variables: TOUCHMAP_SCREEN_WIDTH → screen.width
	v.SetEnvPrefix("TOUCHMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Screen.Width <= 0 {
		errs = append(errs, fmt.Sprintf("screen.width must be positive, got %d", c.Screen.Width))
	}
	if c.Screen.Height <= 0 {
		errs = append(errs, fmt.Sprintf("screen.height must be positive, got %d", c.Screen.Height))
	}
	if math.IsNaN(c.Screen.BufferFactor) || math.IsInf(c.Screen.BufferFactor, 0) || c.Screen.BufferFactor < 1 {
		errs = append(errs, fmt.Sprintf("screen.buffer_factor must be at least 1, got %v", c.Screen.BufferFactor))
	}
	if c.PostGIS.Enabled() {
		if c.PostGIS.Port <= 0 || c.PostGIS.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgis.port must be 1-65535, got %d", c.PostGIS.Port))
		}
		if c.PostGIS.User == "" {
			errs = append(errs, "postgis.user is required")
		}
		if c.PostGIS.Database == "" {
			errs = append(errs, "postgis.database is required")
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("log.format must be json or console, got %q", c.Log.Format))
	}
	if c.Query.HalfSize <= 0 {
		errs = append(errs, fmt.Sprintf("query.half_size must be positive, got %v", c.Query.HalfSize))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
