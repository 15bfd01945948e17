package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override (D20_STORE_DRIVER, ...).
const EnvPrefix = "D20_"

// Engine holds all configuration of the rules daemon.
type Engine struct {
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	Store    StoreConfig    `yaml:"store"    envPrefix:"STORE_"`
	Metrics  MetricsConfig  `yaml:"metrics"  envPrefix:"METRICS_"`
	Timeline TimelineConfig `yaml:"timeline" envPrefix:"TIMELINE_"`

	// Directive dispatch nesting bound
	MaxDispatchDepth int `yaml:"max_dispatch_depth" env:"MAX_DISPATCH_DEPTH"`

	// Rule data overrides; empty means the embedded defaults
	RulesetPath string `yaml:"ruleset_path" env:"RULESET_PATH"`
	CatalogPath string `yaml:"catalog_path" env:"CATALOG_PATH"`

	// Dice seed; 0 seeds from crypto/rand
	Seed int64 `yaml:"seed" env:"SEED"`
}

// StoreConfig selects and configures the actor store.
type StoreConfig struct {
	Driver     string         `yaml:"driver"      env:"DRIVER"`
	SQLitePath string         `yaml:"sqlite_path" env:"SQLITE_PATH"`
	Migrate    bool           `yaml:"migrate"     env:"MIGRATE"`
	Database   DatabaseConfig `yaml:"database"    envPrefix:"DB_"`
}

// DSN returns the data source for the configured driver.
func (s StoreConfig) DSN() string {
	switch s.Driver {
	case "sqlite":
		return s.SQLitePath
	case "postgres":
		return s.Database.DSN()
	default:
		return ""
	}
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `yaml:"host"     env:"HOST"`
	Port     int    `yaml:"port"     env:"PORT"`
	User     string `yaml:"user"     env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	DBName   string `yaml:"dbname"   env:"NAME"`
	SSLMode  string `yaml:"sslmode"  env:"SSLMODE"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// MetricsConfig configures the HTTP listener serving /metrics, /healthz
// and the command API. An empty address disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

// TimelineConfig drives the buff timeline ticker.
type TimelineConfig struct {
	Interval      time.Duration `yaml:"interval"        env:"INTERVAL"`        // real time between ticks; 0 disables
	RoundsPerTick int           `yaml:"rounds_per_tick" env:"ROUNDS_PER_TICK"` // game rounds advanced each tick
}

// DefaultEngine returns Engine config with sensible defaults.
func DefaultEngine() Engine {
	return Engine{
		LogLevel: "info",
		Store: StoreConfig{
			Driver:     "sqlite",
			SQLitePath: "d20.db",
			Migrate:    true,
			Database: DatabaseConfig{
				Host:     "127.0.0.1",
				Port:     5432,
				User:     "d20",
				Password: "d20",
				DBName:   "d20",
				SSLMode:  "disable",
			},
		},
		Metrics: MetricsConfig{Addr: ":9464"},
		Timeline: TimelineConfig{
			Interval:      6 * time.Second, // one round
			RoundsPerTick: 1,
		},
		MaxDispatchDepth: 8,
	}
}

// LoadEngine loads engine config from a YAML file and applies D20_*
// environment overrides. If the file doesn't exist, defaults are used.
func LoadEngine(path string) (Engine, error) {
	cfg := DefaultEngine()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parsing env: %w", err)
	}
	return cfg, nil
}

// ParseLogLevel maps a config level name to slog; unknown names are info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
