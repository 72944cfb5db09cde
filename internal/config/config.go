// Package config provides configuration management for chanlun.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"chanlun/internal/engine"
	apperrors "chanlun/internal/errors"
	"chanlun/internal/logging"
	"chanlun/internal/models"
)

// EnvPrefix prefixes every environment override, e.g. CHANLUN_ENGINE_MAX_LEVELS.
const EnvPrefix = "CHANLUN"

// Config holds all application configuration.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine"`
	Logging LoggingConfig `mapstructure:"logging"`
	Store   StoreConfig   `mapstructure:"store"`
	Ledger  LedgerConfig  `mapstructure:"ledger"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Stream  StreamConfig  `mapstructure:"stream"`
}

// EngineConfig selects the engine's algorithms.
type EngineConfig struct {
	StrokeMode  string `mapstructure:"stroke_mode"`  // strict, wide
	SegmentAlgo string `mapstructure:"segment_algo"` // v0, v1
	MaxLevels   int    `mapstructure:"max_levels"`
	MACDFast    int    `mapstructure:"macd_fast"`
	MACDSlow    int    `mapstructure:"macd_slow"`
	MACDSignal  int    `mapstructure:"macd_signal"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	JSON       bool   `mapstructure:"json"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LedgerConfig holds the JSONL event ledger configuration.
type LedgerConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// KafkaConfig holds the event publisher configuration.
type KafkaConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Brokers      []string `mapstructure:"brokers"`
	Topic        string   `mapstructure:"topic"`
	RequiredAcks string   `mapstructure:"required_acks"` // none, one, all
	BatchTimeout int      `mapstructure:"batch_timeout_ms"`
}

// MetricsConfig holds Prometheus exposition configuration.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Listen    string `mapstructure:"listen"`
	Namespace string `mapstructure:"namespace"`
}

// StreamConfig names the default stream.
type StreamConfig struct {
	Symbol     string `mapstructure:"symbol"`
	Interval   string `mapstructure:"interval"`
	Provenance string `mapstructure:"provenance"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/chanlun"
	}
	return filepath.Join(home, ".config", "chanlun")
}

// Load loads config.toml from configDir, applying CHANLUN_* environment
// overrides. A missing file is replaced by the template and defaults apply.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := newViper(configDir, true)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
		if err := createTemplateConfig(configDir); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config.toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in defaults. Neither config.toml nor CHANLUN_*
// variables are consulted.
func Default() *Config {
	cfg := &Config{}
	_ = newViper(DefaultConfigDir(), false).Unmarshal(cfg)
	return cfg
}

func newViper(configDir string, env bool) *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if env {
		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}

	setDefaults(v, configDir)
	return v
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper, configDir string) {
	opts := engine.DefaultOptions()
	v.SetDefault("engine.stroke_mode", string(opts.StrokeMode))
	v.SetDefault("engine.segment_algo", string(opts.SegmentAlgo))
	v.SetDefault("engine.max_levels", opts.MaxLevels)
	v.SetDefault("engine.macd_fast", opts.MACDFast)
	v.SetDefault("engine.macd_slow", opts.MACDSlow)
	v.SetDefault("engine.macd_signal", opts.MACDSignal)

	logs := logging.DefaultLogConfig()
	v.SetDefault("logging.level", logs.Level)
	v.SetDefault("logging.console", logs.Console)
	v.SetDefault("logging.json", logs.JSON)
	v.SetDefault("logging.file", logs.File)
	v.SetDefault("logging.file_path", filepath.Join(configDir, "logs", "chanlun.log"))
	v.SetDefault("logging.max_size", logs.MaxSize)
	v.SetDefault("logging.max_backups", logs.MaxBackups)
	v.SetDefault("logging.max_age", logs.MaxAge)

	v.SetDefault("store.path", filepath.Join(configDir, "chanlun.db"))

	v.SetDefault("ledger.enabled", false)
	v.SetDefault("ledger.path", filepath.Join(configDir, "ledger", "events.jsonl"))
	v.SetDefault("ledger.max_size", 100)
	v.SetDefault("ledger.max_backups", 10)
	v.SetDefault("ledger.max_age", 90)
	v.SetDefault("ledger.compress", true)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "chanlun.events")
	v.SetDefault("kafka.required_acks", "one")
	v.SetDefault("kafka.batch_timeout_ms", 50)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", ":9108")
	v.SetDefault("metrics.namespace", "chanlun")

	v.SetDefault("stream.symbol", "")
	v.SetDefault("stream.interval", "1m")
	v.SetDefault("stream.provenance", "local")
}

var validLevels = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.EngineOptions().Validate(); err != nil {
		return err
	}

	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return apperrors.NewValidationError("logging.level", c.Logging.Level, "unknown log level")
	}
	if c.Logging.File && c.Logging.FilePath == "" {
		return apperrors.NewValidationError("logging.file_path", c.Logging.FilePath, "required when file logging is enabled")
	}

	if c.Store.Path == "" {
		return apperrors.NewValidationError("store.path", c.Store.Path, "must not be empty")
	}

	if c.Ledger.Enabled {
		if c.Ledger.Path == "" {
			return apperrors.NewValidationError("ledger.path", c.Ledger.Path, "required when the ledger is enabled")
		}
		if c.Ledger.MaxSize <= 0 {
			return apperrors.NewValidationError("ledger.max_size", c.Ledger.MaxSize, "must be positive")
		}
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return apperrors.NewValidationError("kafka.brokers", c.Kafka.Brokers, "at least one broker required")
		}
		if c.Kafka.Topic == "" {
			return apperrors.NewValidationError("kafka.topic", c.Kafka.Topic, "must not be empty")
		}
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return apperrors.NewValidationError("metrics.listen", c.Metrics.Listen, "required when metrics are enabled")
	}

	return nil
}

// EngineOptions converts the engine section into chain options.
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		StrokeMode:  models.StrokeMode(c.Engine.StrokeMode),
		SegmentAlgo: models.SegmentAlgo(c.Engine.SegmentAlgo),
		MaxLevels:   c.Engine.MaxLevels,
		MACDFast:    c.Engine.MACDFast,
		MACDSlow:    c.Engine.MACDSlow,
		MACDSignal:  c.Engine.MACDSignal,
	}
}

// LogConfig converts the logging section.
func (c *Config) LogConfig() logging.LogConfig {
	return logging.LogConfig{
		Level:      c.Logging.Level,
		Console:    c.Logging.Console,
		JSON:       c.Logging.JSON,
		File:       c.Logging.File,
		FilePath:   c.Logging.FilePath,
		MaxSize:    c.Logging.MaxSize,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAge,
	}
}
