package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the warebox agent.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Remote     RemoteConfig     `mapstructure:"remote"`
	Sync       SyncConfig       `mapstructure:"sync"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ServerConfig configures the local HTTP surface consumed by the UI shell.
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

// DatabaseConfig describes the embedded cache database.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
	DSN  string `mapstructure:"dsn"`
}

// RemoteConfig holds connection options for the remote inventory service.
type RemoteConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SyncConfig controls the sync engine schedule and refresh scope.
type SyncConfig struct {
	AutoStart       bool          `mapstructure:"auto_start"`
	IntervalMinutes int           `mapstructure:"interval_minutes"`
	RetryThreshold  int           `mapstructure:"retry_threshold"`
	ProbeInterval   time.Duration `mapstructure:"probe_interval"`
	Statuses        []string      `mapstructure:"statuses"`
	LookbackDays    int           `mapstructure:"lookback_days"`
	FetchLimit      int           `mapstructure:"fetch_limit"`
	ReferenceTables []string      `mapstructure:"reference_tables"`
}

// MonitoringConfig enables metrics endpoints.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig toggles the metrics endpoint.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("WAREBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 7080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.path", "./data/warebox.sqlite")

	v.SetDefault("remote.base_url", "")
	v.SetDefault("remote.timeout", "15s")

	v.SetDefault("sync.auto_start", true)
	v.SetDefault("sync.interval_minutes", 5)
	v.SetDefault("sync.retry_threshold", 3)
	v.SetDefault("sync.probe_interval", "30s")
	v.SetDefault("sync.statuses", []string{"pending", "approved", "awaiting_stock"})
	v.SetDefault("sync.lookback_days", 30)
	v.SetDefault("sync.fetch_limit", 500)
	v.SetDefault("sync.reference_tables", []string{"stock_items", "locations", "users", "teams", "biometric_templates"})

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
