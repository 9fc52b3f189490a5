// Package config loads process-start configuration: listen address, database
// path, log level, and the broker bridge endpoint list. It is distinct from
// the runtime-mutable control surface served by internal/settings — this
// package supplies values that have no row in app_settings.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the boot-time configuration for the control plane process.
type Config struct {
	Host     string
	Port     int
	LogLevel string
	DataDir  string
	DBPath   string

	MetricsEnabled bool
	MetricsPort    int

	MT5ConnectionsJSON   string
	MT5ConnectionActive  string
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Host:                "0.0.0.0",
		Port:                8090,
		LogLevel:            "info",
		DataDir:             "./data",
		DBPath:              "./data/aurum.db",
		MetricsEnabled:      true,
		MetricsPort:         9090,
		MT5ConnectionsJSON:  "[]",
		MT5ConnectionActive: "",
	}
}

// Load reads environment variables (prefixed AURUM_) and an optional
// config.yaml/config.json in configPaths, falling back to Default for any
// unset key. Environment variables always win over file values.
func Load(configPaths ...string) (*Config, error) {
	v := viper.New()
	cfg := Default()

	v.SetEnvPrefix("AURUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("host", cfg.Host)
	v.SetDefault("port", cfg.Port)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("db_path", cfg.DBPath)
	v.SetDefault("metrics_enabled", cfg.MetricsEnabled)
	v.SetDefault("metrics_port", cfg.MetricsPort)
	v.SetDefault("mt5_connections_json", cfg.MT5ConnectionsJSON)
	v.SetDefault("mt5_connection_active_id", cfg.MT5ConnectionActive)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}
	if len(configPaths) > 0 {
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("config: reading config file: %w", err)
			}
		}
	}

	cfg.Host = v.GetString("host")
	cfg.Port = v.GetInt("port")
	cfg.LogLevel = v.GetString("log_level")
	cfg.DataDir = v.GetString("data_dir")
	cfg.DBPath = v.GetString("db_path")
	cfg.MetricsEnabled = v.GetBool("metrics_enabled")
	cfg.MetricsPort = v.GetInt("metrics_port")
	cfg.MT5ConnectionsJSON = v.GetString("mt5_connections_json")
	cfg.MT5ConnectionActive = v.GetString("mt5_connection_active_id")

	return cfg, nil
}
