// Package config loads service settings from config.yaml and HEALNEXUS_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Poller    PollerConfig    `mapstructure:"poller"`
	Query     QueryConfig     `mapstructure:"query"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// StoreConfig points at the realtime database. Secret, when set, is sent as
// the auth query parameter.
type StoreConfig struct {
	URL     string        `mapstructure:"url"`
	Secret  string        `mapstructure:"secret"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type PollerConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	Immediate bool          `mapstructure:"immediate"`
}

type QueryConfig struct {
	HistoryLimit int `mapstructure:"history_limit"`
}

// MQTTConfig enables the live feed when Broker is non-empty.
type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
}

type WebSocketConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5000)
	v.SetDefault("store.url", "")
	v.SetDefault("store.secret", "")
	v.SetDefault("store.timeout", "10s")
	v.SetDefault("poller.interval", "3s")
	v.SetDefault("poller.immediate", true)
	v.SetDefault("query.history_limit", 200)
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.topic", "healnexus/health/current")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("websocket.enabled", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads the configuration. An empty path searches ., ./config and
// /etc/healnexus for config.yaml; a missing file is not an error, explicit
// paths must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/healnexus")
	}

	setDefaults(v)

	v.SetEnvPrefix("HEALNEXUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Store.URL == "" {
		return errors.New("config: store.url is required")
	}
	u, err := url.Parse(c.Store.URL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("config: store.url %q must be an absolute URL", c.Store.URL)
	}
	if c.Store.Timeout <= 0 {
		return fmt.Errorf("config: store.timeout must be positive, got %s", c.Store.Timeout)
	}
	if c.Poller.Interval <= 0 {
		return fmt.Errorf("config: poller.interval must be positive, got %s", c.Poller.Interval)
	}
	if c.Query.HistoryLimit <= 0 {
		return fmt.Errorf("config: query.history_limit must be positive, got %d", c.Query.HistoryLimit)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	return nil
}
