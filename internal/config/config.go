// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads whorl settings from a YAML file and WHORL_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SerialConfig is the local serial port connection.
type SerialConfig struct {
	Port string `mapstructure:"port"`
	Baud int    `mapstructure:"baud"`
}

// BridgeConfig is the WebSocket serial bridge connection.
type BridgeConfig struct {
	URL         string `mapstructure:"url"`
	Username    string `mapstructure:"username"`
	NoSSLVerify bool   `mapstructure:"noSSLVerify"`
}

// DeviceConfig holds the module address, handshake password and timing.
type DeviceConfig struct {
	Address    uint32        `mapstructure:"address"`
	Password   uint32        `mapstructure:"password"`
	Timeout    time.Duration `mapstructure:"timeout"`
	PacketSize int           `mapstructure:"packetSize"`
}

// LumberjackConfig is the rotating log file.
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig sets level, encoder and optional file output.
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig is the Prometheus endpoint served by monitor.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
	Path string `mapstructure:"path"`
}

// CaptureConfig controls finger polling.
type CaptureConfig struct {
	PollRate float64       `mapstructure:"pollRate"` // GenImg attempts per second
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Config is the top-level configuration.
type Config struct {
	Serial  SerialConfig  `mapstructure:"serial"`
	Bridge  BridgeConfig  `mapstructure:"bridge"`
	Device  DeviceConfig  `mapstructure:"device"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Capture CaptureConfig `mapstructure:"capture"`
}

// Load reads configuration from path, or from whorl.yaml in the working
// directory or $HOME/.config/whorl when path is empty. A missing file is not
// an error; defaults and WHORL_* environment variables still apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = os.Getenv("WHORL_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "whorl"))
		}
		v.SetConfigName("whorl")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	// WHORL_DEVICE_TIMEOUT overrides device.timeout
	v.SetEnvPrefix("WHORL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no module accepts.
func (c *Config) Validate() error {
	if c.Serial.Baud <= 0 || c.Serial.Baud%9600 != 0 {
		return fmt.Errorf("serial.baud %d is not a multiple of 9600", c.Serial.Baud)
	}
	switch c.Device.PacketSize {
	case 0, 32, 64, 128, 256:
	default:
		return fmt.Errorf("device.packetSize %d must be 32, 64, 128 or 256", c.Device.PacketSize)
	}
	if c.Device.Timeout <= 0 {
		return fmt.Errorf("device.timeout must be positive")
	}
	if c.Capture.PollRate <= 0 {
		return fmt.Errorf("capture.pollRate must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("serial.port", "")
	v.SetDefault("serial.baud", 57600)

	v.SetDefault("bridge.url", "")
	v.SetDefault("bridge.username", "")
	v.SetDefault("bridge.noSSLVerify", false)

	v.SetDefault("device.address", 0xFFFFFFFF)
	v.SetDefault("device.password", 0)
	v.SetDefault("device.timeout", "2s")
	v.SetDefault("device.packetSize", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 10)
	v.SetDefault("logging.file.maxBackups", 3)
	v.SetDefault("logging.file.maxAge", 28)
	v.SetDefault("logging.file.compress", false)

	v.SetDefault("metrics.addr", "")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("capture.pollRate", 5.0)
	v.SetDefault("capture.timeout", "15s")
}
