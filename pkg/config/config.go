// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads absctl settings from a YAML or TOML file. Command
// line flags override anything set here.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Transport names
const (
	TransportNone   = ""
	TransportUDP    = "udp"
	TransportTCP    = "tcp"
	TransportSerial = "serial"
	TransportBridge = "bridge"
)

// Config is the complete file schema.
type Config struct {
	Connection ConnectionConfig `yaml:"connection" toml:"connection"`
	Log        LogConfig        `yaml:"log" toml:"log"`
	Discovery  DiscoveryConfig  `yaml:"discovery" toml:"discovery"`
	Monitor    MonitorConfig    `yaml:"monitor" toml:"monitor"`

	// Capture is a file every exchanged frame is appended to.
	Capture string `yaml:"capture" toml:"capture"`
}

// ConnectionConfig selects and parameterizes one link.
type ConnectionConfig struct {
	UDP   string `yaml:"udp" toml:"udp"`
	Iface string `yaml:"iface" toml:"iface"`
	TCP   string `yaml:"tcp" toml:"tcp"`

	// Port is a serial device such as /dev/ttyUSB0 or COM3.
	Port string `yaml:"port" toml:"port"`

	// ID addresses a unit on a serial bus. 256 and above address all units.
	ID int `yaml:"id" toml:"id"`

	Bridge        string `yaml:"bridge" toml:"bridge"`
	Username      string `yaml:"username" toml:"username"`
	Password      string `yaml:"password" toml:"password"`
	SkipSSLVerify bool   `yaml:"no_ssl_verify" toml:"no_ssl_verify"`

	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
}

// LogConfig controls console logging.
type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
}

// DiscoveryConfig holds discover defaults.
type DiscoveryConfig struct {
	Iface      string        `yaml:"iface" toml:"iface"`
	Window     time.Duration `yaml:"window" toml:"window"`
	MaxResults int           `yaml:"max_results" toml:"max_results"`
	Dedupe     bool          `yaml:"dedupe" toml:"dedupe"`
}

// MonitorConfig holds monitor defaults.
type MonitorConfig struct {
	Interval    time.Duration `yaml:"interval" toml:"interval"`
	MetricsAddr string        `yaml:"metrics_addr" toml:"metrics_addr"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Connection: ConnectionConfig{
			Timeout: time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Discovery: DiscoveryConfig{
			Window:     time.Second,
			MaxResults: 32,
		},
		Monitor: MonitorConfig{
			Interval: time.Second,
		},
	}
}

// Load reads path over the defaults and validates the result. The format is
// picked by extension: .yaml, .yml or .toml.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".toml":
		_, err = toml.Decode(string(data), &cfg)
	default:
		return Config{}, fmt.Errorf("config format not recognized (%s): use .yaml, .yml or .toml", path)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

// Transport names the link the connection settings select, or
// TransportNone.
func (c ConnectionConfig) Transport() string {
	switch {
	case c.UDP != "":
		return TransportUDP
	case c.TCP != "":
		return TransportTCP
	case c.Port != "":
		return TransportSerial
	case c.Bridge != "":
		return TransportBridge
	default:
		return TransportNone
	}
}

// Validate checks the whole configuration.
func (c Config) Validate() error {
	if err := c.Connection.Validate(); err != nil {
		return fmt.Errorf("connection: %w", err)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log: unknown level %q", c.Log.Level)
	}
	if c.Discovery.Window < 0 {
		return fmt.Errorf("discovery: negative window")
	}
	if c.Discovery.MaxResults < 0 || c.Discovery.MaxResults > 32 {
		return fmt.Errorf("discovery: max_results %d outside 0..32", c.Discovery.MaxResults)
	}
	if c.Monitor.Interval < 0 {
		return fmt.Errorf("monitor: negative interval")
	}
	return nil
}

// Validate checks that at most one link is selected and its parameters are
// usable.
func (c ConnectionConfig) Validate() error {
	selected := 0
	for _, v := range []string{c.UDP, c.TCP, c.Port, c.Bridge} {
		if strings.TrimSpace(v) != "" {
			selected++
		}
	}
	if selected > 1 {
		return fmt.Errorf("only one of udp, tcp, port and bridge may be set")
	}
	if c.ID < 0 {
		return fmt.Errorf("id must not be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Bridge != "" {
		u, err := url.Parse(c.Bridge)
		if err != nil {
			return fmt.Errorf("bridge: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("bridge: unsupported URL scheme %q (use ws:// or wss://)", u.Scheme)
		}
	}
	return nil
}
