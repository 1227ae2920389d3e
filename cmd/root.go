// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/absctl/pkg/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Network connection flags
	udpTarget string
	ifaceIP   string
	tcpTarget string

	// Serial connection flags
	portName string
	deviceID int

	// WebSocket bridge flags
	bridgeURL      string
	bridgeUsername string
	bridgeNoSSL    bool

	// Common flags
	timeout     time.Duration
	configPath  string
	logLevel    string
	capturePath string
)

// cfg is the effective configuration: file values overridden by flags.
var cfg = config.Default()

// logger is the console logger shared by every command.
var logger = zerolog.Nop()

var rootCmd = &cobra.Command{
	Use:   "absctl",
	Short: "ABS battery cell simulator control",
	Long: `absctl - A CLI tool for configuring and driving ABS battery cell simulators.

Each command opens one connection, performs its exchange and closes again.

Connection modes:
  UDP:       --udp 192.168.1.50 [--iface 192.168.1.2]
  TCP:       --tcp 192.168.1.50
  Serial:    --port /dev/ttyUSB0 --id 5
  WebSocket: --bridge ws://host/path --id 5 [--username user]

Serial IDs of 256 and above address every unit on the bus. Such connections
only accept commands that expect no reply.

For bridge authentication, the password is read from the ABS_PASSWORD
environment variable, or prompted interactively if not set.

Settings may also come from a YAML or TOML file given with --config; flags
win over file values.

Exit codes:
  0 - Success
  1 - Device, protocol or timeout failure
  2 - Connection or usage error`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadSettings,
}

func init() {
	flags := rootCmd.PersistentFlags()

	// Network connection flags
	flags.StringVar(&udpTarget, "udp", "", "Device IP address (UDP)")
	flags.StringVar(&ifaceIP, "iface", "", "Local interface IP to send from")
	flags.StringVar(&tcpTarget, "tcp", "", "Device IP address (TCP)")

	// Serial connection flags
	flags.StringVarP(&portName, "port", "p", "", "Serial port device")
	flags.IntVar(&deviceID, "id", 0, "Serial device ID (256+ addresses all units)")

	// WebSocket bridge flags
	flags.StringVarP(&bridgeURL, "bridge", "u", "", "WebSocket serial bridge URL (ws:// or wss://)")
	flags.StringVar(&bridgeUsername, "username", "", "Username for HTTP Basic auth")
	flags.BoolVar(&bridgeNoSSL, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Common flags
	flags.DurationVar(&timeout, "timeout", time.Second, "Reply timeout per command")
	flags.StringVarP(&configPath, "config", "c", "", "Configuration file (.yaml, .yml or .toml)")
	flags.StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	flags.StringVar(&capturePath, "capture", "", "Append every exchanged frame to this capture file")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadSettings merges the config file and flags into cfg and builds the
// logger.
func loadSettings(cmd *cobra.Command, args []string) error {
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return usageError(err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	override := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}

	// A transport flag replaces whatever transport the file selected.
	for _, name := range []string{"udp", "tcp", "port", "bridge"} {
		if flags.Changed(name) {
			cfg.Connection.UDP, cfg.Connection.TCP, cfg.Connection.Port, cfg.Connection.Bridge = "", "", "", ""
			break
		}
	}
	override("udp", func() { cfg.Connection.UDP = udpTarget })
	override("iface", func() { cfg.Connection.Iface = ifaceIP })
	override("tcp", func() { cfg.Connection.TCP = tcpTarget })
	override("port", func() { cfg.Connection.Port = portName })
	override("id", func() { cfg.Connection.ID = deviceID })
	override("bridge", func() { cfg.Connection.Bridge = bridgeURL })
	override("username", func() { cfg.Connection.Username = bridgeUsername })
	override("no-ssl-verify", func() { cfg.Connection.SkipSSLVerify = bridgeNoSSL })
	override("timeout", func() { cfg.Connection.Timeout = timeout })
	override("log-level", func() { cfg.Log.Level = logLevel })
	override("capture", func() { cfg.Capture = capturePath })

	if err := cfg.Validate(); err != nil {
		return usageError(err)
	}

	level, _ := zerolog.ParseLevel(cfg.Log.Level)
	logger = newLogger(level)
	return nil
}

// newLogger writes human readable logs to stderr, keeping stdout for
// command output.
func newLogger(level zerolog.Level) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).Level(level).With().Timestamp().Str("app", "absctl").Logger()
}

// printf writes command output to the command's stdout.
func printf(cmd *cobra.Command, format string, args ...interface{}) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
