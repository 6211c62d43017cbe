// Package cmd provides the CLI commands for net-relay.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Annihilater/net-relay/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "net-relay",
	Short: "net-relay - multi-protocol forwarding proxy",
	Long: `net-relay is a forwarding proxy that accepts SOCKS5 and HTTP CONNECT
clients, authenticates them, enforces IP and target access-control policy,
and relays bytes to the requested target. A management API exposes live
connection state, traffic statistics, and a hot-reloadable configuration.

Quick start:
  1. Create a config file: config.toml (or rely on documented defaults)
  2. Run: net-relay run

Configuration is loaded from ./config.toml, then /etc/net-relay/config.toml.
Environment variables override config values with the NET_RELAY_
prefix, e.g. NET_RELAY_SERVER_SOCKS_PORT=11080.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.toml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
