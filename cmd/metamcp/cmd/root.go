// Package cmd provides the CLI commands for MetaMCP.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/metamcp/metamcp/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "metamcp",
	Short: "MetaMCP - MCP aggregation and auth gateway",
	Long: `MetaMCP aggregates many upstream MCP servers behind unified namespace
endpoints, exposing each over SSE and Streamable HTTP with API-key and/or
OAuth 2.1 protection.

Quick start:
  1. Create a config file: sentinel-gate.yaml
  2. Run: metamcp serve

Configuration:
  Config is loaded from sentinel-gate.yaml (or .yml) in the current
  directory, $HOME/.sentinel-gate/, or /etc/sentinel-gate/
  (%ProgramData%\sentinel-gate on Windows).

  Environment variables can override config values with the SENTINEL_GATE_
  prefix. Example: SENTINEL_GATE_SERVER_HTTP_ADDR=:9090

Commands:
  serve            Start the aggregation server
  reset-upstream   Clear an upstream's ERROR status
  version          Print version information`,
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
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: sentinel-gate.yaml searched in ., $HOME/.sentinel-gate, /etc/sentinel-gate)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
