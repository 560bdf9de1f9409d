// Package cmd defines the command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "floatplane-zero-agent",
	Short: "Streaming chat agent backend",
	Long: `floatplane-zero-agent is a streaming chat backend with pluggable LLM
providers, tool calling, file-grounded conversations, and PostgreSQL-backed
session persistence.

Run 'floatplane-zero-agent serve' to start the HTTP API server.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: ./config.yaml)")
}
