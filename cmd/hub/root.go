package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "hub",
	Short: "OpenClaw Hub - local AI gateway",
	Long: `OpenClaw Hub is a local AI gateway that normalises LLM providers behind
a single OpenAI-compatible endpoint.

It routes chat completion requests by model name, retries transient
upstream failures, falls back between providers, enforces per-connection
budgets, and keeps credentials encrypted at rest.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "hub.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
