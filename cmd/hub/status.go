package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"openclaw/hub/pkg/cli"
)

var statusFlags struct {
	address string
	output  string
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running gateway",
	Long: `Query a running gateway's health and 24-hour statistics.

Examples:
  # Query the default local address
  hub status

  # Query a different address, JSON output
  hub status --address 127.0.0.1:9090 --output json`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVarP(&statusFlags.address, "address", "a", "127.0.0.1:8080", "gateway address")
	statusCmd.Flags().StringVarP(&statusFlags.output, "output", "o", "text", "output format (text, json)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	base := "http://" + statusFlags.address

	var healthBody struct {
		Status        string         `json:"status"`
		Version       string         `json:"version"`
		UptimeSeconds float64        `json:"uptime_seconds"`
		Providers     map[string]any `json:"providers"`
	}
	if err := getJSON(client, base+"/health", &healthBody); err != nil {
		return fmt.Errorf("gateway unreachable at %s: %w", statusFlags.address, err)
	}

	var statsBody struct {
		Requests24h int64   `json:"requests_24h"`
		Errors24h   int64   `json:"errors_24h"`
		CostUSD24h  float64 `json:"cost_usd_24h"`
	}
	if err := getJSON(client, base+"/api/dashboard/stats", &statsBody); err != nil {
		return fmt.Errorf("failed to fetch stats: %w", err)
	}

	result := map[string]any{
		"status":         healthBody.Status,
		"version":        healthBody.Version,
		"uptime_seconds": int64(healthBody.UptimeSeconds),
		"requests_24h":   statsBody.Requests24h,
		"errors_24h":     statsBody.Errors24h,
		"cost_usd_24h":   fmt.Sprintf("%.4f", statsBody.CostUSD24h),
	}
	for service, state := range healthBody.Providers {
		result["provider/"+service] = state
	}

	return cli.NewFormatter(cli.OutputFormat(statusFlags.output)).FormatTo(os.Stdout, result)
}

func getJSON(client *http.Client, url string, dst any) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
