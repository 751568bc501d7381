package main

import (
	"fmt"
	"os"
	"time"

	"github.com/JonMunkholm/tenantinit/internal/client"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	timeout   time.Duration
	asJSON    bool
)

var rootCmd = &cobra.Command{
	Use:           "tenantctl",
	Short:         "Operate the tenant initialization service",
	Long:          "Register tenant connections, initialize databases, seed workspaces and inspect initialization status.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func newClient() *client.Client {
	return client.New(serverURL, timeout)
}

func init() {
	defaultURL := os.Getenv("TENANTINIT_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultURL, "Service base URL (env TENANTINIT_URL)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "Request timeout")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Print raw JSON")

	rootCmd.AddCommand(connectionsCmd, initCmd, seedCmd, configCmd, statusCmd, logsCmd, genKeyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
