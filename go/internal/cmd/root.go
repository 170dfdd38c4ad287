package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	relayURL   string
	roomID     string
	userID     string
	username   string
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envConfig := os.Getenv("CONFIG_PATH")

	cmd := &cobra.Command{
		Use:   "interviewroom",
		Short: "Headless client for live interview sessions over a relay server",
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config (optional)")
	cmd.PersistentFlags().StringVar(&relayURL, "relay", "", "relay server base URL (overrides config)")
	cmd.PersistentFlags().StringVar(&roomID, "room", "", "room identifier to join")
	cmd.PersistentFlags().StringVar(&userID, "user", "", "stable user identifier")
	cmd.PersistentFlags().StringVar(&username, "name", "", "display name")
	cmd.AddCommand(newJoinCmd())
	cmd.AddCommand(newHostCmd())
	return cmd
}
