package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chatbridge",
	Short: "Messaging-platform channel adapter gateway",
	Long:  "ChatBridge normalizes inbound platform webhooks into canonical messages and renders outbound instructions back into platform API calls.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
