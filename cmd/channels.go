package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// credentialKeys documents the required credential fields per platform.
var credentialKeys = map[string][]string{
	"telegram": {"access_token", "verify"},
	"vk":       {"access_token", "verify", "secret_key"},
}

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "List supported platforms",
	Long:  "Lists every registered platform and the credential fields it requires.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		registry := newRegistry()
		for _, name := range registry.Platforms() {
			fmt.Printf("%s\trequires: %v\n", name, credentialKeys[name])
		}
	},
}

func init() {
	rootCmd.AddCommand(channelsCmd)
}
