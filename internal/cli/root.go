package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	wsURL      string
	token      string
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}
	envToken := os.Getenv("SMARTMATH_TOKEN")

	cmd := &cobra.Command{
		Use:   "smartmath",
		Short: "Terminal client for the Smart Math live quiz",
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.PersistentFlags().StringVar(&wsURL, "server", "", "websocket URL (overrides config)")
	cmd.PersistentFlags().StringVar(&token, "token", envToken, "auth token")
	cmd.AddCommand(NewPlayCmd(&configPath, &wsURL, &token))
	cmd.AddCommand(NewObserveCmd(&configPath, &wsURL, &token))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	return cmd
}
