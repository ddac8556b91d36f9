package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	api := &apiClient{}

	root := &cobra.Command{
		Use:   "widgetctl",
		Short: "Chat widget management CLI",
		Long: `widgetctl talks to a running widgetd and can drive a chat widget from
the terminal against any messaging endpoint.

Environment:
  CHATWIDGET_API_URL       Daemon URL (default: http://localhost:8080)
  CHATWIDGET_API_KEY       API key for authentication
  CHATWIDGET_ENDPOINT_URL  Messaging endpoint used by "widgetctl chat"`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&api.baseURL, "api-url", envOr("CHATWIDGET_API_URL", "http://localhost:8080"), "Daemon URL")
	root.PersistentFlags().StringVar(&api.key, "api-key", os.Getenv("CHATWIDGET_API_KEY"), "API key for the daemon")

	root.AddCommand(
		chatCommand(),
		healthCommand(api),
		widgetsCommand(api),
		conversationsCommand(api),
		logsCommand(api),
		configCommand(),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
