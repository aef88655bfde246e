package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "deliveryctl",
	Short: "Operate the message delivery pipeline",
	Long: `deliveryctl talks to the messaging service HTTP API to inspect
message status, re-queue FAILED messages, trigger sweeps and replay
history for a user.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("addr", "http://localhost:8084", "Messaging service base URL")
	rootCmd.PersistentFlags().String("user", "", "User id sent as X-User-ID (header auth mode)")
	rootCmd.PersistentFlags().String("token", "", "Bearer token (jwt auth mode)")

	syncCmd.Flags().String("since", "", "Replay messages sent after this RFC3339 time (default: last hour)")

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(syncCmd)
}

var getCmd = &cobra.Command{
	Use:   "get MESSAGE_ID",
	Short: "Show a message and its delivery status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return clientFrom(cmd).call(cmd.Context(), cmd.OutOrStdout(), "GET", "/api/v1/messages/"+args[0], nil)
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry MESSAGE_ID",
	Short: "Re-queue a FAILED message",
	Long: `Resets a FAILED message to PENDING with a zero retry count and
republishes it. Messages in any other status are left untouched and the
command exits non-zero.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return clientFrom(cmd).call(cmd.Context(), cmd.OutOrStdout(), "POST", "/api/v1/messages/"+args[0]+"/retry", nil)
	},
}

var sweepCmd = &cobra.Command{
	Use:       "sweep retry|delivery",
	Short:     "Run one pass of a periodic sweep now",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"retry", "delivery"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return clientFrom(cmd).call(cmd.Context(), cmd.OutOrStdout(), "POST", "/api/v1/admin/sweeps/"+args[0], nil)
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Promote and replay everything the user missed",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetString("since")

		body := map[string]any{"client_id": "deliveryctl"}
		if raw != "" {
			since, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return fmt.Errorf("invalid --since: %w", err)
			}
			body["last_sync_timestamp"] = since.UnixMilli()
		}
		return clientFrom(cmd).call(cmd.Context(), cmd.OutOrStdout(), "POST", "/api/v1/sync", body)
	},
}
