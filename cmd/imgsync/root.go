package main

import "github.com/spf13/cobra"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "imgsync",
		Short:         "Maintain the chronological image archive",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := resolveLogLevel(cmd)
			return err
		},
	}
	flags := cmd.PersistentFlags()
	flags.String("config", "", "Config file (yaml, toml or json)")
	flags.String("root", ".", "Archive root holding images/")
	flags.String("cache", "", "Message cache file (default: <root>/scripts/telegram_messages_cache.json)")
	flags.String("log-level", "info", "Log level: debug|info|warn|error")
	flags.String("log-file", "", "Also write logs to this file, rotated")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSpritesCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newAuditCmd())
	cmd.AddCommand(newRecompressCmd())
	return cmd
}
