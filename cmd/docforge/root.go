package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var serverFlag string
	var tokenFlag string
	var userFlag string
	var configFlag string
	var jsonFlag bool

	ctx := newCommandContext(&serverFlag, &tokenFlag, &userFlag, &configFlag, &jsonFlag)

	rootCmd := &cobra.Command{
		Use:           "docforge",
		Short:         "DocForge document enhancement CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "Daemon API address (host:port)")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "API bearer token")
	rootCmd.PersistentFlags().StringVar(&userFlag, "user", "", "User id submissions run as")
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Emit raw JSON instead of tables")

	rootCmd.AddCommand(newSubmitCommand(ctx))
	rootCmd.AddCommand(newBatchCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newCancelCommand(ctx))
	rootCmd.AddCommand(newRetryCommand(ctx))
	rootCmd.AddCommand(newQueueCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newHealthCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}

// writeJSON renders v for --json consumers, indented for readability.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
