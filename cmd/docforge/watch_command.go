package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"docforge/internal/progress"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <job-id>",
		Short: "Stream a job's progress until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			return watchJob(cmd, client, args[0])
		},
	}
	return cmd
}

func watchJob(cmd *cobra.Command, client *apiClient, jobID string) error {
	out := cmd.OutOrStdout()
	return client.Watch(cmd.Context(), jobID, func(event progress.Event) {
		if event.Terminal() {
			fmt.Fprintf(out, "[%6.2f%%] %s", event.OverallProgress, event.Status)
			if event.ErrorCode != "" {
				fmt.Fprintf(out, " (%s)", event.ErrorCode)
			}
			fmt.Fprintln(out)
			return
		}
		stage := event.Stage
		if stage == "" {
			stage = "queued"
		}
		message := event.Message
		if message != "" {
			message = "  " + message
		}
		fmt.Fprintf(out, "[%6.2f%%] %s%s\n", event.OverallProgress, stage, message)
	})
}
