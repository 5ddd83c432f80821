package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRetryCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Requeue a failed job with a fresh attempt budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.Retry(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s requeued at position %d (estimated wait %s)\n",
				resp.JobID, resp.QueuePosition, formatSeconds(resp.EstimatedWaitSeconds))
			return nil
		},
	}
	return cmd
}
