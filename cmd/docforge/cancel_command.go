package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCancelCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a pending or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.Cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, resp)
			}
			if resp.JobRemoved {
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s cancelled\n", resp.JobID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(),
					"Job %s is running; it will stop at the next stage boundary\n", resp.JobID)
			}
			return nil
		},
	}
	return cmd
}
