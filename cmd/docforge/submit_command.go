package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"docforge/internal/gateway"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var tier string
	var settings string
	var priority string
	var watch bool

	cmd := &cobra.Command{
		Use:   "submit <document-id>",
		Short: "Submit a document for enhancement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.Submit(cmd.Context(), gateway.SubmitRequest{
				UserID:       ctx.user(),
				Tier:         tier,
				DocumentID:   args[0],
				SettingsJSON: settings,
				PriorityHint: priority,
			})
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s queued at position %d (est. wait %s)\n",
				resp.JobID, resp.QueuePosition, formatSeconds(resp.EstimatedWaitSeconds))
			if watch {
				return watchJob(cmd, client, resp.JobID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tier, "tier", "free", "Subscription tier to submit under")
	cmd.Flags().StringVar(&settings, "settings", "", "Enhancement settings as a JSON object")
	cmd.Flags().StringVar(&priority, "priority", "", "Priority hint (high, normal, low)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Stream progress until the job finishes")
	return cmd
}

func formatSeconds(seconds int) string {
	if seconds <= 0 {
		return "none"
	}
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	return fmt.Sprintf("%dm%02ds", seconds/60, seconds%60)
}
