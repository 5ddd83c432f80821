package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"docforge/internal/gateway"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var tier string
	var settings string

	cmd := &cobra.Command{
		Use:   "batch <document-id> [document-id...]",
		Short: "Submit several documents as one batch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.SubmitBatch(cmd.Context(), gateway.BatchRequest{
				UserID:       ctx.user(),
				Tier:         tier,
				DocumentIDs:  args,
				SettingsJSON: settings,
			})
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, resp)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Batch %s\n", resp.BatchID)
			rows := make([][]string, 0, len(resp.Items))
			for _, item := range resp.Items {
				outcome := "accepted"
				detail := item.JobID
				if !item.Accepted {
					outcome = "rejected"
					detail = item.Reason
				}
				rows = append(rows, []string{item.DocumentID, outcome, detail})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Document", "Outcome", "Detail"}, rows, nil))
			return nil
		},
	}

	cmd.Flags().StringVar(&tier, "tier", "free", "Subscription tier to submit under")
	cmd.Flags().StringVar(&settings, "settings", "", "Shared enhancement settings as a JSON object")
	return cmd
}
