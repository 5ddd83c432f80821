package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var isBatch bool

	cmd := &cobra.Command{
		Use:   "status <job-id|batch-id>",
		Short: "Show the status of a job or batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if isBatch {
				return renderBatchStatus(cmd, ctx, client, args[0])
			}

			status, err := client.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, status)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Job %s: %s (%.0f%%)\n", status.JobID, status.Status, status.OverallProgress)
			if status.CurrentStage != "" {
				fmt.Fprintf(out, "  stage: %s (%.0f%%)\n", status.CurrentStage, status.StageProgress)
			}
			if status.Message != "" {
				fmt.Fprintf(out, "  %s\n", status.Message)
			}
			if status.QueuePosition > 0 {
				fmt.Fprintf(out, "  queue position %d, est. wait %s\n",
					status.QueuePosition, formatSeconds(status.EstimatedWaitSeconds))
			}
			if status.Result != nil {
				fmt.Fprintf(out, "  enhanced: %s\n", status.Result.EnhancedURL)
				fmt.Fprintf(out, "  quality: %.1f -> %.1f\n",
					status.Result.QualityScoreBefore, status.Result.QualityScoreAfter)
			}
			if status.Error != nil {
				fmt.Fprintf(out, "  error: %s: %s (retryable=%t)\n",
					status.Error.Code, status.Error.Message, status.Error.Retryable)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&isBatch, "batch", false, "Treat the argument as a batch id")
	return cmd
}

func renderBatchStatus(cmd *cobra.Command, ctx *commandContext, client *apiClient, batchID string) error {
	status, err := client.BatchStatus(cmd.Context(), batchID)
	if err != nil {
		return err
	}
	if ctx.jsonOutput() {
		return writeJSON(cmd, status)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Batch %s: %s (%.0f%%), %d completed, %d failed of %d\n",
		status.BatchID, status.Status, status.OverallPercent,
		status.Completed, status.Failed, status.Total)
	rows := make([][]string, 0, len(status.Members))
	for _, member := range status.Members {
		detail := member.CurrentStage
		if member.ErrorCode != "" {
			detail = member.ErrorCode
		}
		rows = append(rows, []string{
			member.JobID,
			member.DocumentID,
			string(member.Status),
			fmt.Sprintf("%.0f%%", member.OverallProgress),
			detail,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Job", "Document", "Status", "Progress", "Detail"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft}))
	return nil
}
