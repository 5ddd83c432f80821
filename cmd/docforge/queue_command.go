package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"docforge/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "List queued jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			view, err := client.Queue(cmd.Context(), statuses)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, view)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderCounts(view.Counts))
			rows := make([][]string, 0, len(view.Jobs))
			for _, job := range view.Jobs {
				rows = append(rows, []string{
					job.ID,
					job.DocumentID,
					string(job.Status),
					job.Priority.String(),
					job.CurrentStage,
					fmt.Sprintf("%.0f%%", job.OverallProgress),
					fmt.Sprintf("%d/%d", job.Attempts, job.MaxAttempts),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Job", "Document", "Status", "Priority", "Stage", "Progress", "Attempts"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight}))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (repeatable)")
	cmd.AddCommand(newQueueClearCommand(ctx))
	return cmd
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove completed, failed, and cancelled jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.ClearQueue(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d terminal jobs\n", resp.Removed)
			return nil
		},
	}
}

func renderCounts(counts map[queue.Status]int) string {
	keys := make([]string, 0, len(counts))
	for status := range counts {
		keys = append(keys, string(status))
	}
	sort.Strings(keys)

	line := ""
	for _, key := range keys {
		if line != "" {
			line += "  "
		}
		line += fmt.Sprintf("%s=%d", key, counts[queue.Status(key)])
	}
	if line == "" {
		return "queue is empty"
	}
	return line
}
