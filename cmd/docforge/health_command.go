package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show daemon and dependency health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.Health(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, status)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Daemon: running=%t workers=%d\n", status.Running, status.Workers)
			fmt.Fprintf(out, "Health: %s (checked %s)\n",
				status.Health.Status, status.Health.CheckedAt.Format("15:04:05"))
			rows := make([][]string, 0, len(status.Health.Dependencies))
			for _, dep := range status.Health.Dependencies {
				state := "ok"
				if !dep.Healthy {
					state = "failing"
				}
				detail := dep.Detail
				if dep.Circuit != "" {
					if detail != "" {
						detail += "; "
					}
					detail += "circuit " + dep.Circuit
				}
				rows = append(rows, []string{
					dep.Name,
					state,
					fmt.Sprintf("%t", dep.Critical),
					dep.Latency.Round(time.Millisecond).String(),
					detail,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Dependency", "State", "Critical", "Latency", "Detail"}, rows, nil))
			return nil
		},
	}
	return cmd
}
