package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"vntransl/internal/store"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-file progress of the most recent run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			ledger, err := store.Open(cfg)
			if err != nil {
				return fmt.Errorf("open run ledger: %w", err)
			}
			defer func() { _ = ledger.Close() }()

			runID, summaries, err := ledger.LatestRunSummaries(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if runID == "" {
				fmt.Fprintln(out, "No runs recorded yet")
				return nil
			}

			rows := make([][]string, 0, len(summaries))
			for _, summary := range summaries {
				rows = append(rows, []string{
					summary.Path,
					string(summary.Status),
					strconv.Itoa(summary.Entries),
					fmt.Sprintf("%d/%d", summary.Completed, summary.Batches),
					strconv.Itoa(summary.Failed),
				})
			}

			fmt.Fprintf(out, "Run %s\n", runID)
			fmt.Fprintln(out, renderTable(
				[]column{
					{header: "File"},
					{header: "Status"},
					{header: "Entries", numeric: true},
					{header: "Batches", numeric: true},
					{header: "Failed", numeric: true},
				},
				rows,
			))
			return nil
		},
	}
}
