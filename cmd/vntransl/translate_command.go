package main

import (
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"vntransl/internal/logging"
	"vntransl/internal/store"
	"vntransl/internal/workflow"
)

func newTranslateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "translate",
		Short: "Translate every document under the project's input directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			logger, err := logging.New(logging.Options{
				Level:    cfg.Logging.Level,
				Format:   cfg.Logging.Format,
				FilePath: cfg.Logging.File,
			})
			if err != nil {
				return err
			}

			ledger, err := store.Open(cfg)
			if err != nil {
				return fmt.Errorf("open run ledger: %w", err)
			}
			defer func() { _ = ledger.Close() }()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			manager := workflow.NewManager(cfg, ledger, logger)
			summary, runErr := manager.Run(runCtx)
			if summary != nil {
				fmt.Fprintln(cmd.OutOrStdout(), renderSummary(summary))
			}
			return runErr
		},
	}
}

func renderSummary(summary *workflow.Summary) string {
	rows := [][]string{
		{"Files", strconv.Itoa(summary.Files)},
		{"Entries", strconv.Itoa(summary.Entries)},
		{"Translated", strconv.Itoa(summary.Translated)},
		{"Pre-existing", strconv.Itoa(summary.PreExisting)},
		{"Failed batches", strconv.Itoa(summary.FailedBatches)},
		{"Failed files", strconv.Itoa(summary.FailedFiles)},
		{"Duration", summary.Duration.Round(time.Millisecond).String()},
	}
	return renderTable([]column{{header: "Run " + summary.RunID}, {numeric: true}}, rows)
}
