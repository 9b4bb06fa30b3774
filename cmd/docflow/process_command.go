package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"docflow/internal/executor"
	"docflow/internal/logging"
	"docflow/internal/review"
	"docflow/internal/workflow"
)

// pipelineStepOrder fixes display order for run summaries.
var pipelineStepOrder = []string{
	workflow.StepExtract,
	workflow.StepSaveJSON,
	workflow.StepSaveCSV,
	workflow.StepCreateReview,
	workflow.StepRecordMetrics,
}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "process <file...>",
		Short: "Run the extraction pipeline on documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			logger := logging.NewNop()
			if verbose {
				logger, err = logging.New(logging.Options{
					Level:            cfg.Logging.Level,
					Format:           cfg.Logging.Format,
					OutputPaths:      []string{"stderr"},
					ErrorOutputPaths: []string{"stderr"},
				})
				if err != nil {
					return err
				}
			}

			return ctx.withStore(func(store *review.Store) error {
				mgr, err := workflow.NewManager(cfg, store, logger)
				if err != nil {
					return err
				}

				var failed int
				out := cmd.OutOrStdout()
				for _, path := range args {
					result, err := mgr.ProcessDocument(cmd.Context(), path)
					if err != nil {
						return fmt.Errorf("process %s: %w", path, err)
					}

					fmt.Fprintf(out, "%s: run %s %s in %s\n",
						path, shortID(result.RunID), result.Status, result.Duration.Round(displayDurationUnit))
					fmt.Fprint(out, renderRunSteps(result))
					if result.Status == executor.RunFailed {
						failed++
					}
				}

				if failed > 0 {
					return fmt.Errorf("%d of %d documents failed", failed, len(args))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline activity to stderr")
	return cmd
}

func renderRunSteps(result *executor.RunResult) string {
	rows := make([][]string, 0, len(result.Steps))
	for _, stepID := range pipelineStepOrder {
		res, ok := result.Step(stepID)
		if !ok {
			continue
		}
		detail := ""
		switch {
		case res.Err != nil:
			detail = res.Err.Error()
		case res.SkipReason != "":
			detail = res.SkipReason
		}
		rows = append(rows, []string{
			res.StepID,
			string(res.Status),
			fmt.Sprintf("%d", res.Attempts),
			res.Duration.Round(displayDurationUnit).String(),
			detail,
		})
	}
	return renderTable(
		[]string{"Step", "Status", "Attempts", "Duration", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}
