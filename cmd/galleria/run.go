package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"galleria/internal/history"
	"galleria/internal/logging"
	"galleria/internal/orchestrator"
	"galleria/internal/services"
	"galleria/internal/status"
)

const runIDLayout = "20060102T150405.000Z"

func runGalleria(cmd *cobra.Command, ctx *commandContext, rawURL string) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := time.Now().UTC().Format(runIDLayout)
	runCtx = services.WithRunID(runCtx, runID)

	out := cmd.OutOrStdout()
	// The terminal view redraws in place, so console logging stays off while it is active.
	interactive := status.IsTerminal(out)
	logger, runLog, err := logging.NewFromConfig(cfg, runID, !interactive)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	logger = logger.With(logging.String(logging.FieldRunID, runID))
	if removed := logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, logging.RetentionTargets(cfg, runLog)...); removed > 0 {
		logger.Debug("old logs removed", logging.Int("count", removed))
	}

	opts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithRenderer(status.ForOutput(out, logger)),
	}
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		logging.WarnWithContext(logger, "history journal unavailable", "history_unavailable",
			logging.Error(err),
			logging.String(logging.FieldImpact, "finished galleries are not recorded for this run"),
			logging.String(logging.FieldErrorHint, "check "+cfg.HistoryPath()),
		)
	} else {
		defer store.Close()
		opts = append(opts, orchestrator.WithHistory(store))
	}

	outcome, err := orchestrator.New(cfg, opts...).Run(runCtx, rawURL)
	if err != nil {
		if runCtx.Err() != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "Interrupted; progress saved. Run galleria again to resume.")
			return runCtx.Err()
		}
		return err
	}

	switch outcome {
	case orchestrator.OutcomeQueued:
		fmt.Fprintln(out, "Another galleria is running; gallery added to the waiting list")
	case orchestrator.OutcomeAlreadyQueued:
		fmt.Fprintln(out, "Gallery is already on the waiting list")
	case orchestrator.OutcomeBusy:
		fmt.Fprintln(out, "Another galleria is already processing the waiting list")
	default:
		fmt.Fprintln(out, "All galleries downloaded")
	}
	return nil
}
