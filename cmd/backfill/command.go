package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/spf13/cobra"

	"example.com/training/internal/backfill"
	"example.com/training/internal/config"
	httptransport "example.com/training/internal/transport/http"
)

// errRecordsFailed makes a one-shot run exit non-zero after the report has been printed.
var errRecordsFailed = errors.New("some workouts could not be scored")

type storeOpener func(ctx context.Context) (backfill.Store, func(), error)

type options struct {
	workers  int
	limit    int
	dryRun   bool
	watch    bool
	interval time.Duration
}

func newRootCmd(cfg config.Config, open storeOpener) *cobra.Command {
	opts := options{
		workers:  cfg.BackfillWorkers,
		interval: cfg.BackfillInterval,
	}

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Score stored workouts that have no points or category",
		Long: "Selects every workout whose points or category is missing, scores it with the\n" +
			"same rules used at creation time and saves both fields. Already scored workouts\n" +
			"are never touched, so the command is safe to rerun.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.workers < 1 {
				return fmt.Errorf("--workers must be >= 1, got %d", opts.workers)
			}
			if opts.watch && opts.interval <= 0 {
				return fmt.Errorf("--interval must be positive in watch mode")
			}

			store, closeStore, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			logger := log.New(cmd.ErrOrStderr(), "[backfill] ", log.LstdFlags)
			runner := backfill.NewRunner(store,
				backfill.WithWorkers(opts.workers),
				backfill.WithLimit(opts.limit),
				backfill.WithDryRun(opts.dryRun),
				backfill.WithLogger(logger),
			)

			if opts.watch {
				return watch(cmd.Context(), runner, cfg.MetricsAddress, opts.interval, logger)
			}
			return runOnce(cmd.Context(), runner, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&opts.workers, "workers", opts.workers, "number of workouts saved concurrently")
	flags.IntVar(&opts.limit, "limit", 0, "maximum workouts per run (0 = all)")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "compute scores and print the report without saving")
	flags.BoolVar(&opts.watch, "watch", false, "keep running and rescan every --interval")
	flags.DurationVar(&opts.interval, "interval", opts.interval, "rescan interval in watch mode")

	return cmd
}

func runOnce(ctx context.Context, runner *backfill.Runner, out io.Writer) error {
	report, err := runner.Run(ctx)
	if err != nil && report.Found == 0 {
		return err
	}
	if printErr := report.Print(out); printErr != nil {
		return printErr
	}
	if err != nil {
		return err
	}
	if report.Errors > 0 {
		return errRecordsFailed
	}
	return nil
}

func watch(ctx context.Context, runner *backfill.Runner, metricsAddress string, interval time.Duration, logger *log.Logger) error {
	metricsSrv := httptransport.NewMetricsServer(metricsAddress)
	httptransport.ListenInBackground(metricsSrv, "backfill metrics")
	defer httptransport.Shutdown(metricsSrv, 10*time.Second)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Printf("watching for unscored workouts every %s", interval)
	for {
		report, err := runner.Run(ctx)
		switch {
		case errors.Is(err, context.Canceled):
			return nil
		case err != nil:
			logger.Printf("run failed: %v", err)
		case report.Found > 0:
			logger.Printf("run complete: found=%d updated=%d errors=%d in %s",
				report.Found, report.Updated, report.Errors, report.Duration.Round(time.Millisecond))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
