package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/kb-harvester/internal/backfill"
	"github.com/sells-group/kb-harvester/internal/budget"
)

var (
	backfillDryRun    bool
	backfillBatchSize int
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Repair passes over existing records",
}

var backfillGeoCmd = &cobra.Command{
	Use:   "geo",
	Short: "Resolve the region of records whose region is invalid",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "backfill")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := backfill.RepairGeography(ctx, env.Store, backfillOptions())
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, res)
	},
}

var backfillSectorsCmd = &cobra.Command{
	Use:   "sectors",
	Short: "Classify records that have no valid sector",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "backfill")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := backfill.BackfillSectors(ctx, env.Store, env.Classifier, backfillOptions())
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, res)
	},
}

func backfillOptions() backfill.Options {
	return backfill.Options{
		Load:      loadOpts(),
		Budget:    budget.New(time.Duration(cfg.Harvest.AllTimeBudgetSecs) * time.Second),
		DryRun:    backfillDryRun,
		BatchSize: backfillBatchSize,
	}
}

func init() {
	for _, c := range []*cobra.Command{backfillGeoCmd, backfillSectorsCmd} {
		c.Flags().BoolVar(&backfillDryRun, "dry-run", false, "report changes without writing")
		c.Flags().IntVar(&backfillBatchSize, "batch-size", backfill.DefaultBatchSize, "records between progress logs")
		backfillCmd.AddCommand(c)
	}
	rootCmd.AddCommand(backfillCmd)
}
