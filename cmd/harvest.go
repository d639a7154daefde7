package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/kb-harvester/internal/budget"
	"github.com/sells-group/kb-harvester/internal/harvest"
)

var (
	harvestSector        string
	harvestTarget        int
	harvestMaxWeb        int
	harvestMinConfidence int
	harvestQueryStart    int
	harvestAllReset      bool
)

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Harvest one sector from web search",
	Long:  "Runs the harvest state machine for one sector until its target is met or a budget, rate limit or low-yield stop ends the run.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "harvest")
		if err != nil {
			return err
		}
		defer env.Close()

		if !env.Classifier.Valid(harvestSector) {
			return eris.Errorf("unknown sector %q (see `kb sectors`)", harvestSector)
		}

		h, err := initHarvester(env)
		if err != nil {
			return err
		}

		res := h.Run(ctx, harvest.Request{
			Sector:        harvestSector,
			Target:        harvestTarget,
			MaxWeb:        harvestMaxWeb,
			MinConfidence: harvestMinConfidence,
			Budget:        budget.New(time.Duration(cfg.Harvest.TimeBudgetSecs) * time.Second),
			QueryStart:    harvestQueryStart,
		})
		return printJSON(os.Stdout, res)
	},
}

var harvestAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Harvest every sector, resuming at the saved cursor",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "harvest")
		if err != nil {
			return err
		}
		defer env.Close()

		h, err := initHarvester(env)
		if err != nil {
			return err
		}

		perSector := time.Duration(cfg.Harvest.TimeBudgetSecs) * time.Second
		driver := harvest.NewDriver(h, env.Store, env.Classifier.Sectors(), perSector)

		res, err := driver.RunAll(ctx, harvest.AllRequest{
			Target:        harvestTarget,
			MaxWeb:        harvestMaxWeb,
			MinConfidence: harvestMinConfidence,
			Budget:        budget.New(time.Duration(cfg.Harvest.AllTimeBudgetSecs) * time.Second),
			Reset:         harvestAllReset,
		})
		if err != nil {
			return err
		}

		zap.L().Info("harvest all finished",
			zap.Bool("complete", res.Complete),
			zap.Int("next_sector", res.NextSector),
			zap.String("stop_reason", res.StopReason),
		)
		return printJSON(os.Stdout, res)
	},
}

func init() {
	for _, c := range []*cobra.Command{harvestCmd, harvestAllCmd} {
		c.Flags().IntVar(&harvestTarget, "target", 0, "records wanted per sector (default from config)")
		c.Flags().IntVar(&harvestMaxWeb, "max-web", 0, "maximum search results fetched per sector (default from config)")
		c.Flags().IntVar(&harvestMinConfidence, "min-confidence", 0, "minimum confidence to accept a hit (default from config)")
	}
	harvestCmd.Flags().StringVar(&harvestSector, "sector", "", "sector to harvest (required)")
	harvestCmd.Flags().IntVar(&harvestQueryStart, "query-start", 0, "query template index to resume at")
	_ = harvestCmd.MarkFlagRequired("sector")

	harvestAllCmd.Flags().BoolVar(&harvestAllReset, "reset", false, "ignore the saved cursor and start at the first sector")

	harvestCmd.AddCommand(harvestAllCmd)
	rootCmd.AddCommand(harvestCmd)
}
