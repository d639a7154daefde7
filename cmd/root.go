package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/kb-harvester/internal/config"
)

var (
	cfg *config.Config

	logLevelOverride string
)

var rootCmd = &cobra.Command{
	Use:   "kb",
	Short: "Organization knowledge-base harvester",
	Long: `kb maintains a knowledge base of Québec organizations keyed by domain.

  harvest      search one sector (or all, with a resume cursor) and insert accepted hits
  purge        keep the best record per domain and delete the rest
  clean        remove corrupted records
  backfill     repair regions and fill missing sectors
  import       merge a curated master file (CSV, XLSX, JSON, ZIP)
  audit        report integrity problems without writing
  serve        expose records over a read-only HTTP API
  sectors      list the sector vocabulary

Configuration comes from config.yaml and KB_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		if logLevelOverride != "" {
			c.Log.Level = logLevelOverride
		}
		if err := config.InitLogger(c.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		cfg = c
		zap.L().Debug("kb: config loaded", zap.String("command", cmd.CommandPath()), zap.String("store", cfg.Store.Driver))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelOverride, "log-level", "", "override log.level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
