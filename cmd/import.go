package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/kb-harvester/internal/dataset"
	"github.com/sells-group/kb-harvester/internal/fetcher"
	"github.com/sells-group/kb-harvester/internal/kb"
)

var (
	importURL     string
	importDryRun  bool
	importBatchID string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Merge a curated master file into the knowledge base",
	Long:  "Loads a CSV, XLSX or JSON master file (optionally zipped) from a local path, http(s) or ftp URL and merges it by domain.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		f := fetcher.New(fetcher.OptionsFromConfig(cfg.Fetcher))
		data, err := dataset.Load(ctx, f, importURL)
		if err != nil {
			return eris.Wrap(err, "import: load master file")
		}

		batchID := importBatchID
		if batchID == "" {
			batchID = uuid.New().String()
		}

		res, err := kb.Import(ctx, env.Store, data.Records, kb.ImportOptions{
			Load:            loadOpts(),
			DryRun:          importDryRun,
			BatchID:         batchID,
			MaxErrorDetails: cfg.Harvest.MaxErrorDetails,
		})
		if err != nil {
			return err
		}

		zap.L().Info("import complete",
			zap.String("url", importURL),
			zap.String("batch_id", batchID),
			zap.Int("rows", data.Rows),
			zap.Int("unparsed", data.Skipped),
		)
		return printJSON(os.Stdout, res)
	},
}

func init() {
	importCmd.Flags().StringVar(&importURL, "url", "", "path or URL of the master file (required)")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "report what would change without writing")
	importCmd.Flags().StringVar(&importBatchID, "batch-id", "", "seed batch id stamped on created records (default random)")
	_ = importCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(importCmd)
}
