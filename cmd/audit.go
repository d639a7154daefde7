package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/kb-harvester/internal/audit"
	"github.com/sells-group/kb-harvester/internal/dataset"
	"github.com/sells-group/kb-harvester/internal/fetcher"
)

var (
	auditReferenceURL string
	auditStrict       bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Report knowledge-base integrity (read-only)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "audit")
		if err != nil {
			return err
		}
		defer env.Close()

		refURL := auditReferenceURL
		if refURL == "" {
			refURL = cfg.Audit.ReferenceURL
		}
		var reference []string
		if refURL != "" {
			data, err := dataset.Load(ctx, fetcher.New(fetcher.OptionsFromConfig(cfg.Fetcher)), refURL)
			if err != nil {
				return eris.Wrap(err, "audit: load reference list")
			}
			reference = dataset.Domains(data.Records)
		}

		report, err := audit.Run(ctx, env.Store, loadOpts(), env.Classifier.Sectors(), reference)
		if err != nil {
			return err
		}
		if err := printJSON(os.Stdout, report); err != nil {
			return err
		}
		if auditStrict && !report.Clean() {
			return eris.New("audit found integrity problems")
		}
		return nil
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditReferenceURL, "reference-url", "", "path or URL of expected domains (default from config)")
	auditCmd.Flags().BoolVar(&auditStrict, "strict", false, "exit non-zero when the report is not clean")
	rootCmd.AddCommand(auditCmd)
}
