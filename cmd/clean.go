package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/kb-harvester/internal/kb"
)

var cleanDryRun bool

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Knowledge-base hygiene commands",
}

var cleanCorruptCmd = &cobra.Command{
	Use:   "corrupt",
	Short: "Delete records with an empty domain or an invalid website",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := kb.RemoveCorrupted(ctx, env.Store, loadOpts(), cleanDryRun)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, res)
	},
}

func init() {
	cleanCorruptCmd.Flags().BoolVar(&cleanDryRun, "dry-run", false, "list corrupted records without deleting")
	cleanCmd.AddCommand(cleanCorruptCmd)
	rootCmd.AddCommand(cleanCmd)
}
