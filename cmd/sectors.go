package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/kb-harvester/internal/sector"
)

var sectorsJSON bool

var sectorsCmd = &cobra.Command{
	Use:   "sectors",
	Short: "List the sector vocabulary and its query templates",
	RunE: func(_ *cobra.Command, _ []string) error {
		c, err := sector.Load(cfg.Harvest.RulesPath)
		if err != nil {
			return err
		}

		if sectorsJSON {
			out := make(map[string][]string, len(c.Sectors()))
			for _, s := range c.Sectors() {
				out[s] = c.Queries(s)
			}
			return printJSON(os.Stdout, out)
		}

		for _, s := range c.Sectors() {
			fmt.Println(s)
			for _, q := range c.Queries(s) {
				fmt.Printf("  %s\n", strings.TrimSpace(q))
			}
		}
		return nil
	},
}

func init() {
	sectorsCmd.Flags().BoolVar(&sectorsJSON, "json", false, "print as JSON")
	rootCmd.AddCommand(sectorsCmd)
}
