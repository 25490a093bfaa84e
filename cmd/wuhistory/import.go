package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kon-rad/wuhistory/internal/app"
	"github.com/kon-rad/wuhistory/internal/ingest"
)

var importStrict bool

var importCmd = &cobra.Command{
	Use:   "import <file>...",
	Short: "Load completion events from JSON-lines files",
	Long: `Import reads one completion event per line from each file and inserts it
into the history store. Units already present are skipped. Invalid lines are
counted and skipped unless --strict is set.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := app.OpenRepository(cmd.Context(), cfg, logger, cfg.AutoUpgrade)
		if err != nil {
			return err
		}
		defer repo.Close()

		im := ingest.NewImporter(logger, repo, cfg.ImportConcurrency)
		im.Strict = importStrict
		res, err := im.Import(cmd.Context(), args...)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if flagJSON {
			return json.NewEncoder(out).Encode(res)
		}
		fmt.Fprintf(out, "Files: %d  Lines: %d  Inserted: %d  Duplicates: %d  Invalid: %d\n",
			res.Files, res.Lines, res.Inserted, res.Duplicates, res.Invalid)
		return nil
	},
}

func init() {
	importCmd.Flags().BoolVar(&importStrict, "strict", false, "fail on the first invalid line")
}
