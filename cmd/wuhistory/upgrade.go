package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kon-rad/wuhistory/internal/app"
	"github.com/kon-rad/wuhistory/internal/db"
)

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Migrate the history store to the current schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := app.OpenRepository(cmd.Context(), cfg, logger, false)
		if err != nil {
			return err
		}
		defer repo.Close()

		out := cmd.OutOrStdout()
		required, err := repo.RequiresUpgrade(cmd.Context())
		if err != nil {
			return err
		}
		if !required {
			fmt.Fprintln(out, "History store is up to date")
			return nil
		}

		err = repo.Upgrade(cmd.Context(), func(p db.Progress) {
			fmt.Fprintf(out, "[%3d%%] %s\n", p.Percent, p.Message)
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Upgraded %s to schema %s\n", repo.Path(), db.CurrentVersion)
		return nil
	},
}
