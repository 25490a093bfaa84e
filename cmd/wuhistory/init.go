package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kon-rad/wuhistory/internal/app"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the history store if it does not exist",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := app.OpenRepository(cmd.Context(), cfg, logger, false)
		if err != nil {
			return err
		}
		defer repo.Close()

		version, err := repo.GetDatabaseVersion(cmd.Context())
		if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		required, err := repo.RequiresUpgrade(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if required {
			fmt.Fprintf(out, "%s needs an upgrade (schema %q); run wuhistory upgrade\n", repo.Path(), version)
			return nil
		}
		fmt.Fprintf(out, "%s ready (schema %s)\n", repo.Path(), version)
		return nil
	},
}
