package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kon-rad/wuhistory/internal/app"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove a history record by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid id %q", args[0])
		}
		repo, err := app.OpenRepository(cmd.Context(), cfg, logger, cfg.AutoUpgrade)
		if err != nil {
			return err
		}
		defer repo.Close()

		n, err := repo.Delete(cmd.Context(), id)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("record %d not found", id)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted record %d\n", id)
		return nil
	},
}
