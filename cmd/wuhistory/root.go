package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kon-rad/wuhistory/internal/config"
	"github.com/kon-rad/wuhistory/internal/logging"
)

// Global flag values.
var (
	flagConfigFile string
	flagDBPath     string
	flagLogLevel   string
	flagBonusMode  string
	flagJSON       bool
)

// Set by PersistentPreRunE for every command except version and env.
var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "wuhistory",
	Short: "Work-unit history store",
	Long: `wuhistory keeps a deduplicated history of completed work units in a
SQLite file, migrates stores written by older releases and answers filter
queries over the stored history.

Settings come from flags, then WUH_* environment variables, then the optional
config file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "env" {
			return nil
		}
		loaded, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		// serve logs to stdout; other commands keep stdout for their output.
		setup := logging.Setup
		if cmd.Name() != "serve" {
			setup = func(level string) (*slog.Logger, error) {
				return logging.SetupWriter(level, cmd.ErrOrStderr())
			}
		}
		l, err := setup(loaded.LogLevel)
		if err != nil {
			return err
		}
		cfg, logger = loaded, l
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFile, "config", "", "config file (yaml)")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "history store path (WUH_DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (WUH_LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&flagBonusMode, "bonus", "", "bonus mode: DownloadTime, FrameTime or None (WUH_BONUS_MODE)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output as JSON")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(envCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(upgradeCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(importCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the wuhistory version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "wuhistory", version)
	},
}

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "List the environment variables and their defaults",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		config.WriteHelp(cmd.OutOrStdout(), version)
	},
}
