package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sourceplane/assignctl/internal/config"
)

var (
	configFile   string
	logLevel     string
	logFormat    string
	requestFile  string
	planFile     string
	outputFile   string
	viewPlan     string
	debugMode    bool
	dryRun       bool
	reportFile   string
	snapshotRef  string
	backupApps   []string
	onlineCheck  bool
	historyLimit int

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "assignctl",
	Short:         "Group-first bulk app assignment: Request → Plan → Apply",
	Long:          "assignctl reconciles Intune app assignments for a set of groups and apps, snapshotting state before every change so it can be restored",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.LogLevel = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			loaded.LogFormat = logFormat
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("Config file (default %s)", config.DefaultPath()))
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug/info/warn/error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text/json)")

	registerPlanCommand(rootCmd)
	registerApplyCommand(rootCmd)
	registerBackupCommand(rootCmd)
	registerRestoreCommand(rootCmd)
	registerValidateCommand(rootCmd)
	registerSnapshotsCommand(rootCmd)
	registerHistoryCommand(rootCmd)
}
