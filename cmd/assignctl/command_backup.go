package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sourceplane/assignctl/internal/snapshot"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Capture the current assignments of apps into a snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(s *session) error {
			eng, err := s.engine(io.Discard, true)
			if err != nil {
				return err
			}

			fmt.Printf("□ Reading current assignments of %d apps...\n", len(backupApps))
			snap, failures, err := eng.Backup(cmd.Context(), backupApps)
			if err != nil {
				return err
			}
			for _, failure := range failures {
				fmt.Printf("✗ App %s was not captured (%s): %s\n", failure.AppID, failure.Kind, failure.Message)
			}

			path := outputFile
			if path == "" {
				path, err = s.snapshotStore().Save(snap)
			} else {
				err = snapshot.WriteFile(path, snap)
			}
			if err != nil {
				return fmt.Errorf("failed to save snapshot: %w", err)
			}

			fmt.Printf("✓ Snapshot %s captured %d apps\n", snap.ID, len(snap.States))
			fmt.Printf("✓ Saved to: %s\n", path)
			if len(failures) > 0 {
				return fmt.Errorf("%d apps could not be captured", len(failures))
			}
			return nil
		})
	},
}

func registerBackupCommand(root *cobra.Command) {
	root.AddCommand(backupCmd)

	backupCmd.Flags().StringSliceVar(&backupApps, "app", nil, "App id to capture (repeatable)")
	backupCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Snapshot file path (default: the snapshot directory)")
	backupCmd.MarkFlagRequired("app")
}
