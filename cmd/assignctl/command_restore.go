package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sourceplane/assignctl/internal/render"
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore the assignments recorded in a snapshot",
	Long:  "Restore every app of a snapshot to its recorded assignments. Only groups that appear in the snapshot are touched.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(s *session) error {
			ctx := cmd.Context()

			fmt.Println("□ Loading snapshot...")
			snap, err := s.snapshotStore().Load(snapshotRef)
			if err != nil {
				return err
			}

			eng, err := s.engine(os.Stdout, dryRun)
			if err != nil {
				return err
			}

			if dryRun {
				plan, err := eng.PlanRestore(ctx, snap)
				if err != nil {
					return fmt.Errorf("failed to plan restore: %w", err)
				}
				fmt.Println("\n" + render.NewPlanViewer(plan).ViewTree(false))
				fmt.Println("✓ Dry-run complete")
				return nil
			}

			fmt.Printf("□ Restoring %d apps from snapshot %s taken %s...\n", len(snap.States), snap.ID, snap.TakenAt.Format("2006-01-02 15:04:05 MST"))
			report, runErr := eng.Restore(ctx, snap)
			if report == nil {
				return fmt.Errorf("failed to restore snapshot: %w", runErr)
			}
			return finishRun(report, runErr)
		})
	},
}

func registerRestoreCommand(root *cobra.Command) {
	root.AddCommand(restoreCmd)

	restoreCmd.Flags().StringVarP(&snapshotRef, "snapshot", "s", "", "Snapshot file path or id")
	restoreCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the restore plan without applying it")
	restoreCmd.Flags().StringVar(&reportFile, "report", "", "Write the run report to this file (json or yaml)")
	restoreCmd.MarkFlagRequired("snapshot")
}
