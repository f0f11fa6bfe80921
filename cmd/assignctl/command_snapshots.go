package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var snapshotsCmd = &cobra.Command{
	Use:     "snapshots",
	Aliases: []string{"snapshot"},
	Short:   "List saved snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(s *session) error {
			store := s.snapshotStore()
			entries, err := store.List()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Printf("No snapshots in %s\n", store.Dir)
				return nil
			}

			fmt.Printf("Snapshots in %s:\n", store.Dir)
			for _, entry := range entries {
				fmt.Printf("  %s  %s  %d apps\n", entry.TakenAt.Local().Format("2006-01-02 15:04:05"), entry.ID, entry.Apps)
			}
			fmt.Println("\nRun 'assignctl restore -s <id>' to restore one")
			return nil
		})
	},
}

func registerSnapshotsCommand(root *cobra.Command) {
	root.AddCommand(snapshotsCmd)
}
