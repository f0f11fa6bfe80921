package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sourceplane/assignctl/internal/render"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List recorded runs, or show the results of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(s *session) error {
			repo, err := s.runHistory()
			if err != nil {
				return err
			}

			if len(args) == 1 {
				report, err := repo.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Println(render.ViewReport(report))
				return nil
			}

			runs, err := repo.List(cmd.Context(), historyLimit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded")
				return nil
			}

			fmt.Println("Runs:")
			for _, run := range runs {
				status := "ok"
				if run.Error != "" || run.Failed > 0 {
					status = "failed"
				}
				fmt.Printf("  %s  %-7s %s  %d succeeded, %d failed, %d skipped  [%s]\n",
					run.StartedAt.Local().Format("2006-01-02 15:04:05"), run.Kind, run.ID,
					run.Succeeded, run.Failed, run.Skipped, status)
			}
			fmt.Println("\nRun 'assignctl history <run-id>' for per-item results")
			return nil
		})
	},
}

func registerHistoryCommand(root *cobra.Command) {
	root.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to list (0 for all)")
}
