package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sourceplane/assignctl/internal/loader"
	"github.com/sourceplane/assignctl/internal/model"
	"github.com/sourceplane/assignctl/internal/render"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Snapshot the affected apps and apply a bulk assignment",
	Long:  "Apply a request (diffed against live state first) or a previously written plan. A snapshot of every app with changes is saved before anything is mutated.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if (requestFile == "") == (planFile == "") {
			return fmt.Errorf("exactly one of --file or --plan is required")
		}
		return withSession(func(s *session) error {
			return runApply(cmd, s)
		})
	},
}

func registerApplyCommand(root *cobra.Command) {
	root.AddCommand(applyCmd)

	applyCmd.Flags().StringVarP(&requestFile, "file", "f", "", "Bulk assignment request file path")
	applyCmd.Flags().StringVarP(&planFile, "plan", "p", "", "Path to plan file (json or yaml)")
	applyCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would change without mutating anything")
	applyCmd.Flags().StringVar(&reportFile, "report", "", "Write the run report to this file (json or yaml)")
}

func runApply(cmd *cobra.Command, s *session) error {
	ctx := cmd.Context()

	eng, err := s.engine(os.Stdout, dryRun)
	if err != nil {
		return err
	}

	var plan *model.DiffSet
	if planFile != "" {
		fmt.Println("□ Loading plan...")
		plan, err = loader.LoadPlan(planFile, s.validator)
		if err != nil {
			return fmt.Errorf("failed to load plan: %w", err)
		}
	} else {
		fmt.Println("□ Loading request...")
		normalized, err := s.loadRequest(requestFile)
		if err != nil {
			return err
		}
		fmt.Printf("□ Reading current assignments of %d apps...\n", len(normalized.Apps))
		plan, err = eng.DiffRequest(ctx, normalized)
		if err != nil {
			return fmt.Errorf("failed to diff against remote: %w", err)
		}
	}

	for _, failure := range plan.FetchFailures {
		fmt.Printf("✗ App %s was not read (%s) and is left unchanged\n", failure.AppID, failure.Kind)
	}
	if plan.Empty() {
		fmt.Println("✓ Nothing to change")
		return nil
	}

	if dryRun {
		fmt.Println("□ Dry-run mode enabled. No assignment will be changed.")
	} else {
		fmt.Printf("□ Snapshotting %d apps and applying %d changes...\n", len(plan.ChangedApps()), len(plan.Changes()))
	}

	report, runErr := eng.ApplyDiff(ctx, plan)
	if report == nil {
		return fmt.Errorf("failed to apply plan: %w", runErr)
	}
	return finishRun(report, runErr)
}

// finishRun prints and optionally writes the per-item report
func finishRun(report *model.RunReport, runErr error) error {
	fmt.Println("\n" + render.ViewReport(report))

	if reportFile != "" {
		if err := render.NewRenderer().WriteReport(report, reportFile); err != nil {
			return err
		}
		fmt.Printf("✓ Report saved to: %s\n", reportFile)
	}

	if err := reportError(report, runErr); err != nil {
		if report.SnapshotRef != "" {
			fmt.Printf("  Restore the previous state with: assignctl restore -s %s\n", report.SnapshotRef)
		}
		return err
	}

	if dryRun {
		fmt.Println("✓ Dry-run complete")
	} else {
		fmt.Println("✓ Run complete")
	}
	return nil
}
