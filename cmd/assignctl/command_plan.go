package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sourceplane/assignctl/internal/model"
	"github.com/sourceplane/assignctl/internal/render"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Diff a bulk assignment request against live state and write the plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(s *session) error {
			return generatePlan(cmd, s)
		})
	},
}

func registerPlanCommand(root *cobra.Command) {
	root.AddCommand(planCmd)

	planCmd.Flags().StringVarP(&requestFile, "file", "f", "", "Bulk assignment request file path")
	planCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output plan file path, json or yaml (default plan.json)")
	planCmd.Flags().StringVarP(&viewPlan, "view", "v", "", "View plan (tree/all/app=ID)")
	planCmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug output")
	planCmd.MarkFlagRequired("file")
}

func generatePlan(cmd *cobra.Command, s *session) error {
	if outputFile == "" {
		outputFile = "plan.json"
	}

	fmt.Println("□ Loading request...")
	normalized, err := s.loadRequest(requestFile)
	if err != nil {
		return err
	}

	eng, err := s.engine(os.Stdout, true)
	if err != nil {
		return err
	}

	fmt.Printf("□ Reading current assignments of %d apps...\n", len(normalized.Apps))
	plan, err := eng.DiffRequest(cmd.Context(), normalized)
	if err != nil {
		return fmt.Errorf("failed to diff against remote: %w", err)
	}

	renderer := render.NewRenderer()
	if debugMode {
		fmt.Println("\n" + renderer.DebugDump(plan))
	}

	if err := renderer.WritePlan(plan, outputFile); err != nil {
		return fmt.Errorf("failed to write plan: %w", err)
	}

	counts := plan.Counts()
	fmt.Printf("✓ Plan generated: %d add, %d update, %d remove, %d unchanged\n",
		counts[model.OpAdd], counts[model.OpUpdate], counts[model.OpRemove], counts[model.OpNoop])
	if n := len(plan.FetchFailures); n > 0 {
		fmt.Printf("✗ %d apps could not be read and are left out of the plan\n", n)
	}
	fmt.Printf("✓ Saved to: %s\n", outputFile)

	if viewPlan != "" {
		viewer := render.NewPlanViewer(plan)
		var output string

		switch {
		case viewPlan == "all":
			output = viewer.ViewTree(true)
		case strings.HasPrefix(viewPlan, "app="):
			output = viewer.ViewByApp(strings.TrimPrefix(viewPlan, "app="))
		default:
			output = viewer.ViewTree(false)
		}

		fmt.Println("\n" + output)
	}

	return nil
}
