package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sourceplane/assignctl/internal/expand"
	"github.com/sourceplane/assignctl/internal/model"
	"github.com/sourceplane/assignctl/internal/remote"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a bulk assignment request",
	Long:  "Check a request against its schema, normalize it and build the assignment matrix. With --online every group and app is also looked up in Graph.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(s *session) error {
			return validateRequest(cmd, s)
		})
	},
}

func registerValidateCommand(root *cobra.Command) {
	root.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&requestFile, "file", "f", "", "Bulk assignment request file path")
	validateCmd.Flags().BoolVar(&onlineCheck, "online", false, "Resolve every group and app in Graph")
	validateCmd.MarkFlagRequired("file")
}

func validateRequest(cmd *cobra.Command, s *session) error {
	fmt.Println("□ Validating request...")
	normalized, err := s.loadRequest(requestFile)
	if err != nil {
		return err
	}
	fmt.Println("✓ Request is valid")

	fmt.Println("□ Building assignment matrix...")
	matrix, err := expand.FromNormalized(normalized).Expand()
	if err != nil {
		return fmt.Errorf("failed to build matrix: %w", err)
	}
	fmt.Printf("✓ %d groups × %d apps = %d assignments (%s)\n", len(matrix.Groups), len(matrix.Apps), matrix.Len(), matrix.Intent)

	if !onlineCheck {
		fmt.Println("✓ All validation passed")
		return nil
	}

	client, err := s.graphClient()
	if err != nil {
		return err
	}

	fmt.Println("□ Resolving groups and apps...")
	var missing []error
	for _, group := range matrix.Groups {
		resolved, err := client.GetGroup(cmd.Context(), group.ID)
		if err := lookupError("group", group.ID, err); err != nil {
			missing = append(missing, err)
			continue
		}
		fmt.Printf("  ✓ group %s (%s)\n", resolved.ID, resolved.DisplayName)
	}
	for _, app := range matrix.Apps {
		resolved, err := client.GetApp(cmd.Context(), app.ID)
		if err := lookupError("app", app.ID, err); err != nil {
			missing = append(missing, err)
			continue
		}
		fmt.Printf("  ✓ app %s (%s, %s)\n", resolved.ID, resolved.DisplayName, resolved.AppType)
	}
	if len(missing) > 0 {
		for _, err := range missing {
			fmt.Printf("  ✗ %v\n", err)
		}
		return fmt.Errorf("%d references could not be resolved", len(missing))
	}

	fmt.Println("✓ All validation passed")
	return nil
}

// lookupError keeps not-found lookups per reference and aborts on anything else
func lookupError(what, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, remote.ErrNotFound) {
		return &model.InvalidInputError{Field: what, Reason: fmt.Sprintf("%s %s does not exist", what, id)}
	}
	return fmt.Errorf("failed to resolve %s %s: %w", what, id, err)
}
