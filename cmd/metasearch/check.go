package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"metasearch/internal/usecase/checker"
)

func newCheckCmd(global *globalOptions) *cobra.Command {
	var engines []string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the engine self-tests once and print the report",
		Long: `Run every engine's self-tests once and print the report as JSON.

Without --engine all enabled engines are checked. Named engines are
checked even when disabled. The command fails if any engine fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, global)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.newChecker(engines).Run(ctx)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if report.Status != checker.StatusOK {
				return fmt.Errorf("engine check %s", report.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&engines, "engine", "e", nil, "Engines to check (repeatable)")
	return cmd
}
