// File: cmd/validate.go
package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/verify-cli/internal/scenario"
)

func newValidateCmd() *cobra.Command {
	var (
		builtin string
		asYAML  bool
	)

	validateCmd := &cobra.Command{
		Use:   "validate [scenario.yaml...]",
		Short: "Parse scenarios and print their steps without launching a browser",
		RunE: func(cmd *cobra.Command, args []string) error {
			scenarios, err := loadScenarios(args, builtin)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i, sc := range scenarios {
				if i > 0 {
					fmt.Fprintln(out)
				}
				if asYAML {
					data, err := scenario.Marshal(sc)
					if err != nil {
						return err
					}
					if len(scenarios) > 1 {
						fmt.Fprintln(out, "---")
					}
					if _, err := out.Write(data); err != nil {
						return err
					}
					continue
				}
				printScenario(out, sc)
			}
			return nil
		},
	}

	validateCmd.Flags().StringVar(&builtin, "scenario", scenario.PartialSettleName, "built-in scenario to print when no files are given")
	validateCmd.Flags().BoolVar(&asYAML, "yaml", false, "print the normalized scenario file instead of a step list")
	return validateCmd
}

func printScenario(out io.Writer, sc scenario.Scenario) {
	target := sc.TargetURL()
	if target == "" {
		target = "(runner.target_url)"
	}
	fmt.Fprintf(out, "scenario %s: %d step(s), target %s\n", sc.Name(), sc.Len(), target)
	if !sc.StartsWithNavigate() {
		fmt.Fprintln(out, "  (navigate <target> is run first)")
	}
	for i, step := range sc.Steps() {
		fmt.Fprintf(out, "  %2d. %s\n", i+1, step)
	}
}
