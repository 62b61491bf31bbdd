package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"murmur/internal/deps"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check external tool availability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			results := deps.Check(cfg)
			if ctx.jsonOutput() {
				return writeJSON(cmd, results)
			}

			rows := make([][]string, 0, len(results))
			missingRequired := false
			for _, status := range results {
				rows = append(rows, []string{
					status.Name,
					colorizeAvailable(status.Available),
					yesNo(!status.Optional),
					status.Detail,
				})
				if !status.Available && !status.Optional {
					missingRequired = true
				}
			}
			table := renderTable(
				[]string{"Dependency", "Available", "Required", "Detail"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			)
			fmt.Fprintln(cmd.OutOrStdout(), table)
			if missingRequired {
				return fmt.Errorf("required dependencies missing")
			}
			return nil
		},
	}
}
