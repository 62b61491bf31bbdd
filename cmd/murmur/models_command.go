package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"murmur/internal/bridge"
)

func newModelsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List available transcription models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			br := bridge.New(cfg, bridge.WithLogger(ctx.ensureLogger()))
			defer br.Terminate()

			models, err := br.ListModels(cmd.Context())
			if err != nil {
				return err
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, models)
			}

			if len(models) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No models reported by the worker")
				return nil
			}
			rows := make([][]string, 0, len(models))
			for _, model := range models {
				languages := strings.Join(model.Languages, ", ")
				if len(model.Languages) > 6 {
					languages = fmt.Sprintf("%d languages", len(model.Languages))
				}
				rows = append(rows, []string{model.Name, model.Size, model.Description, languages})
			}
			table := renderTable(
				[]string{"Model", "Size", "Description", "Languages"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft},
			)
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}
}
