package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"galleria/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the engine binary, directories, and lock",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				state := "ok"
				switch {
				case !r.Passed && r.Optional:
					state = "warn"
				case !r.Passed:
					state = "FAIL"
				}
				rows = append(rows, []string{r.Name, state, r.Detail})
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderTable([]string{"Check", "Result", "Detail"}, rows, nil))
			fmt.Fprintln(out)
			return preflight.Err(results)
		},
	}
}
