package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"galleria/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var pruneDays int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently finished galleries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg.HistoryPath())
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if pruneDays > 0 {
				cutoff := time.Now().AddDate(0, 0, -pruneDays)
				removed, err := store.Prune(cmd.Context(), cutoff)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Pruned %d entries older than %d days\n", removed, pruneDays)
			}

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No galleries downloaded yet")
				return nil
			}
			table := renderTable(
				[]string{"Finished", "Title", "Items", "Failed", "Stalls", "Resumed", "Duration"},
				buildHistoryRows(entries),
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignRight},
			)
			fmt.Fprint(out, table)
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	cmd.Flags().IntVar(&pruneDays, "prune-days", 0, "Delete entries older than this many days first")
	return cmd
}

func buildHistoryRows(entries []history.Entry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.FinishedAt.Local().Format("2006-01-02 15:04"),
			e.Title,
			strconv.Itoa(e.Items),
			strconv.Itoa(e.Failed),
			strconv.Itoa(e.StallRetries),
			yesNo(e.Resumed),
			e.Duration().Round(time.Second).String(),
		})
	}
	return rows
}
