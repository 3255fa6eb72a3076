package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tradesim/internal/model"
	"tradesim/internal/simulation"
	sqlitestore "tradesim/internal/store/sqlite"
)

func newRunsCmd() *cobra.Command {
	var (
		dbPath string
		market string
	)
	cmd := &cobra.Command{
		Use:   "runs [RUN_ID]",
		Short: "List journaled runs, or the trades of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := sqlitestore.NewJournal(dbPath)
			if err != nil {
				return err
			}
			defer j.Close()
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				runs, err := j.Runs(cmd.Context())
				if err != nil {
					return err
				}
				for _, id := range runs {
					fmt.Fprintln(out, id)
				}
				return nil
			}

			trades, err := j.Trades(cmd.Context(), args[0], market)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tMARKET\tSTRATEGY\tDIR\tSTATE\tPROFIT")
			for _, t := range trades {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					t.ID, t.Market, t.Strategy, t.Direction, t.State(), t.Profit().StringFixed(5))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			s := simulation.Summarize(model.Market{Name: market}, trades)
			fmt.Fprintf(out, "\n%d trades, %d wins, %d losses, net profit %s\n", s.Trades, s.Wins, s.Losses, s.NetProfit.StringFixed(5))
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", getEnv("TRADESIM_DB", "data/tradesim.db"), "SQLite database path")
	cmd.Flags().StringVar(&market, "market", "", "only trades of this market")
	return cmd
}
