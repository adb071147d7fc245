package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	sqlitestore "candleview/internal/store/sqlite"

	"github.com/spf13/cobra"
)

func newJournalCmd() *cobra.Command {
	var dbPath string
	var limit int

	c := &cobra.Command{
		Use:   "journal",
		Short: "Query the chart journal",
		Long: `Query load and overlay history recorded by chartd in SQLite.

Subcommands:
  loads     - Recent load attempts
  overlays  - Recent overlay transitions`,
	}
	c.PersistentFlags().StringVarP(&dbPath, "db", "d", "data/chart.db", "path to SQLite journal DB")
	c.PersistentFlags().IntVarP(&limit, "limit", "n", 20, "rows to show")

	loads := &cobra.Command{
		Use:   "loads",
		Short: "List recent load attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := sqlitestore.NewReader(dbPath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer r.Close()

			recs, err := r.RecentLoads(context.Background(), limit)
			if err != nil {
				return fmt.Errorf("query loads: %w", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "AT\tSOURCE\tROWS\tACCEPTED\tSKIPPED\tAPPLIED\tERROR")
			for _, rec := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%t\t%s\n",
					rec.At.Format(time.RFC3339), rec.Source, rec.Stats.Rows, rec.Stats.Accepted,
					rec.Stats.Skipped, rec.Applied, rec.Error)
			}
			return tw.Flush()
		},
	}

	overlays := &cobra.Command{
		Use:   "overlays",
		Short: "List recent overlay transitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := sqlitestore.NewReader(dbPath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer r.Close()

			recs, err := r.RecentOverlays(context.Background(), limit)
			if err != nil {
				return fmt.Errorf("query overlays: %w", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "AT\tOP\tRESULT\tINDICATOR\tCOLOR\tWIDTH\tPOINTS\tERROR")
			for _, rec := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
					rec.At.Format(time.RFC3339), rec.Op, rec.Result, rec.Config.Name(),
					rec.Config.Color, rec.Config.Width, rec.Points, rec.Error)
			}
			return tw.Flush()
		},
	}

	c.AddCommand(loads, overlays)
	return c
}
