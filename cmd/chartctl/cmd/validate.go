package cmd

import (
	"fmt"
	"os"

	"candleview/internal/csvfeed"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	var verbose bool
	c := &cobra.Command{
		Use:   "validate <file>",
		Short: "Parse a document and report row counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := delimiterRune()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			rows := csvfeed.NewParser(d).Parse(string(data))
			points, stats := csvfeed.Validate(rows)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "rows=%d accepted=%d skipped=%d\n", stats.Rows, stats.Accepted, stats.Skipped)

			if verbose && stats.Skipped > 0 {
				for _, row := range rows {
					if _, s := csvfeed.Validate([]csvfeed.RawRow{row}); s.Skipped > 0 {
						fmt.Fprintf(out, "skipped line %d: %q\n", row.Line, row.Fields)
					}
				}
			}
			if len(points) > 0 {
				fmt.Fprintf(out, "range %s .. %s\n", points[0].Time, points[len(points)-1].Time)
			}
			return nil
		},
	}
	c.Flags().BoolVarP(&verbose, "verbose", "v", false, "list skipped lines")
	return c
}
