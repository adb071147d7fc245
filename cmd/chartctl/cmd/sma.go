package cmd

import (
	"fmt"
	"strconv"

	"candleview/internal/indicator"
	"candleview/internal/model"

	"github.com/spf13/cobra"
)

func newSMACmd() *cobra.Command {
	var length int
	c := &cobra.Command{
		Use:   "sma <file>",
		Short: "Print the simple moving average of closing prices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			points, _, err := loadFile(args[0])
			if err != nil {
				return err
			}
			sma, err := indicator.ComputeSMA(points, length)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range sma {
				fmt.Fprintf(out, "%s,%s\n", p.Time, strconv.FormatFloat(p.Value, 'f', -1, 64))
			}
			return nil
		},
	}
	c.Flags().IntVarP(&length, "length", "l", model.DefaultMALength, "averaging period")
	return c
}
