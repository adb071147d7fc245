package cmd

import (
	"fmt"
	"os"
	"unicode/utf8"

	"candleview/internal/csvfeed"
	"candleview/internal/model"

	"github.com/spf13/cobra"
)

var delimiter string

// NewRootCmd builds the chartctl command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "chartctl",
		Short: "Offline tools for candlestick chart documents",
		Long: `chartctl runs the chart pipeline without a server.

Commands:
  validate  - Parse a document and report accepted and skipped rows
  sma       - Print the simple moving average of a document's closes
  simulate  - Load a document into an in-memory chart and dump its state
  journal   - List recent loads and overlay changes from a SQLite journal

Examples:
  chartctl validate stock_data.csv
  chartctl sma stock_data.csv --length 20
  chartctl simulate stock_data.csv --length 5 --color "#00FF00" --width 2`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&delimiter, "delimiter", ",", "field separator (one character)")

	root.AddCommand(newValidateCmd(), newSMACmd(), newSimulateCmd(), newJournalCmd())
	return root
}

// Execute runs the root command against os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

func delimiterRune() (rune, error) {
	if utf8.RuneCountInString(delimiter) != 1 {
		return 0, fmt.Errorf("%w: delimiter must be one character, got %q", model.ErrInvalidParameter, delimiter)
	}
	r, _ := utf8.DecodeRuneInString(delimiter)
	return r, nil
}

// loadFile reads path and runs it through the parser and validator.
func loadFile(path string) ([]model.OHLCPoint, model.LoadStats, error) {
	d, err := delimiterRune()
	if err != nil {
		return nil, model.LoadStats{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.LoadStats{}, fmt.Errorf("read %s: %w", path, err)
	}
	points, stats := csvfeed.Load(csvfeed.NewParser(d), string(data))
	return points, stats, nil
}
