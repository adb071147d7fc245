package cmd

import (
	"context"
	"encoding/json"

	"candleview/internal/chart"
	"candleview/internal/model"
	"candleview/internal/source"
	"candleview/internal/surface"

	"github.com/spf13/cobra"
)

type simulateOutput struct {
	Session string                `json:"session"`
	Stats   model.LoadStats       `json:"stats"`
	Overlay string                `json:"overlay"`
	Width   int                   `json:"width"`
	Height  int                   `json:"height"`
	Live    []surface.SeriesState `json:"live"`
}

func newSimulateCmd() *cobra.Command {
	cfg := model.DefaultIndicatorConfig()
	var width, height int
	var noOverlay bool

	c := &cobra.Command{
		Use:   "simulate <file>",
		Short: "Load a document into an in-memory chart and print its drawables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := delimiterRune()
			if err != nil {
				return err
			}
			container := surface.NewContainer("chartctl", width, height, nil)
			session := chart.New(chart.Config{Delimiter: d})
			if err := session.Initialize(container); err != nil {
				return err
			}
			defer session.Teardown()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			stats, err := session.Load(ctx, source.File{Path: args[0]})
			if err != nil {
				return err
			}
			if !noOverlay {
				if err := session.DrawOverlay(cfg); err != nil {
					return err
				}
			}

			s := container.Surface()
			w, h := s.Size()
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(simulateOutput{
				Session: session.ID(),
				Stats:   stats,
				Overlay: session.OverlayState().String(),
				Width:   w,
				Height:  h,
				Live:    s.Live(),
			})
		},
	}
	c.Flags().IntVarP(&cfg.Length, "length", "l", cfg.Length, "averaging period")
	c.Flags().StringVarP(&cfg.Color, "color", "c", cfg.Color, "overlay color (#RRGGBB)")
	c.Flags().IntVarP(&cfg.Width, "width", "w", cfg.Width, "overlay line width (1-10)")
	c.Flags().IntVar(&width, "chart-width", 800, "chart width")
	c.Flags().IntVar(&height, "chart-height", 600, "chart height")
	c.Flags().BoolVar(&noOverlay, "no-overlay", false, "skip drawing the moving average")
	return c
}
