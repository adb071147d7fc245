package model

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Overlay defaults shown by the chart control panel.
const (
	DefaultMALength = 14
	DefaultMAColor  = "#FF0000"
	DefaultMAWidth  = 1
)

var validate = validator.New()

// IndicatorConfig is the user-owned moving average configuration.
type IndicatorConfig struct {
	Length int    `json:"length" yaml:"length" validate:"gte=1"`
	Color  string `json:"color" yaml:"color" validate:"required,hexcolor"`
	Width  int    `json:"width" yaml:"width" validate:"gte=1,lte=10"`
}

// DefaultIndicatorConfig returns a 14-period red line of width 1.
func DefaultIndicatorConfig() IndicatorConfig {
	return IndicatorConfig{
		Length: DefaultMALength,
		Color:  DefaultMAColor,
		Width:  DefaultMAWidth,
	}
}

// Validate checks the config against its allowed ranges. Failures wrap
// ErrInvalidParameter.
func (c IndicatorConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Errorf("%w: %s=%v fails %q", ErrInvalidParameter, fe.Field(), fe.Value(), fe.Tag())
	}
	return fmt.Errorf("%w: %v", ErrInvalidParameter, err)
}

// LineStyle returns the surface style for an overlay drawn with this config.
func (c IndicatorConfig) LineStyle() SeriesStyle {
	return SeriesStyle{
		Color:                  c.Color,
		LineWidth:              c.Width,
		PriceLineVisible:       false,
		AxisLabelVisible:       false,
		CrosshairMarkerVisible: false,
	}
}

// Name returns the overlay label, e.g. "SMA_14".
func (c IndicatorConfig) Name() string {
	return fmt.Sprintf("SMA_%d", c.Length)
}
