package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndicatorConfig_Validate(t *testing.T) {
	cases := []struct {
		name string
		cfg  IndicatorConfig
		ok   bool
	}{
		{"default", DefaultIndicatorConfig(), true},
		{"short hex", IndicatorConfig{Length: 1, Color: "#fff", Width: 10}, true},
		{"zero length", IndicatorConfig{Length: 0, Color: "#FF0000", Width: 1}, false},
		{"negative length", IndicatorConfig{Length: -3, Color: "#FF0000", Width: 1}, false},
		{"missing hash", IndicatorConfig{Length: 5, Color: "FF0000", Width: 1}, false},
		{"empty color", IndicatorConfig{Length: 5, Color: "", Width: 1}, false},
		{"width zero", IndicatorConfig{Length: 5, Color: "#FF0000", Width: 0}, false},
		{"width eleven", IndicatorConfig{Length: 5, Color: "#FF0000", Width: 11}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidParameter)
		})
	}
}

func TestIndicatorConfig_LineStyle(t *testing.T) {
	st := IndicatorConfig{Length: 9, Color: "#00FF00", Width: 3}.LineStyle()
	assert.Equal(t, "#00FF00", st.Color)
	assert.Equal(t, 3, st.LineWidth)
	assert.False(t, st.PriceLineVisible)
	assert.False(t, st.AxisLabelVisible)
	assert.False(t, st.CrosshairMarkerVisible)
}

func TestIndicatorConfig_Name(t *testing.T) {
	assert.Equal(t, "SMA_14", DefaultIndicatorConfig().Name())
}

func TestOHLCPoint_Finite(t *testing.T) {
	assert.True(t, OHLCPoint{Open: 1, High: 2, Low: 0.5, Close: 1.5}.Finite())
	assert.False(t, OHLCPoint{Open: math.NaN(), High: 2, Low: 1, Close: 1}.Finite())
	assert.False(t, OHLCPoint{Open: 1, High: math.Inf(1), Low: 1, Close: 1}.Finite())
}
