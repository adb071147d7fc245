package csvfeed

import (
	"math"
	"strconv"

	"candleview/internal/model"
)

// RawRow aliases the model type so callers of this package need one import.
type RawRow = model.RawRow

// Field positions within a row.
const (
	fieldTime = iota
	fieldOpen
	fieldHigh
	fieldLow
	fieldClose
	minFields
)

// Validate converts rows into OHLC points. A row is accepted when it has a
// time key and all four prices parse to finite numbers; anything else is
// dropped and counted in Skipped. Accepted rows keep their relative order.
// An input with no valid rows yields an empty, non-nil series.
func Validate(rows []RawRow) ([]model.OHLCPoint, model.LoadStats) {
	stats := model.LoadStats{Rows: len(rows)}
	points := make([]model.OHLCPoint, 0, len(rows))

	for _, row := range rows {
		p, ok := toPoint(row)
		if !ok {
			stats.Skipped++
			continue
		}
		points = append(points, p)
	}

	stats.Accepted = len(points)
	return points, stats
}

// Load runs Parse and Validate with the given parser.
func Load(p *Parser, text string) ([]model.OHLCPoint, model.LoadStats) {
	return Validate(p.Parse(text))
}

func toPoint(row RawRow) (model.OHLCPoint, bool) {
	if len(row.Fields) < minFields || row.Fields[fieldTime] == "" {
		return model.OHLCPoint{}, false
	}

	var prices [4]float64
	for i := fieldOpen; i <= fieldClose; i++ {
		v, ok := parsePrice(row.Fields[i])
		if !ok {
			return model.OHLCPoint{}, false
		}
		prices[i-fieldOpen] = v
	}

	return model.OHLCPoint{
		Time:  row.Fields[fieldTime],
		Open:  prices[0],
		High:  prices[1],
		Low:   prices[2],
		Close: prices[3],
	}, true
}

// parsePrice rejects empty, non-numeric, NaN and infinite fields.
func parsePrice(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
