package model

import (
	"encoding/json"
	"math"
)

// RawRow is one delimited input line split into fields. Rows are produced for
// malformed lines too; validation decides what survives.
type RawRow struct {
	Line   int      // 1-based line number in the source document
	Fields []string // date/time, open, high, low, close
}

// OHLCPoint is one validated candle of the base series.
// Time is the raw time key handed to the surface unchanged
// ("2024-01-02", RFC3339 or unix seconds).
type OHLCPoint struct {
	Time  string  `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Finite reports whether all four prices are finite numbers.
func (p OHLCPoint) Finite() bool {
	for _, v := range [4]float64{p.Open, p.High, p.Low, p.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// IndicatorPoint is one value of a derived series.
type IndicatorPoint struct {
	Time  string  `json:"time"`
	Value float64 `json:"value"`
}

// LoadStats aggregates what happened to the rows of one document.
type LoadStats struct {
	Rows     int `json:"rows"`     // data rows seen (header excluded)
	Accepted int `json:"accepted"` // rows that became OHLC points
	Skipped  int `json:"skipped"`  // malformed rows dropped
}

// JSON returns the JSON-encoded stats (ignoring errors for log lines).
func (s LoadStats) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}
