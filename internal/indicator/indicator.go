// Package indicator computes derived series over OHLC data.
//
// Streaming indicators implement Indicator and consume one close at a time;
// batch helpers such as ComputeSMA drive them over a whole base series and
// return a fresh slice on every call.
package indicator

// Indicator is the interface for streaming indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA_20").
	Name() string

	// Update feeds the next close price.
	Update(closePrice float64)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool

	// Reset clears all accumulated state.
	Reset()
}
