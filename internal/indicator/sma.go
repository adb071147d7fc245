package indicator

import (
	"fmt"
	"strconv"

	"candleview/internal/model"

	"github.com/shopspring/decimal"
)

var _ Indicator = (*SMA)(nil)

// maxPrealloc caps the buffer capacity reserved up front. Longer windows
// grow the buffer as closes arrive.
const maxPrealloc = 4096

// SMA calculates Simple Moving Average over a rolling window.
// Closes are kept in a circular buffer and the window sum is carried in
// exact decimal arithmetic, so adding the newest close and subtracting the
// oldest never accumulates rounding error.
type SMA struct {
	period  int
	buf     []decimal.Decimal // circular buffer, grows until it holds period closes
	idx     int               // current write position
	count   int               // total values received
	sum     decimal.Decimal
	current float64
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) (*SMA, error) {
	if period < 1 {
		return nil, fmt.Errorf("%w: sma length must be >= 1, got %d", model.ErrInvalidParameter, period)
	}
	return &SMA{
		period: period,
		buf:    make([]decimal.Decimal, 0, min(period, maxPrealloc)),
	}, nil
}

func (s *SMA) Name() string { return "SMA_" + strconv.Itoa(s.period) }

// Update feeds a close. Callers guarantee the value is finite.
func (s *SMA) Update(closePrice float64) {
	price := decimal.NewFromFloat(closePrice)

	if s.count >= s.period {
		// Subtract the oldest value being overwritten
		s.sum = s.sum.Sub(s.buf[s.idx])
		s.buf[s.idx] = price
	} else {
		s.buf = append(s.buf, price)
	}

	s.sum = s.sum.Add(price)
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum.InexactFloat64() / float64(s.period)
	}
}

func (s *SMA) Value() float64 { return s.current }
func (s *SMA) Ready() bool    { return s.count >= s.period }
func (s *SMA) Period() int    { return s.period }

// Reset clears the SMA state for reuse.
func (s *SMA) Reset() {
	s.idx = 0
	s.count = 0
	s.sum = decimal.Zero
	s.current = 0
	s.buf = s.buf[:0]
}

// ComputeSMA returns one point per full window of closes, stamped with the
// time of the window's last candle. The result has max(0, n-length+1)
// points; a length below 1 or a non-finite close fails with
// model.ErrInvalidParameter.
//
// Each value is the exact decimal window sum rounded to float64 and then
// divided by length. It can differ in the last bit from a float64 sum of
// the same window: closes 0.1 and 0.2 average to 0.15, not
// 0.15000000000000002.
func ComputeSMA(series []model.OHLCPoint, length int) ([]model.IndicatorPoint, error) {
	if length < 1 {
		return nil, fmt.Errorf("%w: sma length must be >= 1, got %d", model.ErrInvalidParameter, length)
	}
	if length > len(series) {
		return []model.IndicatorPoint{}, nil
	}
	sma, err := NewSMA(length)
	if err != nil {
		return nil, err
	}

	out := make([]model.IndicatorPoint, 0, len(series)-length+1)
	for i, p := range series {
		if !p.Finite() {
			return nil, fmt.Errorf("%w: non-finite price at index %d", model.ErrInvalidParameter, i)
		}
		sma.Update(p.Close)
		if sma.Ready() {
			out = append(out, model.IndicatorPoint{Time: p.Time, Value: sma.Value()})
		}
	}
	return out, nil
}
