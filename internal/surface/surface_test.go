package surface

import (
	"errors"
	"sync"
	"testing"
	"time"

	"candleview/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSurface_CreateSetRemove(t *testing.T) {
	var cmds []Command
	s := New(model.DefaultSurfaceOptions(800, 600), func(c Command) { cmds = append(cmds, c) })

	base, err := s.CreateSeries(model.KindCandlestick, model.CandlestickStyle())
	require.NoError(t, err)
	require.NoError(t, base.SetData([]model.OHLCPoint{{Time: "2024-01-01", Open: 1, High: 2, Low: 0.5, Close: 1.5}}))

	line, err := s.CreateSeries(model.KindLine, model.DefaultIndicatorConfig().LineStyle())
	require.NoError(t, err)
	assert.Equal(t, 1, s.LiveCount(model.KindLine))

	require.NoError(t, s.RemoveSeries(line))
	assert.Equal(t, 0, s.LiveCount(model.KindLine))
	assert.Equal(t, 1, s.LiveCount(model.KindCandlestick))

	// A removed handle can neither be fed nor removed again.
	assert.ErrorIs(t, line.SetData([]model.IndicatorPoint{}), ErrUnknownSeries)
	assert.ErrorIs(t, s.RemoveSeries(line), ErrUnknownSeries)

	ops := make([]Op, len(cmds))
	for i, c := range cmds {
		ops[i] = c.Op
	}
	assert.Equal(t, []Op{OpCreateSurface, OpCreateSeries, OpSetData, OpCreateSeries, OpRemoveSeries}, ops)

	created, removed := s.Counts()
	assert.Equal(t, 2, created)
	assert.Equal(t, 1, removed)
}

func TestSurface_DataKindMismatch(t *testing.T) {
	s := New(model.DefaultSurfaceOptions(1, 1), nil)
	base, err := s.CreateSeries(model.KindCandlestick, model.CandlestickStyle())
	require.NoError(t, err)
	assert.Error(t, base.SetData([]model.IndicatorPoint{{Time: "a", Value: 1}}))
	assert.Error(t, base.SetData("nope"))

	_, err = s.CreateSeries("area", model.SeriesStyle{})
	assert.Error(t, err)
}

func TestSurface_DestroyAndSnapshot(t *testing.T) {
	s := New(model.DefaultSurfaceOptions(100, 50), nil)
	base, _ := s.CreateSeries(model.KindCandlestick, model.CandlestickStyle())
	_ = base.SetData([]model.OHLCPoint{{Time: "a", Open: 1, High: 1, Low: 1, Close: 1}})
	_, _ = s.CreateSeries(model.KindLine, model.SeriesStyle{Color: "#00ff00", LineWidth: 2})
	require.NoError(t, s.Resize(200, 80))

	snap := s.Snapshot()
	require.Len(t, snap, 4)
	assert.Equal(t, OpCreateSurface, snap[0].Op)
	assert.Equal(t, 200, snap[0].Width)
	assert.Equal(t, OpCreateSeries, snap[1].Op)
	assert.Equal(t, OpSetData, snap[2].Op)
	assert.Equal(t, model.KindLine, snap[3].Kind)

	require.NoError(t, s.Destroy())
	assert.True(t, s.Destroyed())
	assert.Empty(t, s.Live())
	assert.Nil(t, s.Snapshot())
	assert.True(t, errors.Is(s.Destroy(), ErrDestroyed))
	assert.ErrorIs(t, s.Resize(1, 1), ErrDestroyed)
	_, err := s.CreateSeries(model.KindLine, model.SeriesStyle{})
	assert.ErrorIs(t, err, ErrDestroyed)
}

func TestSurface_SnapshotWithHoldsBackSink(t *testing.T) {
	var mu sync.Mutex
	var seen []Op
	s := New(model.DefaultSurfaceOptions(10, 10), func(c Command) {
		mu.Lock()
		seen = append(seen, c.Op)
		mu.Unlock()
	})
	line, err := s.CreateSeries(model.KindLine, model.SeriesStyle{Color: "#000000", LineWidth: 1})
	require.NoError(t, err)
	sinkLen := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(seen)
	}

	done := make(chan error, 1)
	s.SnapshotWith(func(cmds []Command) {
		assert.Len(t, cmds, 2)
		go func() {
			done <- line.SetData([]model.IndicatorPoint{{Time: "a", Value: 1}})
		}()
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, 2, sinkLen())
	})

	require.NoError(t, <-done)
	assert.Equal(t, 3, sinkLen())
	assert.Equal(t, OpSetData, seen[2])
}

func TestContainer_ResizeSubscription(t *testing.T) {
	c := NewContainer("tvchart", 640, 480, nil)
	var got [][2]int
	unsub := c.OnResize(func(w, h int) { got = append(got, [2]int{w, h}) })
	assert.Equal(t, 1, c.Subscribers())

	c.SetDimensions(1024, 768)
	unsub()
	unsub()
	c.SetDimensions(1, 1)

	assert.Equal(t, [][2]int{{1024, 768}}, got)
	assert.Equal(t, 0, c.Subscribers())
	w, h := c.Dimensions()
	assert.Equal(t, 1, w)
	assert.Equal(t, 1, h)
}
