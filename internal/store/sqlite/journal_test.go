package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"candleview/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openJournal(t *testing.T) (*Writer, *Reader) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chart.db")
	w, err := New(WriterConfig{DBPath: path})
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	r, err := NewReader(path)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return w, r
}

func TestJournal_Loads(t *testing.T) {
	w, r := openJournal(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, w.RecordLoad(ctx, model.LoadRecord{
		ID: "01A", Session: "s1", Source: "stock_data.csv",
		Stats: model.LoadStats{Rows: 3, Accepted: 2, Skipped: 1}, Applied: true, At: base,
	}))
	require.NoError(t, w.RecordLoad(ctx, model.LoadRecord{
		ID: "01B", Session: "s1", Source: "http://x/stock_data.csv",
		Error: "fetch failure: 404", At: base.Add(time.Minute),
	}))

	got, err := r.RecentLoads(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "01B", got[0].ID)
	assert.False(t, got[0].Applied)
	assert.Equal(t, "fetch failure: 404", got[0].Error)
	assert.Equal(t, model.LoadStats{Rows: 3, Accepted: 2, Skipped: 1}, got[1].Stats)
	assert.True(t, got[1].Applied)
	assert.True(t, got[1].At.Equal(base))

	got, err = r.RecentLoads(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	assert.Error(t, w.RecordLoad(ctx, model.LoadRecord{ID: "01A", At: base}), "duplicate id")
}

func TestJournal_Overlays(t *testing.T) {
	w, r := openJournal(t)
	ctx := context.Background()

	empty, err := r.RecentOverlays(ctx, 10)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	cfg := model.IndicatorConfig{Length: 14, Color: "#FF0000", Width: 1}
	require.NoError(t, w.RecordOverlay(ctx, model.OverlayRecord{
		ID: "01C", Session: "s1", Op: "draw", Result: "ok", Config: cfg, Points: 87,
		SeriesID: "01S", At: time.Now().UTC(),
	}))

	got, err := r.RecentOverlays(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, cfg, got[0].Config)
	assert.Equal(t, 87, got[0].Points)
	assert.Equal(t, "01S", got[0].SeriesID)
}
