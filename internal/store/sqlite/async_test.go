package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"candleview/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingJournal holds every write until release is closed.
type blockingJournal struct {
	release chan struct{}
	mu      sync.Mutex
	loads   int
}

func (b *blockingJournal) RecordLoad(context.Context, model.LoadRecord) error {
	<-b.release
	b.mu.Lock()
	b.loads++
	b.mu.Unlock()
	return nil
}

func (b *blockingJournal) RecordOverlay(context.Context, model.OverlayRecord) error { return nil }

func TestAsyncWriter_WritesThrough(t *testing.T) {
	w, r := openJournal(t)
	a := NewAsyncWriter(w, 16)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, a.RecordLoad(ctx, model.LoadRecord{ID: "L1", Session: "s", Source: "f", At: at}))
	require.NoError(t, a.RecordOverlay(ctx, model.OverlayRecord{
		ID: "O1", Session: "s", Op: "draw", Result: "ok", Config: model.DefaultIndicatorConfig(), At: at,
	}))
	require.NoError(t, a.Close())

	assert.Equal(t, int64(2), a.Written())
	loads, err := r.RecentLoads(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, loads, 1)
	overlays, err := r.RecentOverlays(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, overlays, 1)

	assert.ErrorIs(t, a.RecordLoad(ctx, model.LoadRecord{ID: "L2"}), ErrClosed)
}

func TestAsyncWriter_FullQueueDrops(t *testing.T) {
	b := &blockingJournal{release: make(chan struct{})}
	a := NewAsyncWriter(b, 2)
	ctx := context.Background()

	var full int
	for i := 0; i < 10; i++ {
		if err := a.RecordLoad(ctx, model.LoadRecord{ID: fmt.Sprint(i)}); err != nil {
			assert.ErrorIs(t, err, ErrQueueFull)
			full++
		}
	}
	// At most two queued plus one held by the blocked drain.
	assert.GreaterOrEqual(t, full, 7)
	assert.Equal(t, uint64(full), a.Dropped())

	close(b.release)
	require.NoError(t, a.Close())
	assert.Equal(t, int64(10-full), a.Written())
}

// countingJournal counts loads without blocking.
type countingJournal struct {
	loads atomic.Int64
}

func (c *countingJournal) RecordLoad(context.Context, model.LoadRecord) error {
	c.loads.Add(1)
	return nil
}

func (c *countingJournal) RecordOverlay(context.Context, model.OverlayRecord) error { return nil }

func TestAsyncWriter_AcceptedRecordsSurviveClose(t *testing.T) {
	c := &countingJournal{}
	a := NewAsyncWriter(c, 4096)
	ctx := context.Background()

	var accepted atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			<-start
			for i := 0; i < 200; i++ {
				err := a.RecordLoad(ctx, model.LoadRecord{ID: fmt.Sprintf("%d-%d", g, i)})
				if err == nil {
					accepted.Add(1)
				} else if !errors.Is(err, ErrClosed) {
					t.Errorf("unexpected error: %v", err)
				}
			}
		}(g)
	}

	close(start)
	time.Sleep(time.Millisecond)
	require.NoError(t, a.Close())
	wg.Wait()

	assert.Equal(t, accepted.Load(), a.Written())
	assert.Equal(t, accepted.Load(), c.loads.Load())
	assert.Zero(t, a.Dropped())
}
