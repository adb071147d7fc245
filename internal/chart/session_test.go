package chart

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"candleview/internal/metrics"
	"candleview/internal/model"
	"candleview/internal/notification"
	"candleview/internal/overlay"
	"candleview/internal/source"
	"candleview/internal/surface"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioDoc = "Date,Open,High,Low,Close\n" +
	"2024-01-01,10,12,9,11\n" +
	"2024-01-02,11,13,10,12\n" +
	"2024-01-03,bad,13,10,12\n"

type fixture struct {
	session   *Session
	container *surface.Container
	rec       *notification.Recorder
	metrics   *metrics.Metrics
	health    *metrics.HealthStatus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		container: surface.NewContainer("chart", 800, 600, nil),
		rec:       &notification.Recorder{},
		metrics:   metrics.NewMetrics(),
		health:    metrics.NewHealthStatus(),
	}
	f.session = New(Config{Metrics: f.metrics, Health: f.health, Notifier: f.rec})
	return f
}

func (f *fixture) init(t *testing.T) *surface.Surface {
	t.Helper()
	require.NoError(t, f.session.Initialize(f.container))
	return f.container.Surface()
}

func closes(series []model.OHLCPoint) []float64 {
	out := make([]float64, len(series))
	for i, p := range series {
		out[i] = p.Close
	}
	return out
}

func TestInitialize(t *testing.T) {
	f := newFixture(t)
	surf := f.init(t)

	assert.True(t, f.session.Initialized())
	assert.Equal(t, overlay.Absent, f.session.OverlayState())
	assert.Empty(t, f.session.Series())
	assert.Equal(t, 1, surf.LiveCount(model.KindCandlestick))
	assert.Equal(t, 1, f.container.Subscribers())

	w, h := surf.Size()
	assert.Equal(t, 800, w)
	assert.Equal(t, 600, h)

	err := f.session.Initialize(f.container)
	assert.ErrorIs(t, err, model.ErrAlreadyInitialized)
	assert.Equal(t, 1, f.container.Subscribers())
}

func TestCallsBeforeInitialize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.session.LoadText(ctx, "doc", scenarioDoc)
	assert.ErrorIs(t, err, model.ErrUninitialized)
	assert.ErrorIs(t, f.session.DrawOverlay(model.DefaultIndicatorConfig()), model.ErrUninitialized)
	assert.ErrorIs(t, f.session.UpdateOverlay(model.DefaultIndicatorConfig()), model.ErrUninitialized)
	assert.ErrorIs(t, f.session.RemoveOverlay(), model.ErrUninitialized)
	assert.ErrorIs(t, f.session.Resize(10, 10), model.ErrUninitialized)
	assert.NoError(t, f.session.Teardown())

	assert.Contains(t, f.rec.Conditions(), notification.CondUninitialized)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LoadsTotal.WithLabelValues("uninitialized")))
}

func TestLoad_Scenario(t *testing.T) {
	f := newFixture(t)
	surf := f.init(t)

	stats, err := f.session.LoadText(context.Background(), "doc", scenarioDoc)
	require.NoError(t, err)
	assert.Equal(t, model.LoadStats{Rows: 3, Accepted: 2, Skipped: 1}, stats)
	assert.Equal(t, []float64{11, 12}, closes(f.session.Series()))
	assert.Contains(t, f.rec.Conditions(), notification.CondParseSkip)

	live := surf.Live()
	require.Len(t, live, 1)
	data, ok := live[0].Data.([]model.OHLCPoint)
	require.True(t, ok)
	assert.Len(t, data, 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.SeriesPoints))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RowsSkipped))
}

func TestLoad_FetchFailureKeepsSeries(t *testing.T) {
	f := newFixture(t)
	f.init(t)
	ctx := context.Background()

	_, err := f.session.LoadText(ctx, "doc", scenarioDoc)
	require.NoError(t, err)

	broken := source.Func{Label: "broken", Fn: func(context.Context) (string, error) {
		return "", errors.New("connection refused")
	}}
	_, err = f.session.Load(ctx, broken)
	assert.ErrorIs(t, err, model.ErrFetchFailure)
	assert.Equal(t, []float64{11, 12}, closes(f.session.Series()))
	assert.Contains(t, f.rec.Conditions(), notification.CondFetchFailure)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LoadsTotal.WithLabelValues("fetch_failure")))
}

func TestLoad_EmptyDocumentClearsSeries(t *testing.T) {
	f := newFixture(t)
	f.init(t)
	ctx := context.Background()

	_, err := f.session.LoadText(ctx, "doc", scenarioDoc)
	require.NoError(t, err)

	stats, err := f.session.LoadText(ctx, "empty", "Date,Open,High,Low,Close\n")
	require.NoError(t, err)
	assert.Zero(t, stats.Accepted)
	assert.Empty(t, f.session.Series())
}

func TestDrawOverlay_Twice_OneHandle(t *testing.T) {
	f := newFixture(t)
	surf := f.init(t)
	_, err := f.session.LoadText(context.Background(), "doc", scenarioDoc)
	require.NoError(t, err)

	require.NoError(t, f.session.DrawOverlay(model.IndicatorConfig{Length: 2, Color: "#FF0000", Width: 1}))
	require.NoError(t, f.session.DrawOverlay(model.IndicatorConfig{Length: 2, Color: "#0000FF", Width: 2}))

	assert.Equal(t, overlay.Active, f.session.OverlayState())
	assert.Equal(t, 1, surf.LiveCount(model.KindLine))
	h := f.session.OverlayHandle()
	require.NotNil(t, h)
	assert.Equal(t, "#0000FF", h.Config.Color)
	assert.Equal(t, 1, h.Points)
}

func TestDrawOverlay_EmptySeries(t *testing.T) {
	f := newFixture(t)
	f.init(t)

	err := f.session.DrawOverlay(model.DefaultIndicatorConfig())
	assert.ErrorIs(t, err, model.ErrEmptySeries)
	assert.Equal(t, overlay.Absent, f.session.OverlayState())
}

func TestLoad_RefreshesActiveOverlay(t *testing.T) {
	f := newFixture(t)
	surf := f.init(t)
	ctx := context.Background()

	_, err := f.session.LoadText(ctx, "doc", scenarioDoc)
	require.NoError(t, err)
	cfg := model.IndicatorConfig{Length: 2, Color: "#00FF00", Width: 1}
	require.NoError(t, f.session.DrawOverlay(cfg))

	longer := "Date,Open,High,Low,Close\n" +
		"d1,1,1,1,10\nd2,1,1,1,20\nd3,1,1,1,30\n"
	_, err = f.session.LoadText(ctx, "longer", longer)
	require.NoError(t, err)

	h := f.session.OverlayHandle()
	require.NotNil(t, h)
	assert.Equal(t, cfg, h.Config)
	assert.Equal(t, 2, h.Points)
	assert.Equal(t, 1, surf.LiveCount(model.KindLine))
	assert.True(t, f.health.OverlayActive)
}

func TestRemoveOverlay(t *testing.T) {
	f := newFixture(t)
	surf := f.init(t)
	_, err := f.session.LoadText(context.Background(), "doc", scenarioDoc)
	require.NoError(t, err)

	require.NoError(t, f.session.RemoveOverlay())
	require.NoError(t, f.session.DrawOverlay(model.IndicatorConfig{Length: 1, Color: "#FFFFFF", Width: 1}))
	require.NoError(t, f.session.RemoveOverlay())
	require.NoError(t, f.session.RemoveOverlay())
	assert.Equal(t, overlay.Absent, f.session.OverlayState())
	assert.Zero(t, surf.LiveCount(model.KindLine))
}

func TestResize_FromContainer(t *testing.T) {
	f := newFixture(t)
	surf := f.init(t)

	f.container.SetDimensions(1024, 400)
	w, h := surf.Size()
	assert.Equal(t, 1024, w)
	assert.Equal(t, 400, h)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ResizeTotal))

	assert.ErrorIs(t, f.session.Resize(-1, 5), model.ErrInvalidParameter)
}

// brokenSurface fails every series creation and its own destruction.
type brokenSurface struct{}

func (brokenSurface) CreateSeries(model.SeriesKind, model.SeriesStyle) (model.Series, error) {
	return nil, errors.New("gpu lost")
}
func (brokenSurface) RemoveSeries(model.Series) error { return nil }
func (brokenSurface) Resize(int, int) error           { return nil }
func (brokenSurface) Destroy() error                  { return errors.New("context lost") }

type brokenContainer struct{}

func (brokenContainer) ID() string                     { return "broken" }
func (brokenContainer) Dimensions() (int, int)         { return 10, 10 }
func (brokenContainer) OnResize(func(int, int)) func() { return func() {} }
func (brokenContainer) CreateSurface(model.SurfaceOptions) (model.Surface, error) {
	return brokenSurface{}, nil
}

func TestInitialize_LogsDestroyFailure(t *testing.T) {
	var buf bytes.Buffer
	rec := &notification.Recorder{}
	session := New(Config{Notifier: rec, Logger: slog.New(slog.NewTextHandler(&buf, nil))})

	err := session.Initialize(brokenContainer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gpu lost")
	assert.False(t, session.Initialized())
	assert.Equal(t, []notification.Condition{notification.CondSurface}, rec.Conditions())
	assert.Contains(t, buf.String(), "destroy surface after failed initialize")
	assert.Contains(t, buf.String(), "context lost")
}

func TestResize_LeavesSeriesAlone(t *testing.T) {
	var mu sync.Mutex
	var ops []surface.Op
	container := surface.NewContainer("chart", 800, 600, func(c surface.Command) {
		mu.Lock()
		ops = append(ops, c.Op)
		mu.Unlock()
	})
	session := New(Config{})
	require.NoError(t, session.Initialize(container))
	_, err := session.LoadText(context.Background(), "doc", scenarioDoc)
	require.NoError(t, err)
	require.NoError(t, session.DrawOverlay(model.IndicatorConfig{Length: 1, Color: "#00FF00", Width: 2}))

	surf := container.Surface()
	seriesBefore := session.Series()
	liveBefore := surf.Live()
	createdBefore, removedBefore := surf.Counts()
	mu.Lock()
	mark := len(ops)
	mu.Unlock()

	container.SetDimensions(1024, 400)
	require.NoError(t, session.Resize(640, 480))

	mu.Lock()
	after := append([]surface.Op(nil), ops[mark:]...)
	mu.Unlock()
	assert.Equal(t, []surface.Op{surface.OpResize, surface.OpResize}, after)
	assert.Equal(t, seriesBefore, session.Series())
	assert.Equal(t, liveBefore, surf.Live())
	created, removed := surf.Counts()
	assert.Equal(t, createdBefore, created)
	assert.Equal(t, removedBefore, removed)
}

func TestTeardown(t *testing.T) {
	f := newFixture(t)
	surf := f.init(t)
	_, err := f.session.LoadText(context.Background(), "doc", scenarioDoc)
	require.NoError(t, err)
	require.NoError(t, f.session.DrawOverlay(model.IndicatorConfig{Length: 1, Color: "#FFFFFF", Width: 1}))

	require.NoError(t, f.session.Teardown())
	require.NoError(t, f.session.Teardown())

	assert.True(t, surf.Destroyed())
	created, removed := surf.Counts()
	assert.Equal(t, 2, created)
	assert.Equal(t, 2, removed, "base and overlay are removed before destroy")
	assert.False(t, f.session.Initialized())
	assert.Zero(t, f.container.Subscribers())
	assert.Nil(t, f.session.OverlayHandle())
	assert.False(t, f.health.SessionReady)

	// Resize after teardown reaches no one.
	f.container.SetDimensions(10, 10)
	w, _ := surf.Size()
	assert.Equal(t, 800, w)

	// A torn-down session can mount again.
	require.NoError(t, f.session.Initialize(f.container))
	assert.NotSame(t, surf, f.container.Surface())
}

func TestLoad_LastWriteWins(t *testing.T) {
	f := newFixture(t)
	f.init(t)
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	slow := source.Func{Label: "slow", Fn: func(context.Context) (string, error) {
		close(started)
		<-release
		return "Date,Open,High,Low,Close\nold,1,1,1,1\n", nil
	}}

	var wg sync.WaitGroup
	var slowErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, slowErr = f.session.Load(ctx, slow)
	}()
	<-started

	_, err := f.session.LoadText(ctx, "fast", "Date,Open,High,Low,Close\nnew,2,2,2,2\n")
	require.NoError(t, err)
	close(release)
	wg.Wait()

	assert.ErrorIs(t, slowErr, model.ErrSuperseded)
	series := f.session.Series()
	require.Len(t, series, 1)
	assert.Equal(t, "new", series[0].Time)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LoadsTotal.WithLabelValues("superseded")))
}

func TestLoad_TeardownDuringFetch(t *testing.T) {
	f := newFixture(t)
	f.init(t)

	release := make(chan struct{})
	started := make(chan struct{})
	slow := source.Func{Label: "slow", Fn: func(context.Context) (string, error) {
		close(started)
		<-release
		return scenarioDoc, nil
	}}

	done := make(chan error, 1)
	go func() {
		_, err := f.session.Load(context.Background(), slow)
		done <- err
	}()
	<-started
	require.NoError(t, f.session.Teardown())
	close(release)

	assert.ErrorIs(t, <-done, model.ErrUninitialized)
}

type loadJournal struct {
	mu    sync.Mutex
	loads []model.LoadRecord
}

func (j *loadJournal) RecordLoad(_ context.Context, r model.LoadRecord) error {
	j.mu.Lock()
	j.loads = append(j.loads, r)
	j.mu.Unlock()
	return nil
}
func (j *loadJournal) RecordOverlay(context.Context, model.OverlayRecord) error { return nil }

func TestLoad_Journal(t *testing.T) {
	j := &loadJournal{}
	c := surface.NewContainer("chart", 100, 100, nil)
	s := New(Config{Journal: j})
	require.NoError(t, s.Initialize(c))

	_, err := s.LoadText(context.Background(), "doc", scenarioDoc)
	require.NoError(t, err)

	require.Len(t, j.loads, 1)
	rec := j.loads[0]
	assert.Equal(t, s.ID(), rec.Session)
	assert.Equal(t, "doc", rec.Source)
	assert.True(t, rec.Applied)
	assert.Equal(t, 2, rec.Stats.Accepted)
	assert.NotEmpty(t, rec.ID)
}
