// Package chart implements the chart session: the lifecycle owner that
// mounts a surface into a container, loads OHLC data into the base
// candlestick series and routes overlay requests to the overlay controller.
//
// Every mutating call is serialized on the session mutex. Loads fetch
// outside the lock and apply inside it; a load that started before a newer
// one is discarded on arrival (last write wins) and reports ErrSuperseded.
package chart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"candleview/internal/csvfeed"
	"candleview/internal/id"
	"candleview/internal/metrics"
	"candleview/internal/model"
	"candleview/internal/notification"
	"candleview/internal/overlay"
	"candleview/internal/source"
)

// Config wires the session's collaborators. Nil fields are disabled.
type Config struct {
	// Delimiter separates fields in loaded documents. Zero means ','.
	Delimiter rune

	Metrics  *metrics.Metrics
	Health   *metrics.HealthStatus
	Notifier notification.Notifier
	Journal  model.JournalWriter
	Logger   *slog.Logger
}

// Session binds one container, one surface, one base series and at most one
// overlay.
type Session struct {
	id     string
	cfg    Config
	parser *csvfeed.Parser
	log    *slog.Logger

	mu          sync.Mutex
	container   model.Container
	surface     model.Surface
	base        model.Series
	overlay     *overlay.Controller
	unsubscribe func()
	series      []model.OHLCPoint
	generation  uint64
}

// New returns an uninitialized session.
func New(cfg Config) *Session {
	sid := id.New()
	lg := cfg.Logger
	if lg == nil {
		lg = slog.Default()
	}
	return &Session{
		id:     sid,
		cfg:    cfg,
		parser: csvfeed.NewParser(cfg.Delimiter),
		log:    lg.With(slog.String("session", sid)),
		series: []model.OHLCPoint{},
	}
}

// ID returns the session's ULID.
func (s *Session) ID() string { return s.id }

// Initialize creates the surface sized to the container, attaches an empty
// candlestick series and subscribes to container resizes. A session can be
// initialized again only after Teardown.
func (s *Session) Initialize(container model.Container) error {
	if container == nil {
		return fmt.Errorf("chart: initialize: %w: nil container", model.ErrInvalidParameter)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.surface != nil {
		return fmt.Errorf("chart: initialize %s: %w", container.ID(), model.ErrAlreadyInitialized)
	}

	w, h := container.Dimensions()
	surf, err := container.CreateSurface(model.DefaultSurfaceOptions(w, h))
	if err != nil {
		err = fmt.Errorf("chart: create surface: %w", err)
		s.report(notification.AlertCritical, notification.CondSurface, "initialize failed", err)
		return err
	}
	base, err := surf.CreateSeries(model.KindCandlestick, model.CandlestickStyle())
	if err != nil {
		if derr := surf.Destroy(); derr != nil {
			s.log.Warn("destroy surface after failed initialize", "error", derr)
		}
		err = fmt.Errorf("chart: create base series: %w", err)
		s.report(notification.AlertCritical, notification.CondSurface, "initialize failed", err)
		return err
	}

	s.container = container
	s.surface = surf
	s.base = base
	s.series = []model.OHLCPoint{}
	s.overlay = overlay.New(surf, overlay.Config{
		Session:  s.id,
		Metrics:  s.cfg.Metrics,
		Notifier: s.cfg.Notifier,
		Journal:  s.cfg.Journal,
	})
	s.unsubscribe = container.OnResize(func(width, height int) {
		if err := s.Resize(width, height); err != nil {
			s.log.Warn("resize from container failed", "width", width, "height", height, "error", err)
		}
	})

	if s.cfg.Health != nil {
		s.cfg.Health.SetSessionReady(true)
	}
	s.log.Info("session initialized", "container", container.ID(), "width", w, "height", h)
	return nil
}

// Initialized reports whether the session currently owns a surface.
func (s *Session) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface != nil
}

// Load fetches a document from src, parses and validates it, and replaces
// the base series with the result. A live overlay is recomputed against the
// new series with its recorded config.
//
// A fetch failure returns an error wrapping ErrFetchFailure and leaves the
// previous series in place. A zero-row result is still applied.
func (s *Session) Load(ctx context.Context, src source.Source) (model.LoadStats, error) {
	start := time.Now()

	s.mu.Lock()
	if s.surface == nil {
		s.mu.Unlock()
		err := fmt.Errorf("chart: load %s: %w", src.Name(), model.ErrUninitialized)
		s.report(notification.AlertWarning, notification.CondUninitialized, "load rejected", err)
		s.countLoad("uninitialized")
		return model.LoadStats{}, err
	}
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	fetchStart := time.Now()
	text, err := src.Fetch(ctx)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.FetchDuration.Observe(time.Since(fetchStart).Seconds())
	}
	if err != nil {
		err = fmt.Errorf("chart: load %s: %w: %v", src.Name(), model.ErrFetchFailure, err)
		s.report(notification.AlertCritical, notification.CondFetchFailure, "data fetch failed", err)
		s.countLoad("fetch_failure")
		s.journalLoad(src.Name(), model.LoadStats{}, false, err)
		if s.cfg.Health != nil {
			s.cfg.Health.RecordLoad(0, err)
		}
		return model.LoadStats{}, err
	}

	points, stats := csvfeed.Load(s.parser, text)
	if stats.Skipped > 0 {
		s.report(notification.AlertInfo, notification.CondParseSkip, "malformed rows skipped",
			fmt.Errorf("%s: %d of %d rows skipped", src.Name(), stats.Skipped, stats.Rows))
	}

	if err := s.apply(gen, points); err != nil {
		result := "error"
		if errors.Is(err, model.ErrSuperseded) {
			result = "superseded"
		} else if errors.Is(err, model.ErrUninitialized) {
			result = "uninitialized"
		}
		s.countLoad(result)
		s.journalLoad(src.Name(), stats, false, err)
		return stats, err
	}

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RowsTotal.Add(float64(stats.Rows))
		s.cfg.Metrics.RowsSkipped.Add(float64(stats.Skipped))
		s.cfg.Metrics.SeriesPoints.Set(float64(stats.Accepted))
		s.cfg.Metrics.LoadDuration.Observe(time.Since(start).Seconds())
	}
	if s.cfg.Health != nil {
		s.cfg.Health.RecordLoad(stats.Accepted, nil)
	}
	s.countLoad("ok")
	s.journalLoad(src.Name(), stats, true, nil)
	s.log.Info("series loaded", "source", src.Name(), "rows", stats.Rows,
		"accepted", stats.Accepted, "skipped", stats.Skipped, "took", time.Since(start))
	return stats, nil
}

// LoadText loads an in-memory document.
func (s *Session) LoadText(ctx context.Context, label, text string) (model.LoadStats, error) {
	return s.Load(ctx, source.Text{Label: label, Body: text})
}

func (s *Session) apply(gen uint64, points []model.OHLCPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.surface == nil {
		return fmt.Errorf("chart: apply load: %w", model.ErrUninitialized)
	}
	if gen != s.generation {
		return fmt.Errorf("chart: apply load %d (latest %d): %w", gen, s.generation, model.ErrSuperseded)
	}
	if err := s.base.SetData(points); err != nil {
		err = fmt.Errorf("chart: set base data: %w", err)
		s.report(notification.AlertCritical, notification.CondSurface, "base series update failed", err)
		return err
	}
	s.series = points

	if err := s.overlay.Refresh(points); err != nil {
		s.log.Warn("overlay refresh after load failed", "error", err)
	}
	s.syncOverlayHealth()
	return nil
}

// DrawOverlay draws the moving average of the current series. An existing
// overlay is replaced.
func (s *Session) DrawOverlay(cfg model.IndicatorConfig) error {
	return s.withOverlay("draw", func(c *overlay.Controller) error {
		return c.Draw(s.series, cfg)
	})
}

// UpdateOverlay recomputes the overlay with a new config.
func (s *Session) UpdateOverlay(cfg model.IndicatorConfig) error {
	return s.withOverlay("update", func(c *overlay.Controller) error {
		return c.Update(s.series, cfg)
	})
}

// RemoveOverlay removes the overlay if present.
func (s *Session) RemoveOverlay() error {
	return s.withOverlay("remove", func(c *overlay.Controller) error {
		return c.Remove()
	})
}

func (s *Session) withOverlay(op string, fn func(*overlay.Controller) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.surface == nil {
		err := fmt.Errorf("chart: overlay %s: %w", op, model.ErrUninitialized)
		s.report(notification.AlertWarning, notification.CondUninitialized, "overlay "+op+" rejected", err)
		return err
	}
	err := fn(s.overlay)
	s.syncOverlayHealth()
	return err
}

// Resize forwards new dimensions to the surface.
func (s *Session) Resize(width, height int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.surface == nil {
		return fmt.Errorf("chart: resize: %w", model.ErrUninitialized)
	}
	if width < 0 || height < 0 {
		return fmt.Errorf("chart: resize %dx%d: %w", width, height, model.ErrInvalidParameter)
	}
	if err := s.surface.Resize(width, height); err != nil {
		return fmt.Errorf("chart: resize: %w", err)
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ResizeTotal.Inc()
	}
	return nil
}

// Teardown removes the overlay and the base series, unsubscribes from
// resizes and destroys the surface. Calling it on an uninitialized session
// does nothing. Loads still in flight are discarded when they arrive.
func (s *Session) Teardown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.surface == nil {
		return nil
	}

	var errs []error
	if err := s.overlay.Remove(); err != nil {
		errs = append(errs, err)
	}
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if err := s.surface.RemoveSeries(s.base); err != nil {
		errs = append(errs, fmt.Errorf("chart: remove base series: %w", err))
	}
	if err := s.surface.Destroy(); err != nil {
		errs = append(errs, fmt.Errorf("chart: destroy surface: %w", err))
	}

	cid := s.container.ID()
	s.container = nil
	s.surface = nil
	s.base = nil
	s.overlay = nil
	s.unsubscribe = nil
	s.series = []model.OHLCPoint{}
	s.generation++

	if s.cfg.Health != nil {
		s.cfg.Health.SetSessionReady(false)
		s.cfg.Health.SetOverlayActive(false)
	}
	s.log.Info("session torn down", "container", cid)
	return errors.Join(errs...)
}

// Series returns a copy of the current base series.
func (s *Session) Series() []model.OHLCPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.OHLCPoint, len(s.series))
	copy(out, s.series)
	return out
}

// OverlayState returns Absent when the session is uninitialized.
func (s *Session) OverlayState() overlay.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overlay == nil {
		return overlay.Absent
	}
	return s.overlay.State()
}

// OverlayHandle returns a copy of the live overlay handle, or nil.
func (s *Session) OverlayHandle() *overlay.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overlay == nil {
		return nil
	}
	return s.overlay.Handle()
}

func (s *Session) syncOverlayHealth() {
	if s.cfg.Health != nil {
		s.cfg.Health.SetOverlayActive(s.overlay.State() == overlay.Active)
	}
}

func (s *Session) countLoad(result string) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.LoadsTotal.WithLabelValues(result).Inc()
	}
}

func (s *Session) report(level notification.AlertLevel, cond notification.Condition, title string, err error) {
	s.log.Warn(title, "condition", string(cond), "error", err)
	if s.cfg.Notifier == nil {
		return
	}
	alert := notification.Alert{
		Level:     level,
		Condition: cond,
		Session:   s.id,
		Title:     title,
		Message:   err.Error(),
	}
	if sendErr := s.cfg.Notifier.Send(context.Background(), alert); sendErr != nil {
		s.log.Error("notifier error", "error", sendErr)
	}
}

func (s *Session) journalLoad(src string, stats model.LoadStats, applied bool, err error) {
	if s.cfg.Journal == nil {
		return
	}
	rec := model.LoadRecord{
		ID:      id.New(),
		Session: s.id,
		Source:  src,
		Stats:   stats,
		Applied: applied,
		At:      time.Now().UTC(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if jErr := s.cfg.Journal.RecordLoad(context.Background(), rec); jErr != nil {
		s.log.Error("journal error", "error", jErr)
	}
}
