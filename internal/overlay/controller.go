// Package overlay owns the indicator overlay drawn over the base series.
//
// The controller is a two-state machine (Absent, Active) holding at most one
// live line series on the surface. Draw and Update are the same operation: the
// indicator is recomputed from the series passed in, the previous handle is
// destroyed, and a new one is created and filled. Rejected requests leave the
// state untouched.
package overlay

import (
	"context"
	"fmt"
	"log"
	"time"

	"candleview/internal/id"
	"candleview/internal/indicator"
	"candleview/internal/metrics"
	"candleview/internal/model"
	"candleview/internal/notification"
)

// State of the overlay.
type State int

const (
	Absent State = iota
	Active
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// Operation labels used in metrics and the journal.
const (
	OpDraw    = "draw"
	OpUpdate  = "update"
	OpRefresh = "refresh"
	OpRemove  = "remove"
)

// Handle is the single live overlay drawable and the config it was drawn with.
type Handle struct {
	Series  model.Series
	Config  model.IndicatorConfig
	Points  int
	DrawnAt time.Time
}

// Config wires optional collaborators. Zero values disable them.
type Config struct {
	Session  string
	Metrics  *metrics.Metrics
	Notifier notification.Notifier
	Journal  model.JournalWriter
}

// Controller is not safe for concurrent use; the owning session serializes
// every call.
type Controller struct {
	surface model.Surface
	cfg     Config
	handle  *Handle
}

// New returns an Absent controller drawing on surface.
func New(surface model.Surface, cfg Config) *Controller {
	return &Controller{surface: surface, cfg: cfg}
}

// State returns Active when a handle is bound.
func (c *Controller) State() State {
	if c.handle == nil {
		return Absent
	}
	return Active
}

// Handle returns a copy of the live handle, or nil when Absent.
func (c *Controller) Handle() *Handle {
	if c.handle == nil {
		return nil
	}
	h := *c.handle
	return &h
}

// Draw computes the SMA of series with cfg and replaces any live overlay
// with it. An invalid config or an empty series is rejected and the current
// state is kept.
func (c *Controller) Draw(series []model.OHLCPoint, cfg model.IndicatorConfig) error {
	return c.draw(OpDraw, series, cfg)
}

// Update is Draw under another name: the overlay is rebuilt, not patched.
func (c *Controller) Update(series []model.OHLCPoint, cfg model.IndicatorConfig) error {
	return c.draw(OpUpdate, series, cfg)
}

// Refresh rebuilds a live overlay against a new base series using the config
// recorded on its handle. An empty series yields an overlay with no points
// rather than one computed from the previous series. No-op when Absent.
func (c *Controller) Refresh(series []model.OHLCPoint) error {
	if c.handle == nil {
		return nil
	}
	return c.apply(OpRefresh, series, c.handle.Config)
}

// Remove destroys the live overlay. Removing an Absent overlay is a no-op.
func (c *Controller) Remove() error {
	if c.handle == nil {
		c.record(OpRemove, "noop", model.IndicatorConfig{}, 0, "", nil)
		return nil
	}

	h := c.handle
	c.handle = nil
	c.setLive()

	if err := c.surface.RemoveSeries(h.Series); err != nil {
		err = fmt.Errorf("overlay: remove series %s: %w", h.Series.ID(), err)
		c.fail(OpRemove, h.Config, err)
		return err
	}
	c.record(OpRemove, "ok", h.Config, 0, h.Series.ID(), nil)
	return nil
}

func (c *Controller) draw(op string, series []model.OHLCPoint, cfg model.IndicatorConfig) error {
	if err := cfg.Validate(); err != nil {
		c.reject(op, cfg, notification.CondInvalidParameter, err)
		return err
	}
	if len(series) == 0 {
		err := fmt.Errorf("overlay: %s %s: %w", op, cfg.Name(), model.ErrEmptySeries)
		c.reject(op, cfg, notification.CondEmptySeries, err)
		return err
	}
	return c.apply(op, series, cfg)
}

// apply computes first, then destroys the previous drawable before creating
// its replacement, so two overlays are never attached at once.
func (c *Controller) apply(op string, series []model.OHLCPoint, cfg model.IndicatorConfig) error {
	start := time.Now()
	points, err := indicator.ComputeSMA(series, cfg.Length)
	if err != nil {
		c.reject(op, cfg, notification.CondInvalidParameter, err)
		return err
	}
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.SMAComputeDur.Observe(time.Since(start).Seconds())
	}

	if prev := c.handle; prev != nil {
		c.handle = nil
		if err := c.surface.RemoveSeries(prev.Series); err != nil {
			// The drawable is gone from our side either way; a stale handle
			// would only be removed a second time later.
			log.Printf("[overlay] WARNING: remove previous series %s: %v", prev.Series.ID(), err)
		}
	}

	s, err := c.surface.CreateSeries(model.KindLine, cfg.LineStyle())
	if err != nil {
		c.setLive()
		err = fmt.Errorf("overlay: create series: %w", err)
		c.fail(op, cfg, err)
		return err
	}
	if err := s.SetData(points); err != nil {
		if rmErr := c.surface.RemoveSeries(s); rmErr != nil {
			log.Printf("[overlay] WARNING: discard series %s: %v", s.ID(), rmErr)
		}
		c.setLive()
		err = fmt.Errorf("overlay: set data: %w", err)
		c.fail(op, cfg, err)
		return err
	}

	c.handle = &Handle{Series: s, Config: cfg, Points: len(points), DrawnAt: time.Now()}
	c.setLive()
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.SMAPoints.Set(float64(len(points)))
	}
	c.record(op, "ok", cfg, len(points), s.ID(), nil)
	return nil
}

func (c *Controller) setLive() {
	if c.cfg.Metrics == nil {
		return
	}
	if c.handle != nil {
		c.cfg.Metrics.OverlayLive.Set(1)
	} else {
		c.cfg.Metrics.OverlayLive.Set(0)
	}
}

func (c *Controller) reject(op string, cfg model.IndicatorConfig, cond notification.Condition, err error) {
	c.notify(notification.AlertWarning, cond, "overlay "+op+" rejected", err)
	c.record(op, "rejected", cfg, 0, "", err)
}

func (c *Controller) fail(op string, cfg model.IndicatorConfig, err error) {
	c.notify(notification.AlertCritical, notification.CondSurface, "overlay "+op+" failed", err)
	c.record(op, "error", cfg, 0, "", err)
}

func (c *Controller) notify(level notification.AlertLevel, cond notification.Condition, title string, err error) {
	if c.cfg.Notifier == nil {
		return
	}
	alert := notification.Alert{
		Level:     level,
		Condition: cond,
		Session:   c.cfg.Session,
		Title:     title,
		Message:   err.Error(),
	}
	if sendErr := c.cfg.Notifier.Send(context.Background(), alert); sendErr != nil {
		log.Printf("[overlay] notifier error: %v", sendErr)
	}
}

func (c *Controller) record(op, result string, cfg model.IndicatorConfig, points int, seriesID string, err error) {
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.OverlayOpsTotal.WithLabelValues(op, result).Inc()
	}
	if c.cfg.Journal == nil {
		return
	}
	rec := model.OverlayRecord{
		ID:       id.New(),
		Session:  c.cfg.Session,
		Op:       op,
		Result:   result,
		Config:   cfg,
		Points:   points,
		SeriesID: seriesID,
		At:       time.Now().UTC(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if jErr := c.cfg.Journal.RecordOverlay(context.Background(), rec); jErr != nil {
		log.Printf("[overlay] journal error: %v", jErr)
	}
}
