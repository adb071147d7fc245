// Package surface provides a stateful rendering surface that records every
// drawable it owns and emits each mutation as a Command.
//
// Used directly it is an in-memory recorder (tests, the chartctl simulate
// command). With a Sink attached, the command stream drives a remote chart:
// the gateway forwards commands to browser clients and replays Snapshot to
// late joiners.
package surface

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"candleview/internal/id"
	"candleview/internal/model"
)

// Op names a surface mutation.
type Op string

const (
	OpCreateSurface Op = "create_surface"
	OpCreateSeries  Op = "create_series"
	OpSetData       Op = "set_data"
	OpRemoveSeries  Op = "remove_series"
	OpResize        Op = "resize"
	OpDestroy       Op = "destroy"
)

// Command is one mutation in wire form.
type Command struct {
	Op       Op                    `json:"op"`
	SeriesID string                `json:"series_id,omitempty"`
	Kind     model.SeriesKind      `json:"kind,omitempty"`
	Style    *model.SeriesStyle    `json:"style,omitempty"`
	Data     any                   `json:"data,omitempty"`
	Width    int                   `json:"width,omitempty"`
	Height   int                   `json:"height,omitempty"`
	Options  *model.SurfaceOptions `json:"options,omitempty"`
}

// Sink receives commands in the order they were applied.
type Sink func(Command)

var (
	// ErrDestroyed is returned by any call on a destroyed surface.
	ErrDestroyed = errors.New("surface destroyed")

	// ErrUnknownSeries is returned when a handle is not attached to this surface.
	ErrUnknownSeries = errors.New("series not attached to surface")
)

// Surface is a thread-safe model.Surface that tracks its live drawables.
type Surface struct {
	mu        sync.Mutex
	opts      model.SurfaceOptions
	live      map[string]*Series
	created   int
	removed   int
	destroyed bool
	sink      Sink

	// FailCreate, when set, makes CreateSeries fail with this error.
	FailCreate error
}

// New returns a surface with the given layout. sink may be nil.
func New(opts model.SurfaceOptions, sink Sink) *Surface {
	s := &Surface{
		opts: opts,
		live: make(map[string]*Series),
		sink: sink,
	}
	o := opts
	s.emit(Command{Op: OpCreateSurface, Options: &o, Width: opts.Width, Height: opts.Height})
	return s
}

// CreateSeries attaches a new drawable.
func (s *Surface) CreateSeries(kind model.SeriesKind, style model.SeriesStyle) (model.Series, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return nil, ErrDestroyed
	}
	if s.FailCreate != nil {
		return nil, s.FailCreate
	}
	if kind != model.KindCandlestick && kind != model.KindLine {
		return nil, fmt.Errorf("surface: unsupported series kind %q", kind)
	}

	sr := &Series{id: id.New(), kind: kind, style: style, surface: s}
	s.live[sr.id] = sr
	s.created++

	st := style
	s.emitLocked(Command{Op: OpCreateSeries, SeriesID: sr.id, Kind: kind, Style: &st})
	return sr, nil
}

// RemoveSeries detaches a drawable created by this surface.
func (s *Surface) RemoveSeries(handle model.Series) error {
	if handle == nil {
		return ErrUnknownSeries
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return ErrDestroyed
	}
	sr, ok := s.live[handle.ID()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSeries, handle.ID())
	}
	delete(s.live, sr.id)
	sr.detached = true
	s.removed++

	s.emitLocked(Command{Op: OpRemoveSeries, SeriesID: sr.id})
	return nil
}

// Resize records the new dimensions.
func (s *Surface) Resize(width, height int) error {
	if width < 0 || height < 0 {
		return fmt.Errorf("surface: negative dimensions %dx%d", width, height)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return ErrDestroyed
	}
	s.opts.Width, s.opts.Height = width, height
	s.emitLocked(Command{Op: OpResize, Width: width, Height: height})
	return nil
}

// Destroy detaches every drawable and rejects further calls.
func (s *Surface) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return ErrDestroyed
	}
	for k, sr := range s.live {
		sr.detached = true
		delete(s.live, k)
	}
	s.destroyed = true
	s.emitLocked(Command{Op: OpDestroy})
	return nil
}

// SeriesState is a copy of one live drawable.
type SeriesState struct {
	ID    string            `json:"id"`
	Kind  model.SeriesKind  `json:"kind"`
	Style model.SeriesStyle `json:"style"`
	Data  any               `json:"data,omitempty"`
}

// Live returns the live drawables ordered by ID (creation order).
func (s *Surface) Live() []SeriesState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SeriesState, 0, len(s.live))
	for _, sr := range s.live {
		out = append(out, SeriesState{ID: sr.id, Kind: sr.kind, Style: sr.style, Data: sr.data})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LiveCount returns the number of live drawables of the given kind.
func (s *Surface) LiveCount(kind model.SeriesKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, sr := range s.live {
		if sr.kind == kind {
			n++
		}
	}
	return n
}

// Counts returns how many drawables were ever created and removed.
func (s *Surface) Counts() (created, removed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created, s.removed
}

// Size returns the current dimensions.
func (s *Surface) Size() (width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts.Width, s.opts.Height
}

// Destroyed reports whether Destroy has been called.
func (s *Surface) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

// Snapshot returns the commands that rebuild the current state from scratch.
func (s *Surface) Snapshot() []Command {
	var out []Command
	s.SnapshotWith(func(cmds []Command) { out = cmds })
	return out
}

// SnapshotWith passes the snapshot to fn before releasing the surface lock.
// No command reaches the sink while fn runs, so fn sees the snapshot and the
// sink's position in the command stream at the same instant.
func (s *Surface) SnapshotWith(fn func(cmds []Command)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.snapshotLocked())
}

func (s *Surface) snapshotLocked() []Command {
	if s.destroyed {
		return nil
	}
	o := s.opts
	cmds := []Command{{Op: OpCreateSurface, Options: &o, Width: o.Width, Height: o.Height}}

	ids := make([]string, 0, len(s.live))
	for k := range s.live {
		ids = append(ids, k)
	}
	sort.Strings(ids)
	for _, k := range ids {
		sr := s.live[k]
		st := sr.style
		cmds = append(cmds, Command{Op: OpCreateSeries, SeriesID: sr.id, Kind: sr.kind, Style: &st})
		if sr.data != nil {
			cmds = append(cmds, Command{Op: OpSetData, SeriesID: sr.id, Data: sr.data})
		}
	}
	return cmds
}

func (s *Surface) emit(c Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitLocked(c)
}

func (s *Surface) emitLocked(c Command) {
	if s.sink != nil {
		s.sink(c)
	}
}

// Series is a drawable owned by a Surface.
type Series struct {
	id       string
	kind     model.SeriesKind
	style    model.SeriesStyle
	data     any
	detached bool
	surface  *Surface
}

func (sr *Series) ID() string             { return sr.id }
func (sr *Series) Kind() model.SeriesKind { return sr.kind }

// SetData replaces the points of a live drawable. The slice type must match
// the series kind.
func (sr *Series) SetData(points any) error {
	switch points.(type) {
	case []model.OHLCPoint:
		if sr.kind != model.KindCandlestick {
			return fmt.Errorf("surface: OHLC data on %s series", sr.kind)
		}
	case []model.IndicatorPoint:
		if sr.kind != model.KindLine {
			return fmt.Errorf("surface: line data on %s series", sr.kind)
		}
	default:
		return fmt.Errorf("surface: unsupported data type %T", points)
	}

	s := sr.surface
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return ErrDestroyed
	}
	if sr.detached {
		return fmt.Errorf("%w: %s", ErrUnknownSeries, sr.id)
	}
	sr.data = points
	s.emitLocked(Command{Op: OpSetData, SeriesID: sr.id, Data: points})
	return nil
}
