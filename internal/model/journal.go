package model

import (
	"context"
	"time"
)

// LoadRecord describes one load attempt.
type LoadRecord struct {
	ID      string    `json:"id"`
	Session string    `json:"session"`
	Source  string    `json:"source"`
	Stats   LoadStats `json:"stats"`
	Applied bool      `json:"applied"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// OverlayRecord describes one overlay transition.
type OverlayRecord struct {
	ID       string          `json:"id"`
	Session  string          `json:"session"`
	Op       string          `json:"op"`     // draw, update, refresh, remove
	Result   string          `json:"result"` // ok, rejected, noop, error
	Config   IndicatorConfig `json:"config"`
	Points   int             `json:"points"`
	SeriesID string          `json:"series_id,omitempty"`
	Error    string          `json:"error,omitempty"`
	At       time.Time       `json:"at"`
}

// ── Journal Port Interfaces ──

// JournalWriter persists load and overlay history.
type JournalWriter interface {
	RecordLoad(ctx context.Context, rec LoadRecord) error
	RecordOverlay(ctx context.Context, rec OverlayRecord) error
}

// JournalReader lists recent history, newest first.
type JournalReader interface {
	RecentLoads(ctx context.Context, limit int) ([]LoadRecord, error)
	RecentOverlays(ctx context.Context, limit int) ([]OverlayRecord, error)
}
