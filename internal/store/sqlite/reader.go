package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"candleview/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader lists journal rows, newest first. It implements model.JournalReader.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// RecentLoads returns up to limit load rows.
func (r *Reader) RecentLoads(ctx context.Context, limit int) ([]model.LoadRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session, source, rows, accepted, skipped, applied, error, at
		FROM loads
		ORDER BY at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query loads: %w", err)
	}
	defer rows.Close()

	out := []model.LoadRecord{}
	for rows.Next() {
		var (
			rec     model.LoadRecord
			applied int
			at      int64
		)
		if err := rows.Scan(&rec.ID, &rec.Session, &rec.Source, &rec.Stats.Rows, &rec.Stats.Accepted,
			&rec.Stats.Skipped, &applied, &rec.Error, &at); err != nil {
			return nil, fmt.Errorf("sqlite scan loads: %w", err)
		}
		rec.Applied = applied != 0
		rec.At = time.Unix(0, at).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecentOverlays returns up to limit overlay transition rows.
func (r *Reader) RecentOverlays(ctx context.Context, limit int) ([]model.OverlayRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session, op, result, length, color, width, points, series_id, error, at
		FROM overlay_events
		ORDER BY at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query overlay_events: %w", err)
	}
	defer rows.Close()

	out := []model.OverlayRecord{}
	for rows.Next() {
		var (
			rec model.OverlayRecord
			at  int64
		)
		if err := rows.Scan(&rec.ID, &rec.Session, &rec.Op, &rec.Result, &rec.Config.Length,
			&rec.Config.Color, &rec.Config.Width, &rec.Points, &rec.SeriesID, &rec.Error, &at); err != nil {
			return nil, fmt.Errorf("sqlite scan overlay_events: %w", err)
		}
		rec.At = time.Unix(0, at).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (r *Reader) Close() error {
	return r.db.Close()
}
