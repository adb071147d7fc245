// Package sqlite persists the chart journal: one row per load attempt and
// one row per overlay transition.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"candleview/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/chart.db"
}

// Writer appends journal rows. It implements model.JournalWriter.
type Writer struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New opens the database in WAL mode and creates the schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", dsn(cfg.DBPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened journal at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func dsn(path string) string {
	return path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS loads (
			id        TEXT    PRIMARY KEY,
			session   TEXT    NOT NULL,
			source    TEXT    NOT NULL,
			rows      INTEGER NOT NULL,
			accepted  INTEGER NOT NULL,
			skipped   INTEGER NOT NULL,
			applied   INTEGER NOT NULL,
			error     TEXT    NOT NULL DEFAULT '',
			at        INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS overlay_events (
			id        TEXT    PRIMARY KEY,
			session   TEXT    NOT NULL,
			op        TEXT    NOT NULL,
			result    TEXT    NOT NULL,
			length    INTEGER NOT NULL,
			color     TEXT    NOT NULL,
			width     INTEGER NOT NULL,
			points    INTEGER NOT NULL,
			series_id TEXT    NOT NULL DEFAULT '',
			error     TEXT    NOT NULL DEFAULT '',
			at        INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_loads_at ON loads (at);
		CREATE INDEX IF NOT EXISTS idx_overlay_events_at ON overlay_events (at);
	`)
	return err
}

// RecordLoad inserts one load row.
func (w *Writer) RecordLoad(ctx context.Context, rec model.LoadRecord) error {
	_, err := w.db.ExecContext(ctx, `
		INSERT INTO loads (id, session, source, rows, accepted, skipped, applied, error, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Session, rec.Source, rec.Stats.Rows, rec.Stats.Accepted, rec.Stats.Skipped,
		boolToInt(rec.Applied), rec.Error, rec.At.UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite insert load %s: %w", rec.ID, err)
	}
	return nil
}

// RecordOverlay inserts one overlay transition row.
func (w *Writer) RecordOverlay(ctx context.Context, rec model.OverlayRecord) error {
	_, err := w.db.ExecContext(ctx, `
		INSERT INTO overlay_events (id, session, op, result, length, color, width, points, series_id, error, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Session, rec.Op, rec.Result, rec.Config.Length, rec.Config.Color, rec.Config.Width,
		rec.Points, rec.SeriesID, rec.Error, rec.At.UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite insert overlay event %s: %w", rec.ID, err)
	}
	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
