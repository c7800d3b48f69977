// Package store caches segmentation results in a SQLite database so that
// re-running a song with the same configuration skips decoding and analysis.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/RyanBlaney/sonido-stems/algorithms/segmentation"
	"github.com/RyanBlaney/sonido-stems/logging"
)

// Entry is one cached stem result
type Entry struct {
	SongID    string
	Stem      string
	ConfigKey string
	Segments  []segmentation.Segment
	CreatedAt time.Time
}

// SegmentStore wraps the SQL database with segment cache methods
type SegmentStore struct {
	db     *sql.DB
	logger logging.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS stem_segments (
	song_id    TEXT NOT NULL,
	stem       TEXT NOT NULL,
	config_key TEXT NOT NULL,
	segments   TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (song_id, stem, config_key)
);
CREATE INDEX IF NOT EXISTS idx_stem_segments_song ON stem_segments(song_id);
`

// Open opens or creates the cache database at path. ":memory:" gives a
// private in-memory database.
func Open(path string) (*SegmentStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps ":memory:" databases alive and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &SegmentStore{
		db: db,
		logger: logging.WithFields(logging.Fields{
			"component": "segment_store",
			"path":      path,
		}),
	}, nil
}

// Close closes the database connection
func (s *SegmentStore) Close() error {
	return s.db.Close()
}

// Load returns the cached segments for a stem and configuration
func (s *SegmentStore) Load(ctx context.Context, songID, stem, configKey string) ([]segmentation.Segment, bool, error) {
	entry, err := s.Get(ctx, songID, stem, configKey)
	if err != nil || entry == nil {
		return nil, false, err
	}
	return entry.Segments, true, nil
}

// Get returns the full cache entry, or nil when there is none
func (s *SegmentStore) Get(ctx context.Context, songID, stem, configKey string) (*Entry, error) {
	query := `SELECT segments, created_at FROM stem_segments
	          WHERE song_id = ? AND stem = ? AND config_key = ?`

	var (
		raw       string
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, query, songID, stem, configKey).Scan(&raw, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}

	entry := &Entry{
		SongID:    songID,
		Stem:      stem,
		ConfigKey: configKey,
		CreatedAt: time.Unix(createdAt, 0),
	}
	if err := json.Unmarshal([]byte(raw), &entry.Segments); err != nil {
		return nil, fmt.Errorf("corrupt segments for %s/%s: %w", songID, stem, err)
	}
	return entry, nil
}

// Save stores segments, replacing any previous entry for the same key
func (s *SegmentStore) Save(ctx context.Context, songID, stem, configKey string, segments []segmentation.Segment) error {
	if segments == nil {
		segments = []segmentation.Segment{}
	}
	data, err := json.Marshal(segments)
	if err != nil {
		return fmt.Errorf("failed to encode segments: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
	INSERT OR REPLACE INTO stem_segments (song_id, stem, config_key, segments, created_at)
	VALUES (?, ?, ?, ?, ?)`,
		songID, stem, configKey, string(data), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save segments: %w", err)
	}

	s.logger.Debug("Segments cached", logging.Fields{
		"song":     songID,
		"stem":     stem,
		"segments": len(segments),
	})
	return nil
}

// List returns every entry of a song, ordered by stem and newest first
func (s *SegmentStore) List(ctx context.Context, songID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT stem, config_key, segments, created_at FROM stem_segments
	WHERE song_id = ? ORDER BY stem, created_at DESC`, songID)
	if err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry     = Entry{SongID: songID}
			raw       string
			createdAt int64
		)
		if err := rows.Scan(&entry.Stem, &entry.ConfigKey, &raw, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan segments: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &entry.Segments); err != nil {
			return nil, fmt.Errorf("corrupt segments for %s/%s: %w", songID, entry.Stem, err)
		}
		entry.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Delete removes every cached entry of a song and reports how many were removed
func (s *SegmentStore) Delete(ctx context.Context, songID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM stem_segments WHERE song_id = ?`, songID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete segments: %w", err)
	}
	return res.RowsAffected()
}
