// Package sqlite provides a SQLite-backed implementation of the repository port.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ewilliams-labs/widdle/internal/core/domain"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // Import the driver anonymously
)

// Adapter implements the repository port for SQLite
type Adapter struct {
	db  *sql.DB
	now func() time.Time
}

// NewAdapter creates a connection and runs the schema migration
func NewAdapter(storagePath string) (*Adapter, error) {
	db, err := sql.Open("sqlite3", storagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}

	adapter := &Adapter{db: db, now: func() time.Time { return time.Now().UTC() }}

	if err := adapter.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return adapter, nil
}

// Close ensures the DB connection is closed gracefully
func (a *Adapter) Close() error {
	return a.db.Close()
}

func (a *Adapter) Ping(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w: %w", domain.ErrPersistence, err)
	}
	return nil
}

func (a *Adapter) CreateTrack(ctx context.Context, t domain.Track) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = a.now()
	}
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO tracks (id, filename, title, artist, album, duration, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Filename, t.Title, t.Artist, nullString(t.Album), t.Duration, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: create track %s: %w: %w", t.ID, domain.ErrPersistence, err)
	}
	return nil
}

func (a *Adapter) GetTrack(ctx context.Context, id string) (domain.Track, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT id, filename, title, artist, album, duration, created_at
		FROM tracks WHERE id = ?
	`, id)
	t, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Track{}, domain.ErrTrackNotFound
	}
	if err != nil {
		return domain.Track{}, fmt.Errorf("sqlite: load track %s: %w: %w", id, domain.ErrPersistence, err)
	}
	return t, nil
}

// ListTracks returns every track, newest first.
func (a *Adapter) ListTracks(ctx context.Context) ([]domain.Track, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, filename, title, artist, album, duration, created_at
		FROM tracks ORDER BY created_at DESC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list tracks: %w: %w", domain.ErrPersistence, err)
	}
	defer rows.Close()

	tracks := []domain.Track{}
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan track: %w: %w", domain.ErrPersistence, err)
		}
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate tracks: %w: %w", domain.ErrPersistence, err)
	}
	return tracks, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrack(row rowScanner) (domain.Track, error) {
	var t domain.Track
	var album sql.NullString
	if err := row.Scan(&t.ID, &t.Filename, &t.Title, &t.Artist, &album, &t.Duration, &t.CreatedAt); err != nil {
		return domain.Track{}, err
	}
	if album.Valid {
		t.Album = album.String
	}
	return t, nil
}

// SaveAnalysis upserts the analysis row and its five sub-records in one
// transaction. Existing rows keep their ids; only values and updated_at change.
func (a *Adapter) SaveAnalysis(ctx context.Context, trackID string, result domain.AnalysisResult) (domain.AudioAnalysis, error) {
	result = result.Normalize()
	genres, err := json.Marshal(result.Genres)
	if err != nil {
		return domain.AudioAnalysis{}, fmt.Errorf("sqlite: encode genres: %w: %w", domain.ErrPersistence, err)
	}
	moods, err := json.Marshal(result.Moods)
	if err != nil {
		return domain.AudioAnalysis{}, fmt.Errorf("sqlite: encode moods: %w: %w", domain.ErrPersistence, err)
	}

	// 1. Start Transaction
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.AudioAnalysis{}, fmt.Errorf("sqlite: begin transaction: %w: %w", domain.ErrPersistence, err)
	}
	defer tx.Rollback() // Safety net: auto-rollback if we error/panic before commit

	// 2. The parent track must exist; nothing is written otherwise.
	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT 1 FROM tracks WHERE id = ?", trackID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AudioAnalysis{}, domain.ErrTrackNotFound
		}
		return domain.AudioAnalysis{}, fmt.Errorf("sqlite: check track %s: %w: %w", trackID, domain.ErrPersistence, err)
	}

	// 3. Upsert the parent analysis row, keyed by track.
	now := a.now()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO audio_analyses (id, track_id, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(track_id) DO UPDATE SET updated_at=excluded.updated_at;
	`, uuid.NewString(), trackID, now, now); err != nil {
		return domain.AudioAnalysis{}, fmt.Errorf("sqlite: save analysis: %w: %w", domain.ErrPersistence, err)
	}

	var analysisID string
	if err := tx.QueryRowContext(ctx, "SELECT id FROM audio_analyses WHERE track_id = ?", trackID).Scan(&analysisID); err != nil {
		return domain.AudioAnalysis{}, fmt.Errorf("sqlite: load analysis id: %w: %w", domain.ErrPersistence, err)
	}

	// 4. Upsert the sub-records, keyed by analysis.
	subRecords := []struct {
		table  string
		column string
		value  any
	}{
		{"genre_analyses", "genres", string(genres)},
		{"mood_analyses", "moods", string(moods)},
		{"tempo_analyses", "tempo", result.Tempo},
		{"key_analyses", "musical_key", result.Key},
		{"time_signature_analyses", "time_signature", result.TimeSignature},
	}
	for _, sr := range subRecords {
		query := fmt.Sprintf(`
			INSERT INTO %[1]s (id, analysis_id, %[2]s) VALUES (?, ?, ?)
			ON CONFLICT(analysis_id) DO UPDATE SET %[2]s=excluded.%[2]s;
		`, sr.table, sr.column)
		if _, err := tx.ExecContext(ctx, query, uuid.NewString(), analysisID, sr.value); err != nil {
			return domain.AudioAnalysis{}, fmt.Errorf("sqlite: save %s: %w: %w", sr.table, domain.ErrPersistence, err)
		}
	}

	saved, err := loadAnalysis(ctx, tx, trackID)
	if err != nil {
		return domain.AudioAnalysis{}, fmt.Errorf("sqlite: reload analysis: %w: %w", domain.ErrPersistence, err)
	}

	// 5. Commit Transaction
	if err := tx.Commit(); err != nil {
		return domain.AudioAnalysis{}, fmt.Errorf("sqlite: commit: %w: %w", domain.ErrPersistence, err)
	}
	return saved, nil
}

func (a *Adapter) GetAnalysis(ctx context.Context, trackID string) (domain.AudioAnalysis, error) {
	analysis, err := loadAnalysis(ctx, a.db, trackID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AudioAnalysis{}, domain.ErrAnalysisNotFound
	}
	if err != nil {
		return domain.AudioAnalysis{}, fmt.Errorf("sqlite: load analysis for %s: %w: %w", trackID, domain.ErrPersistence, err)
	}
	return analysis, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadAnalysis(ctx context.Context, q queryRower, trackID string) (domain.AudioAnalysis, error) {
	var (
		an            domain.AudioAnalysis
		genres, moods string
	)
	err := q.QueryRowContext(ctx, `
		SELECT a.id, a.track_id, a.created_at, a.updated_at,
			g.id, g.genres,
			m.id, m.moods,
			t.id, t.tempo,
			k.id, k.musical_key,
			s.id, s.time_signature
		FROM audio_analyses a
		JOIN genre_analyses g ON g.analysis_id = a.id
		JOIN mood_analyses m ON m.analysis_id = a.id
		JOIN tempo_analyses t ON t.analysis_id = a.id
		JOIN key_analyses k ON k.analysis_id = a.id
		JOIN time_signature_analyses s ON s.analysis_id = a.id
		WHERE a.track_id = ?
	`, trackID).Scan(
		&an.ID, &an.TrackID, &an.CreatedAt, &an.UpdatedAt,
		&an.GenreAnalysis.ID, &genres,
		&an.MoodAnalysis.ID, &moods,
		&an.TempoAnalysis.ID, &an.TempoAnalysis.Tempo,
		&an.KeyAnalysis.ID, &an.KeyAnalysis.Key,
		&an.TimeSignatureAnalysis.ID, &an.TimeSignatureAnalysis.TimeSignature,
	)
	if err != nil {
		return domain.AudioAnalysis{}, err
	}
	if an.GenreAnalysis.Genres, err = decodeLabels(genres); err != nil {
		return domain.AudioAnalysis{}, err
	}
	if an.MoodAnalysis.Moods, err = decodeLabels(moods); err != nil {
		return domain.AudioAnalysis{}, err
	}
	return an, nil
}

func decodeLabels(raw string) ([]string, error) {
	labels := []string{}
	if raw == "" {
		return labels, nil
	}
	if err := json.Unmarshal([]byte(raw), &labels); err != nil {
		return nil, fmt.Errorf("decode labels: %w", err)
	}
	if labels == nil {
		labels = []string{}
	}
	return labels, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Migrate creates the schema and applies additive column changes. It is safe
// to run repeatedly.
func (a *Adapter) Migrate(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return err
	}

	query := `
	CREATE TABLE IF NOT EXISTS tracks (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		title TEXT NOT NULL,
		artist TEXT NOT NULL,
		duration REAL NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS audio_analyses (
		id TEXT PRIMARY KEY,
		track_id TEXT NOT NULL UNIQUE,
		created_at DATETIME NOT NULL,
		FOREIGN KEY(track_id) REFERENCES tracks(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS genre_analyses (
		id TEXT PRIMARY KEY,
		analysis_id TEXT NOT NULL UNIQUE,
		genres TEXT NOT NULL,
		FOREIGN KEY(analysis_id) REFERENCES audio_analyses(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS mood_analyses (
		id TEXT PRIMARY KEY,
		analysis_id TEXT NOT NULL UNIQUE,
		moods TEXT NOT NULL,
		FOREIGN KEY(analysis_id) REFERENCES audio_analyses(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS tempo_analyses (
		id TEXT PRIMARY KEY,
		analysis_id TEXT NOT NULL UNIQUE,
		tempo INTEGER NOT NULL,
		FOREIGN KEY(analysis_id) REFERENCES audio_analyses(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS key_analyses (
		id TEXT PRIMARY KEY,
		analysis_id TEXT NOT NULL UNIQUE,
		musical_key TEXT NOT NULL,
		FOREIGN KEY(analysis_id) REFERENCES audio_analyses(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS time_signature_analyses (
		id TEXT PRIMARY KEY,
		analysis_id TEXT NOT NULL UNIQUE,
		time_signature TEXT NOT NULL,
		FOREIGN KEY(analysis_id) REFERENCES audio_analyses(id) ON DELETE CASCADE
	);
	`
	if _, err := a.db.ExecContext(ctx, query); err != nil {
		return err
	}

	// Columns added after the first schema revision.
	for _, stmt := range []string{
		"ALTER TABLE tracks ADD COLUMN album TEXT",
		"ALTER TABLE audio_analyses ADD COLUMN updated_at DATETIME",
	} {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			if !isDuplicateColumnError(err) {
				return err
			}
		}
	}

	return nil
}

func isDuplicateColumnError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "duplicate column") || strings.Contains(err.Error(), "already exists"))
}
