// Package postgres provides a PostgreSQL implementation of the repository port.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ewilliams-labs/widdle/internal/core/domain"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Adapter struct {
	db  *sql.DB
	log *zap.Logger
}

// NewAdapter opens the database at databaseURL, pings it and migrates the schema.
func NewAdapter(ctx context.Context, databaseURL string, log *zap.Logger) (*Adapter, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		log.Error("Failed to open database connection", zap.Error(err))
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		log.Error("Failed to ping database", zap.Error(err))
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	a := &Adapter{db: db, log: log}
	if err := a.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return a, nil
}

func (a *Adapter) Close() error {
	return a.db.Close()
}

func (a *Adapter) Ping(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w: %w", domain.ErrPersistence, err)
	}
	return nil
}

func (a *Adapter) CreateTrack(ctx context.Context, t domain.Track) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO tracks (id, filename, title, artist, album, duration, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
	`, t.ID, t.Filename, t.Title, t.Artist, t.Album, t.Duration, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create track %s: %w: %w", t.ID, domain.ErrPersistence, err)
	}
	return nil
}

const trackColumns = "id, filename, title, artist, COALESCE(album, ''), duration, created_at"

func (a *Adapter) GetTrack(ctx context.Context, id string) (domain.Track, error) {
	var t domain.Track
	err := a.db.QueryRowContext(ctx, "SELECT "+trackColumns+" FROM tracks WHERE id = $1", id).
		Scan(&t.ID, &t.Filename, &t.Title, &t.Artist, &t.Album, &t.Duration, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Track{}, domain.ErrTrackNotFound
	}
	if err != nil {
		return domain.Track{}, fmt.Errorf("postgres: load track %s: %w: %w", id, domain.ErrPersistence, err)
	}
	return t, nil
}

func (a *Adapter) ListTracks(ctx context.Context) ([]domain.Track, error) {
	rows, err := a.db.QueryContext(ctx, "SELECT "+trackColumns+" FROM tracks ORDER BY created_at DESC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("postgres: list tracks: %w: %w", domain.ErrPersistence, err)
	}
	defer rows.Close()

	tracks := []domain.Track{}
	for rows.Next() {
		var t domain.Track
		if err := rows.Scan(&t.ID, &t.Filename, &t.Title, &t.Artist, &t.Album, &t.Duration, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan track: %w: %w", domain.ErrPersistence, err)
		}
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate tracks: %w: %w", domain.ErrPersistence, err)
	}
	return tracks, nil
}

// SaveAnalysis upserts the analysis and its sub-records in one transaction.
func (a *Adapter) SaveAnalysis(ctx context.Context, trackID string, result domain.AnalysisResult) (domain.AudioAnalysis, error) {
	result = result.Normalize()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.AudioAnalysis{}, fmt.Errorf("postgres: begin transaction: %w: %w", domain.ErrPersistence, err)
	}
	defer tx.Rollback()

	// Lock the parent so concurrent saves for the same track serialize here.
	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT 1 FROM tracks WHERE id = $1 FOR UPDATE", trackID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AudioAnalysis{}, domain.ErrTrackNotFound
		}
		return domain.AudioAnalysis{}, fmt.Errorf("postgres: check track %s: %w: %w", trackID, domain.ErrPersistence, err)
	}

	now := time.Now().UTC()
	var analysisID string
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO audio_analyses (id, track_id, created_at, updated_at) VALUES ($1, $2, $3, $3)
		ON CONFLICT (track_id) DO UPDATE SET updated_at = EXCLUDED.updated_at
		RETURNING id
	`, uuid.NewString(), trackID, now).Scan(&analysisID); err != nil {
		return domain.AudioAnalysis{}, fmt.Errorf("postgres: save analysis: %w: %w", domain.ErrPersistence, err)
	}

	subRecords := []struct {
		table  string
		column string
		value  any
	}{
		{"genre_analyses", "genres", pq.Array(result.Genres)},
		{"mood_analyses", "moods", pq.Array(result.Moods)},
		{"tempo_analyses", "tempo", result.Tempo},
		{"key_analyses", "musical_key", result.Key},
		{"time_signature_analyses", "time_signature", result.TimeSignature},
	}
	for _, sr := range subRecords {
		query := fmt.Sprintf(`
			INSERT INTO %[1]s (id, analysis_id, %[2]s) VALUES ($1, $2, $3)
			ON CONFLICT (analysis_id) DO UPDATE SET %[2]s = EXCLUDED.%[2]s
		`, sr.table, sr.column)
		if _, err := tx.ExecContext(ctx, query, uuid.NewString(), analysisID, sr.value); err != nil {
			return domain.AudioAnalysis{}, fmt.Errorf("postgres: save %s: %w: %w", sr.table, domain.ErrPersistence, err)
		}
	}

	saved, err := loadAnalysis(ctx, tx, trackID)
	if err != nil {
		return domain.AudioAnalysis{}, fmt.Errorf("postgres: reload analysis: %w: %w", domain.ErrPersistence, err)
	}

	if err := tx.Commit(); err != nil {
		return domain.AudioAnalysis{}, fmt.Errorf("postgres: commit: %w: %w", domain.ErrPersistence, err)
	}

	a.log.Debug("postgres: analysis saved", zap.String("track_id", trackID), zap.String("analysis_id", analysisID))
	return saved, nil
}

func (a *Adapter) GetAnalysis(ctx context.Context, trackID string) (domain.AudioAnalysis, error) {
	an, err := loadAnalysis(ctx, a.db, trackID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AudioAnalysis{}, domain.ErrAnalysisNotFound
	}
	if err != nil {
		return domain.AudioAnalysis{}, fmt.Errorf("postgres: load analysis for %s: %w: %w", trackID, domain.ErrPersistence, err)
	}
	return an, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadAnalysis(ctx context.Context, q queryRower, trackID string) (domain.AudioAnalysis, error) {
	var an domain.AudioAnalysis
	var genres, moods pq.StringArray
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
		WHERE a.track_id = $1
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
	an.GenreAnalysis.Genres = append([]string{}, genres...)
	an.MoodAnalysis.Moods = append([]string{}, moods...)
	return an, nil
}

// Migrate creates the schema. It is safe to run repeatedly.
func (a *Adapter) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS tracks (
			id TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			title TEXT NOT NULL,
			artist TEXT NOT NULL,
			duration DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`ALTER TABLE tracks ADD COLUMN IF NOT EXISTS album TEXT`,
		`CREATE TABLE IF NOT EXISTS audio_analyses (
			id TEXT PRIMARY KEY,
			track_id TEXT NOT NULL UNIQUE REFERENCES tracks(id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`ALTER TABLE audio_analyses ADD COLUMN IF NOT EXISTS updated_at TIMESTAMPTZ NOT NULL DEFAULT now()`,
		`CREATE TABLE IF NOT EXISTS genre_analyses (
			id TEXT PRIMARY KEY,
			analysis_id TEXT NOT NULL UNIQUE REFERENCES audio_analyses(id) ON DELETE CASCADE,
			genres TEXT[] NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS mood_analyses (
			id TEXT PRIMARY KEY,
			analysis_id TEXT NOT NULL UNIQUE REFERENCES audio_analyses(id) ON DELETE CASCADE,
			moods TEXT[] NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tempo_analyses (
			id TEXT PRIMARY KEY,
			analysis_id TEXT NOT NULL UNIQUE REFERENCES audio_analyses(id) ON DELETE CASCADE,
			tempo INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS key_analyses (
			id TEXT PRIMARY KEY,
			analysis_id TEXT NOT NULL UNIQUE REFERENCES audio_analyses(id) ON DELETE CASCADE,
			musical_key TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS time_signature_analyses (
			id TEXT PRIMARY KEY,
			analysis_id TEXT NOT NULL UNIQUE REFERENCES audio_analyses(id) ON DELETE CASCADE,
			time_signature TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
