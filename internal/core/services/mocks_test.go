package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ewilliams-labs/widdle/internal/core/domain"
)

// --- Mocks ---

// mockRepo is an in-memory ports.Repository.
type mockRepo struct {
	mu       sync.Mutex
	tracks   map[string]domain.Track
	analyses map[string]domain.AudioAnalysis
	saveErr  error
	saves    int
}

func newMockRepo(tracks ...domain.Track) *mockRepo {
	r := &mockRepo{tracks: map[string]domain.Track{}, analyses: map[string]domain.AudioAnalysis{}}
	for _, t := range tracks {
		r.tracks[t.ID] = t
	}
	return r
}

func (m *mockRepo) CreateTrack(ctx context.Context, t domain.Track) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tracks[t.ID]; ok {
		return fmt.Errorf("duplicate: %w", domain.ErrPersistence)
	}
	m.tracks[t.ID] = t
	return nil
}

func (m *mockRepo) GetTrack(ctx context.Context, id string) (domain.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tracks[id]
	if !ok {
		return domain.Track{}, domain.ErrTrackNotFound
	}
	return t, nil
}

func (m *mockRepo) ListTracks(ctx context.Context) ([]domain.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Track{}
	for _, t := range m.tracks {
		out = append(out, t)
	}
	return out, nil
}

func (m *mockRepo) SaveAnalysis(ctx context.Context, trackID string, r domain.AnalysisResult) (domain.AudioAnalysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return domain.AudioAnalysis{}, m.saveErr
	}
	if _, ok := m.tracks[trackID]; !ok {
		return domain.AudioAnalysis{}, domain.ErrTrackNotFound
	}
	a, ok := m.analyses[trackID]
	if !ok {
		a = domain.AudioAnalysis{ID: "an-" + trackID, TrackID: trackID, CreatedAt: time.Now()}
	}
	a.UpdatedAt = time.Now()
	a.GenreAnalysis.Genres = r.Genres
	a.MoodAnalysis.Moods = r.Moods
	a.TempoAnalysis.Tempo = r.Tempo
	a.KeyAnalysis.Key = r.Key
	a.TimeSignatureAnalysis.TimeSignature = r.TimeSignature
	m.analyses[trackID] = a
	return a, nil
}

func (m *mockRepo) GetAnalysis(ctx context.Context, trackID string) (domain.AudioAnalysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.analyses[trackID]
	if !ok {
		return domain.AudioAnalysis{}, domain.ErrAnalysisNotFound
	}
	return a, nil
}

func (m *mockRepo) Ping(ctx context.Context) error { return nil }
func (m *mockRepo) Close() error                   { return nil }

func (m *mockRepo) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// mockLoader returns fixed metadata, or err, for every file.
type mockLoader struct {
	md    domain.AudioMetadata
	err   error
	calls atomic.Int32
}

func (m *mockLoader) Load(ctx context.Context, filename string) (domain.AudioMetadata, error) {
	m.calls.Add(1)
	if m.err != nil {
		return domain.AudioMetadata{}, m.err
	}
	return m.md, nil
}

// mockPipeline returns result and tracks how many runs overlap.
type mockPipeline struct {
	result  domain.AnalysisResult
	delay   time.Duration
	runs    atomic.Int32
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (m *mockPipeline) Run(ctx context.Context, md domain.AudioMetadata) domain.AnalysisResult {
	m.runs.Add(1)
	n := m.active.Add(1)
	for {
		seen := m.maxSeen.Load()
		if n <= seen || m.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(m.delay)
	m.active.Add(-1)
	return m.result
}

// mockFiles is an in-memory ports.FileStore.
type mockFiles struct {
	mu      sync.Mutex
	stored  map[string][]byte
	removed []string
	err     error
}

func newMockFiles() *mockFiles { return &mockFiles{stored: map[string][]byte{}} }

func (m *mockFiles) Store(ctx context.Context, originalName string, data []byte) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	name := "1700000000000-" + originalName
	m.stored[name] = data
	return name, nil
}

func (m *mockFiles) Remove(ctx context.Context, filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stored, filename)
	m.removed = append(m.removed, filename)
	return nil
}

// mockEncoder records the last encode request.
type mockEncoder struct {
	inputs []string
	output string
	err    error
}

func (m *mockEncoder) Encode(ctx context.Context, inputs []string, output string) error {
	m.inputs = inputs
	m.output = output
	return m.err
}

// mockInference answers every call with text, or err.
type mockInference struct {
	text       string
	err        error
	lastSystem string
	lastUser   string
	calls      int
}

func (m *mockInference) Infer(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.calls++
	m.lastSystem = systemPrompt
	m.lastUser = userPrompt
	if m.err != nil {
		return "", m.err
	}
	return m.text, nil
}

func sampleTrack(id string) domain.Track {
	return domain.Track{
		ID:       id,
		Filename: "1700000000000-" + id + ".mp3",
		Title:    "Song " + id,
		Artist:   "Artist " + id,
		Duration: 100,
	}
}

func sampleResult() domain.AnalysisResult {
	return domain.AnalysisResult{
		Genres:        []string{"Rock", "Pop"},
		Moods:         []string{"Happy"},
		Tempo:         120,
		Key:           "C major",
		TimeSignature: "4/4",
	}
}
