package domain

import "errors"

var ErrDuplicateTrack = errors.New("domain: duplicate track in mashup")

// ErrTooFewTracks is returned when a mashup has fewer than MinMashupTracks sources.
var ErrTooFewTracks = errors.New("domain: at least two tracks are required for a mashup")

const (
	MinMashupTracks = 2

	MashupTitle  = "AI Generated Mashup"
	MashupArtist = "Widdle AI"
)

// Mashup is an ordered combination of source tracks rendered into one file.
type Mashup struct {
	ID     string
	Tracks []Track
}

func NewMashup(id string) (*Mashup, error) {
	if id == "" {
		return nil, ErrInvalidArgument
	}
	return &Mashup{
		ID:     id,
		Tracks: []Track{},
	}, nil
}

// AddTrack appends a source track while preventing the same track from being
// used twice.
func (m *Mashup) AddTrack(t Track) error {
	if t.ID == "" {
		return ErrInvalidArgument
	}
	for _, ex := range m.Tracks {
		if ex.ID == t.ID {
			return ErrDuplicateTrack
		}
	}
	m.Tracks = append(m.Tracks, t)
	return nil
}

// Validate reports whether the mashup can be rendered.
func (m *Mashup) Validate() error {
	if len(m.Tracks) < MinMashupTracks {
		return ErrTooFewTracks
	}
	return nil
}

// Duration is the summed duration of the source tracks in seconds.
func (m *Mashup) Duration() float64 {
	var total float64
	for _, t := range m.Tracks {
		total += t.Duration
	}
	return total
}

// Filenames returns the source file names in mashup order.
func (m *Mashup) Filenames() []string {
	names := make([]string, 0, len(m.Tracks))
	for _, t := range m.Tracks {
		names = append(names, t.Filename)
	}
	return names
}

// AverageTempo averages the non-zero tempos of the given analyses.
func AverageTempo(results []AnalysisResult) int {
	var sum, n int
	for _, r := range results {
		if r.Tempo > 0 {
			sum += r.Tempo
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / n
}
