package domain

import "time"

// Attribute names one analyzed dimension.
type Attribute string

const (
	AttributeGenre         Attribute = "genre"
	AttributeMood          Attribute = "mood"
	AttributeTempo         Attribute = "tempo"
	AttributeKey           Attribute = "key"
	AttributeTimeSignature Attribute = "timeSignature"
)

// Attributes lists every attribute in pipeline order.
var Attributes = []Attribute{
	AttributeGenre,
	AttributeMood,
	AttributeTempo,
	AttributeKey,
	AttributeTimeSignature,
}

// AnalysisResult is the aggregate of one pipeline run. Every attribute is a
// field, so a result is always complete; failed stages hold their zero value.
type AnalysisResult struct {
	Genres        []string `json:"genres"`
	Moods         []string `json:"moods"`
	Tempo         int      `json:"tempo"`
	Key           string   `json:"key"`
	TimeSignature string   `json:"timeSignature"`
}

// NewAnalysisResult returns a result holding every attribute's safe default.
func NewAnalysisResult() AnalysisResult {
	return AnalysisResult{Genres: []string{}, Moods: []string{}}
}

// Values returns the result keyed by attribute name.
func (r AnalysisResult) Values() map[Attribute]any {
	return map[Attribute]any{
		AttributeGenre:         r.Genres,
		AttributeMood:          r.Moods,
		AttributeTempo:         r.Tempo,
		AttributeKey:           r.Key,
		AttributeTimeSignature: r.TimeSignature,
	}
}

// Normalize replaces nil label slices with empty ones.
func (r AnalysisResult) Normalize() AnalysisResult {
	if r.Genres == nil {
		r.Genres = []string{}
	}
	if r.Moods == nil {
		r.Moods = []string{}
	}
	return r
}

type GenreAnalysis struct {
	ID     string   `json:"id"`
	Genres []string `json:"genres"`
}

type MoodAnalysis struct {
	ID    string   `json:"id"`
	Moods []string `json:"moods"`
}

type TempoAnalysis struct {
	ID    string `json:"id"`
	Tempo int    `json:"tempo"`
}

type KeyAnalysis struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

type TimeSignatureAnalysis struct {
	ID            string `json:"id"`
	TimeSignature string `json:"timeSignature"`
}

// AudioAnalysis is the persisted analysis of one track. There is at most one
// per track; re-running the analysis replaces the five sub-records' values.
type AudioAnalysis struct {
	ID                    string                `json:"id"`
	TrackID               string                `json:"trackId"`
	CreatedAt             time.Time             `json:"createdAt"`
	UpdatedAt             time.Time             `json:"updatedAt"`
	GenreAnalysis         GenreAnalysis         `json:"genreAnalysis"`
	MoodAnalysis          MoodAnalysis          `json:"moodAnalysis"`
	TempoAnalysis         TempoAnalysis         `json:"tempoAnalysis"`
	KeyAnalysis           KeyAnalysis           `json:"keyAnalysis"`
	TimeSignatureAnalysis TimeSignatureAnalysis `json:"timeSignatureAnalysis"`
}

// Result projects the persisted record back onto an AnalysisResult.
func (a AudioAnalysis) Result() AnalysisResult {
	return AnalysisResult{
		Genres:        a.GenreAnalysis.Genres,
		Moods:         a.MoodAnalysis.Moods,
		Tempo:         a.TempoAnalysis.Tempo,
		Key:           a.KeyAnalysis.Key,
		TimeSignature: a.TimeSignatureAnalysis.TimeSignature,
	}.Normalize()
}
