package domain

import "time"

// UnknownArtist stands in when a file carries no artist tag.
const UnknownArtist = "Unknown Artist"

// Track represents an uploaded (or generated) audio file in the domain layer.
type Track struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"` // name inside the uploads directory
	Title     string    `json:"title"`
	Artist    string    `json:"artist"`
	Album     string    `json:"album,omitempty"`
	Duration  float64   `json:"duration"` // seconds
	CreatedAt time.Time `json:"createdAt"`
}

// NewTrack builds a track for a stored file, filling title and artist from the
// file's metadata when present.
func NewTrack(id, filename string, md AudioMetadata) (Track, error) {
	if id == "" || filename == "" {
		return Track{}, ErrInvalidArgument
	}
	t := Track{
		ID:       id,
		Filename: filename,
		Title:    filename,
		Artist:   UnknownArtist,
		Duration: md.DurationSeconds,
	}
	if md.Title != nil && *md.Title != "" {
		t.Title = *md.Title
	}
	if md.Artist != nil && *md.Artist != "" {
		t.Artist = *md.Artist
	}
	if md.Album != nil {
		t.Album = *md.Album
	}
	return t, nil
}
