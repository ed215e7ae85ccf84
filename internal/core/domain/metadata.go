package domain

// AudioMetadata is the input of one analysis run. Format carries container
// fields (codec, file type, year, raw tag values) through to the analyzers
// without interpretation.
type AudioMetadata struct {
	Title           *string        `json:"title,omitempty"`
	Artist          *string        `json:"artist,omitempty"`
	Album           *string        `json:"album,omitempty"`
	DurationSeconds float64        `json:"durationSeconds"`
	Format          map[string]any `json:"format,omitempty"`
}

// StringPtr returns nil for an empty string, otherwise a pointer to s.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
