package ports

import (
	"context"

	"github.com/ewilliams-labs/widdle/internal/core/domain"
)

// MetadataLoader reads a stored audio file and extracts its container metadata.
type MetadataLoader interface {
	// Load fails with domain.ErrFileNotFound or domain.ErrUnsupportedFormat.
	Load(ctx context.Context, filename string) (domain.AudioMetadata, error)
}

// FileStore persists uploaded audio under the uploads directory.
type FileStore interface {
	// Store writes data under a collision-free name derived from originalName
	// and returns the stored file name.
	Store(ctx context.Context, originalName string, data []byte) (string, error)
	Remove(ctx context.Context, filename string) error
}

// MashupEncoder renders source files into a single tagged mp3.
type MashupEncoder interface {
	// Encode concatenates inputs (names inside the uploads directory) into
	// output and returns once the file is complete.
	Encode(ctx context.Context, inputs []string, output string) error
}
