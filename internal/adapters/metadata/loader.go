// Package metadata reads container tags and stream properties from uploaded
// audio files and manages the uploads directory they live in.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"github.com/ewilliams-labs/widdle/internal/core/domain"
	"github.com/hajimehoshi/go-mp3"
	"go.uber.org/zap"
)

// go-mp3 always decodes to 16-bit stereo.
const bytesPerSample = 4

// Loader implements ports.MetadataLoader over files in one directory.
type Loader struct {
	dir string
	log *zap.Logger
}

func NewLoader(dir string, log *zap.Logger) *Loader {
	return &Loader{dir: dir, log: log}
}

// Load reads tags with dhowden/tag and the duration with go-mp3. A file that
// yields neither is ErrUnsupportedFormat.
func (l *Loader) Load(ctx context.Context, filename string) (domain.AudioMetadata, error) {
	path, err := resolve(l.dir, filename)
	if err != nil {
		return domain.AudioMetadata{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.AudioMetadata{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.AudioMetadata{}, fmt.Errorf("%w: %s", domain.ErrFileNotFound, filename)
		}
		return domain.AudioMetadata{}, fmt.Errorf("metadata: open %s: %w", filename, err)
	}
	defer func() { _ = f.Close() }()

	md := domain.AudioMetadata{Format: map[string]any{}}

	tags, tagErr := tag.ReadFrom(f)
	if tagErr == nil {
		applyTags(&md, tags)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return domain.AudioMetadata{}, fmt.Errorf("metadata: rewind %s: %w", filename, err)
	}
	seconds, sampleRate, mp3Err := mp3Duration(f)
	if mp3Err == nil {
		md.DurationSeconds = seconds
		md.Format["codec"] = "MPEG 1 Layer 3"
		md.Format["sampleRate"] = sampleRate
		md.Format["numberOfChannels"] = 2
	}

	if tagErr != nil && mp3Err != nil {
		l.log.Debug("metadata: unreadable file",
			zap.String("filename", filename),
			zap.NamedError("tag_error", tagErr),
			zap.NamedError("mp3_error", mp3Err),
		)
		return domain.AudioMetadata{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, filename)
	}
	return md, nil
}

func applyTags(md *domain.AudioMetadata, m tag.Metadata) {
	md.Title = domain.StringPtr(strings.TrimSpace(m.Title()))
	md.Artist = domain.StringPtr(strings.TrimSpace(m.Artist()))
	md.Album = domain.StringPtr(strings.TrimSpace(m.Album()))

	md.Format["container"] = string(m.FileType())
	md.Format["tagType"] = string(m.Format())
	if g := m.Genre(); g != "" {
		md.Format["genre"] = g
	}
	if y := m.Year(); y != 0 {
		md.Format["year"] = y
	}
	if n, total := m.Track(); n != 0 {
		md.Format["track"] = map[string]int{"no": n, "of": total}
	}
	if c := m.Composer(); c != "" {
		md.Format["composer"] = c
	}
}

func mp3Duration(r io.ReadSeeker) (float64, int, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return 0, 0, err
	}
	if d.SampleRate() <= 0 || d.Length() <= 0 {
		return 0, 0, errors.New("no decodable frames")
	}
	return float64(d.Length()) / bytesPerSample / float64(d.SampleRate()), d.SampleRate(), nil
}

// resolve maps a stored file name onto dir. Names must be bare file names.
func resolve(dir, filename string) (string, error) {
	if filename == "" || filename == "." || strings.Contains(filename, "..") ||
		strings.ContainsAny(filename, `/\`) || filepath.IsAbs(filename) {
		return "", fmt.Errorf("%w: invalid file name %q", domain.ErrInvalidArgument, filename)
	}
	return filepath.Join(dir, filename), nil
}
