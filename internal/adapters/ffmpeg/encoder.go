// Package ffmpeg renders mashups by concatenating stored tracks with the
// ffmpeg binary and tagging the result.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2"
	"github.com/ewilliams-labs/widdle/internal/core/domain"
	"go.uber.org/zap"
)

// Encoder implements ports.MashupEncoder.
type Encoder struct {
	binary string
	dir    string
	log    *zap.Logger
}

func NewEncoder(binary, dir string, log *zap.Logger) *Encoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Encoder{binary: binary, dir: dir, log: log}
}

// Encode joins inputs into a 128k mp3 named output and writes its ID3 tags.
func (e *Encoder) Encode(ctx context.Context, inputs []string, output string) error {
	if len(inputs) < domain.MinMashupTracks {
		return domain.ErrTooFewTracks
	}
	paths := make([]string, 0, len(inputs))
	for _, in := range inputs {
		p, err := e.path(in)
		if err != nil {
			return err
		}
		paths = append(paths, p)
	}
	out, err := e.path(output)
	if err != nil {
		return err
	}

	args := []string{
		"-y",
		"-i", "concat:" + strings.Join(paths, "|"),
		"-acodec", "libmp3lame",
		"-b:a", "128k",
		out,
	}
	// #nosec G204 -- binary comes from configuration, paths are validated bare names
	cmd := exec.CommandContext(ctx, e.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	e.log.Info("ffmpeg: encoding mashup", zap.Int("inputs", len(inputs)), zap.String("output", output))
	if err := cmd.Run(); err != nil {
		e.discard(out)
		return fmt.Errorf("ffmpeg: encode %s: %w: %s", output, err, lastLine(stderr.String()))
	}

	if err := writeTags(out); err != nil {
		e.discard(out)
		return fmt.Errorf("ffmpeg: tag %s: %w", output, err)
	}
	return nil
}

// discard removes a partial or untagged output.
func (e *Encoder) discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		e.log.Warn("ffmpeg: failed to remove output", zap.String("path", path), zap.Error(err))
	}
}

func writeTags(path string) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		if tag != nil {
			tag.Close()
		}
		return fmt.Errorf("id3 open error: %w", err)
	}
	defer tag.Close()

	tag.SetVersion(3)
	tag.SetTitle(domain.MashupTitle)
	tag.SetArtist(domain.MashupArtist)

	if err := tag.Save(); err != nil {
		return fmt.Errorf("id3 save error: %w", err)
	}
	return nil
}

func (e *Encoder) path(name string) (string, error) {
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\|`) {
		return "", fmt.Errorf("%w: invalid file name %q", domain.ErrInvalidArgument, name)
	}
	return filepath.Join(e.dir, name), nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Available reports whether the configured binary can be found.
func (e *Encoder) Available() error {
	if _, err := exec.LookPath(e.binary); err != nil {
		return errors.Join(fmt.Errorf("ffmpeg: %q not found", e.binary), err)
	}
	return nil
}
