package metadata

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ewilliams-labs/widdle/internal/core/domain"
	"github.com/google/uuid"
)

// FileStore implements ports.FileStore on the local filesystem.
type FileStore struct {
	dir string
	now func() time.Time
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir, now: time.Now}
}

// storeAttempts bounds the retries after a name collision.
const storeAttempts = 3

// Store writes data as "<unix-millis>-<base name>". An existing file is never
// overwritten: on a collision the name gets a short random suffix,
// "<unix-millis>-<8 hex>-<base name>".
func (s *FileStore) Store(ctx context.Context, originalName string, data []byte) (string, error) {
	base := strings.TrimSpace(filepath.Base(strings.ReplaceAll(originalName, `\`, "/")))
	if base == "" || base == "." || base == "/" || base == ".." {
		return "", fmt.Errorf("%w: invalid upload name %q", domain.ErrInvalidArgument, originalName)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("metadata: create uploads dir: %w", err)
	}

	stamp := s.now().UnixMilli()
	name := fmt.Sprintf("%d-%s", stamp, base)
	for attempt := 0; ; attempt++ {
		err := s.create(name, data)
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, fs.ErrExist) || attempt+1 >= storeAttempts {
			return "", err
		}
		name = fmt.Sprintf("%d-%s-%s", stamp, uuid.NewString()[:8], base)
	}
}

func (s *FileStore) create(name string, data []byte) error {
	path, err := resolve(s.dir, name)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("metadata: create %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("metadata: write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("metadata: write %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) Remove(ctx context.Context, filename string) error {
	path, err := resolve(s.dir, filename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", domain.ErrFileNotFound, filename)
		}
		return fmt.Errorf("metadata: remove %s: %w", filename, err)
	}
	return nil
}
