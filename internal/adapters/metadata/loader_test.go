package metadata

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bogem/id3v2"
	"github.com/ewilliams-labs/widdle/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeTaggedFile(t *testing.T, dir, name, title, artist, album string) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	defer f.Close()

	tag := id3v2.NewEmptyTag()
	tag.SetVersion(3)
	tag.SetDefaultEncoding(id3v2.EncodingISO)
	tag.SetTitle(title)
	tag.SetArtist(artist)
	tag.SetAlbum(album)
	tag.SetGenre("Rock")
	_, err = tag.WriteTo(f)
	require.NoError(t, err)
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	writeTaggedFile(t, dir, "tagged.mp3", "Song", "Band", "Record")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "garbage.mp3"), []byte("definitely not audio"), 0o644))

	loader := NewLoader(dir, zap.NewNop())

	tests := []struct {
		name     string
		filename string
		wantErr  error
		check    func(t *testing.T, md domain.AudioMetadata)
	}{
		{
			name:     "id3 tags",
			filename: "tagged.mp3",
			check: func(t *testing.T, md domain.AudioMetadata) {
				require.NotNil(t, md.Title)
				require.NotNil(t, md.Artist)
				require.NotNil(t, md.Album)
				assert.Equal(t, "Song", *md.Title)
				assert.Equal(t, "Band", *md.Artist)
				assert.Equal(t, "Record", *md.Album)
				assert.Equal(t, "Rock", md.Format["genre"])
				assert.Equal(t, 0.0, md.DurationSeconds)
			},
		},
		{name: "missing file", filename: "nope.mp3", wantErr: domain.ErrFileNotFound},
		{name: "unsupported content", filename: "garbage.mp3", wantErr: domain.ErrUnsupportedFormat},
		{name: "parent traversal", filename: "../etc/passwd", wantErr: domain.ErrInvalidArgument},
		{name: "nested path", filename: "sub/file.mp3", wantErr: domain.ErrInvalidArgument},
		{name: "empty name", filename: "", wantErr: domain.ErrInvalidArgument},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			md, err := loader.Load(context.Background(), tt.filename)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, md)
		})
	}
}

func TestFileStore_StoreAndRemove(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	store := NewFileStore(dir)
	store.now = func() time.Time { return time.UnixMilli(1700000000123) }
	ctx := context.Background()

	name, err := store.Store(ctx, "C:\\music\\My Song.mp3", []byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, "1700000000123-My Song.mp3", name)

	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)

	require.NoError(t, store.Remove(ctx, name))
	assert.ErrorIs(t, store.Remove(ctx, name), domain.ErrFileNotFound)
}

func TestFileStore_StoreNeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	store.now = func() time.Time { return time.UnixMilli(1700000000123) }
	ctx := context.Background()

	first, err := store.Store(ctx, "song.mp3", []byte("first"))
	require.NoError(t, err)
	second, err := store.Store(ctx, "song.mp3", []byte("second"))
	require.NoError(t, err)

	assert.Equal(t, "1700000000123-song.mp3", first)
	assert.NotEqual(t, first, second)
	assert.Regexp(t, `^1700000000123-[0-9a-f]{8}-song\.mp3$`, second)

	for name, want := range map[string]string{first: "first", second: "second"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
	}

	// Removing the second upload leaves the first in place.
	require.NoError(t, store.Remove(ctx, second))
	_, err = os.Stat(filepath.Join(dir, first))
	assert.NoError(t, err)
}

func TestFileStore_RejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)

	for _, name := range []string{"", "..", "/", "   "} {
		_, err := store.Store(context.Background(), name, []byte("x"))
		assert.ErrorIs(t, err, domain.ErrInvalidArgument, "name %q", name)
	}

	_, err := store.Store(context.Background(), "../../escape.mp3", []byte("x"))
	require.NoError(t, err)
	_, statErr := os.Stat(filepath.Join(filepath.Dir(dir), "escape.mp3"))
	assert.True(t, os.IsNotExist(statErr))
}
