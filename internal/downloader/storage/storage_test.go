package storage

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/media-relay/internal/downloader/domain"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s
}

func writeFile(t *testing.T, dir, name string, size int, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	if !mtime.IsZero() {
		require.NoError(t, os.Chtimes(path, mtime, mtime))
	}
	return path
}

func TestPrefix(t *testing.T) {
	ts := time.UnixMilli(1714564800123)
	assert.Equal(t, "42_1714564800123_", Prefix(42, ts))
	assert.Equal(t, "-1001_1714564800123_", Prefix(-1001, ts))
}

func TestTemplate(t *testing.T) {
	s := newTestStorage(t)
	assert.Equal(t, filepath.Join(s.Dir(), "5_10_%(title)s.%(ext)s"), s.Template("5_10_"))
}

func TestResolve(t *testing.T) {
	s := newTestStorage(t)
	prefix := "7_1000_"

	_, _, err := s.Resolve(prefix)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOutputNotFound)

	writeFile(t, s.Dir(), prefix+"Song.webm.part", 4096, time.Time{})
	writeFile(t, s.Dir(), "8_1000_Other.mp4", 9999, time.Time{})

	_, _, err = s.Resolve(prefix)
	assert.ErrorIs(t, err, domain.ErrOutputNotFound, "partial files are not results")

	small := writeFile(t, s.Dir(), prefix+"Song.f140.m4a", 10, time.Time{})
	big := writeFile(t, s.Dir(), prefix+"Song.mp4", 100, time.Time{})

	path, size, err := s.Resolve(prefix)
	require.NoError(t, err)
	assert.Equal(t, big, path)
	assert.Equal(t, int64(100), size)
	assert.NotEqual(t, small, path)
}

func TestCurrentSize_IncludesPartial(t *testing.T) {
	s := newTestStorage(t)
	prefix := "7_2000_"

	size, err := s.CurrentSize(prefix)
	require.NoError(t, err)
	assert.Zero(t, size)

	writeFile(t, s.Dir(), prefix+"clip.mp4.part", 2048, time.Time{})
	size, err = s.CurrentSize(prefix)
	require.NoError(t, err)
	assert.Equal(t, int64(2048), size)
}

func TestRemove(t *testing.T) {
	s := newTestStorage(t)
	writeFile(t, s.Dir(), "1_5_a.mp4", 1, time.Time{})
	writeFile(t, s.Dir(), "1_5_a.mp4.part", 1, time.Time{})
	keep := writeFile(t, s.Dir(), "1_6_b.mp4", 1, time.Time{})

	assert.Equal(t, 2, s.Remove("1_5_"))
	assert.FileExists(t, keep)
	assert.Equal(t, 1, s.Count())
}

func TestLookup(t *testing.T) {
	s := newTestStorage(t)
	writeFile(t, s.Dir(), "1_5_clip.mp4", 3, time.Time{})
	require.NoError(t, os.Mkdir(filepath.Join(s.Dir(), "sub"), 0o755))

	writeFile(t, s.Dir(), "1_6_clip.mp4.part", 3, time.Time{})
	writeFile(t, s.Dir(), "1_7_clip.f137.mp4.part-Frag3", 3, time.Time{})
	writeFile(t, s.Dir(), "2_5_other.mp4", 3, time.Time{})
	require.NoError(t, os.Mkdir(filepath.Join(s.Dir(), "1_sub"), 0o755))

	path, info, err := s.Lookup(1, "1_5_clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Dir(), "1_5_clip.mp4"), path)
	assert.Equal(t, int64(3), info.Size())

	tests := []struct {
		name     string
		artifact string
	}{
		{name: "empty", artifact: ""},
		{name: "dot", artifact: "."},
		{name: "parent", artifact: ".."},
		{name: "traversal", artifact: "../etc/passwd"},
		{name: "subpath", artifact: "sub/x"},
		{name: "backslash", artifact: `a\b`},
		{name: "directory", artifact: "sub"},
		{name: "own directory", artifact: "1_sub"},
		{name: "partial download", artifact: "1_6_clip.mp4.part"},
		{name: "fragment", artifact: "1_7_clip.f137.mp4.part-Frag3"},
		{name: "another chat", artifact: "2_5_other.mp4"},
		{name: "chat id as longer prefix", artifact: "11_5_clip.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.Lookup(1, tt.artifact)
			assert.ErrorIs(t, err, domain.ErrInvalidArtifact)
		})
	}

	_, _, err = s.Lookup(1, "1_9_missing.mp4")
	assert.ErrorIs(t, err, domain.ErrOutputNotFound)
}

func TestSweep(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	maxAge := 24 * time.Hour

	old := writeFile(t, dir, "old.mp4", 1, now.Add(-maxAge-time.Minute))
	fresh := writeFile(t, dir, "fresh.mp4", 1, now.Add(-maxAge+time.Minute))
	active := writeFile(t, dir, "9_1_active.mp4.part", 1, now)

	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(sub, 0o755))
	nestedOld := writeFile(t, sub, "nested-old.mp4", 1, now.Add(-48*time.Hour))
	require.NoError(t, os.Chtimes(sub, now.Add(-48*time.Hour), now.Add(-48*time.Hour)))

	removed, err := Sweep(dir, maxAge, now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.FileExists(t, active)
	assert.FileExists(t, nestedOld, "sweep is not recursive")
	assert.DirExists(t, sub)
}

func TestSweep_MissingDir(t *testing.T) {
	removed, err := Sweep(filepath.Join(t.TempDir(), "nope"), time.Hour, time.Now())
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestStorage_Sweep(t *testing.T) {
	s := newTestStorage(t)
	writeFile(t, s.Dir(), "stale.mp3", 1, time.Now().Add(-3*time.Hour))
	writeFile(t, s.Dir(), "new.mp3", 1, time.Time{})

	removed, err := s.Sweep(2 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, s.Count())
}
