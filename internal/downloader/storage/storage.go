package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuongbtq/media-relay/internal/downloader/domain"
)

// partialSuffixes are leftovers the extraction tool writes while a transfer is running
var partialSuffixes = []string{".part", ".ytdl", ".temp", ".tmp"}

// Storage handles all filesystem operations on the flat output directory
type Storage struct {
	dir    string
	logger *slog.Logger
}

// NewStorage creates the output directory if needed and returns a Storage for it
func NewStorage(dir string, logger *slog.Logger) (*Storage, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir %s: %w", abs, err)
	}

	return &Storage{
		dir:    abs,
		logger: logger,
	}, nil
}

// Dir returns the absolute output directory
func (s *Storage) Dir() string {
	return s.dir
}

// Prefix returns the file name prefix owned by one download attempt
func Prefix(chatID int64, ts time.Time) string {
	return fmt.Sprintf("%d_%d_", chatID, ts.UnixMilli())
}

// Template returns the extraction tool output template for a prefix
func (s *Storage) Template(prefix string) string {
	return filepath.Join(s.dir, prefix+"%(title)s.%(ext)s")
}

// Resolve finds the finished file written under prefix.
// Partial files are ignored; the largest match wins.
func (s *Storage) Resolve(prefix string) (string, int64, error) {
	path, size, err := s.largest(prefix, false)
	if err != nil {
		return "", 0, err
	}
	if path == "" {
		return "", 0, fmt.Errorf("%w: %s*", domain.ErrOutputNotFound, prefix)
	}
	return path, size, nil
}

// CurrentSize returns the size of the largest file under prefix, partial files included
func (s *Storage) CurrentSize(prefix string) (int64, error) {
	_, size, err := s.largest(prefix, true)
	return size, err
}

func (s *Storage) largest(prefix string, includePartial bool) (string, int64, error) {
	matches, err := filepath.Glob(s.pattern(prefix))
	if err != nil {
		return "", 0, fmt.Errorf("failed to glob output dir: %w", err)
	}

	var best string
	var bestSize int64 = -1
	for _, m := range matches {
		if !includePartial && isPartial(m) {
			continue
		}
		info, err := os.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if info.Size() > bestSize {
			best, bestSize = m, info.Size()
		}
	}

	if best == "" {
		return "", 0, nil
	}
	return best, bestSize, nil
}

// Remove deletes every file under prefix, partial leftovers included
func (s *Storage) Remove(prefix string) int {
	matches, err := filepath.Glob(s.pattern(prefix))
	if err != nil {
		return 0
	}

	removed := 0
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			s.logger.Warn("Failed to remove output file",
				slog.String("path", m),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed++
	}
	return removed
}

// Delete removes a single artifact by path
func (s *Storage) Delete(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

// Lookup maps a chat's artifact name to its path inside the output directory.
// Names with path separators, partial downloads and files owned by another
// chat are rejected.
func (s *Storage) Lookup(chatID int64, name string) (string, fs.FileInfo, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || name != filepath.Base(name) {
		return "", nil, fmt.Errorf("%w: %q", domain.ErrInvalidArtifact, name)
	}
	if !strings.HasPrefix(name, fmt.Sprintf("%d_", chatID)) || isPartial(name) {
		return "", nil, fmt.Errorf("%w: %q", domain.ErrInvalidArtifact, name)
	}

	path := filepath.Join(s.dir, name)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil, fmt.Errorf("%w: %s", domain.ErrOutputNotFound, name)
		}
		return "", nil, fmt.Errorf("failed to stat artifact: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", nil, fmt.Errorf("%w: %q", domain.ErrInvalidArtifact, name)
	}
	return path, info, nil
}

// Count returns the number of entries in the output directory
func (s *Storage) Count() int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0
	}
	return len(entries)
}

// Sweep deletes files in the output directory older than maxAge
func (s *Storage) Sweep(maxAge time.Duration) (int, error) {
	removed, err := Sweep(s.dir, maxAge, time.Now())
	if err != nil {
		s.logger.Error("Cleanup failed",
			slog.String("dir", s.dir),
			slog.String("error", err.Error()),
		)
		return removed, err
	}

	if removed > 0 {
		s.logger.Info("Cleaned up old files",
			slog.String("dir", s.dir),
			slog.Int("removed", removed),
			slog.Duration("max_age", maxAge),
		)
	}
	return removed, nil
}

// Sweep removes regular files directly inside dir whose modification time is
// before now-maxAge. Subdirectories are not descended. A missing dir counts as empty.
func Sweep(dir string, maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read dir %s: %w", dir, err)
	}

	cutoff := now.Add(-maxAge)
	removed := 0
	var errs []error
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		removed++
	}

	return removed, errors.Join(errs...)
}

func isPartial(path string) bool {
	for _, suffix := range partialSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return strings.Contains(filepath.Base(path), ".part-Frag")
}

// pattern matches every file written under prefix. Prefixes hold only digits and underscores.
func (s *Storage) pattern(prefix string) string {
	return filepath.Join(s.dir, prefix) + "*"
}
