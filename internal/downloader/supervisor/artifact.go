package supervisor

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/dhowden/tag"

	"github.com/cuongbtq/media-relay/internal/downloader/domain"
)

// applyTags overlays embedded audio tags on the artifact. Missing or
// unreadable tags keep the probe values.
func (s *Supervisor) applyTags(artifact *domain.Artifact) {
	md, err := readTags(artifact.Path)
	if err != nil {
		s.logger.Debug("No audio tags read",
			slog.String("path", artifact.Path),
			slog.String("error", err.Error()),
		)
		return
	}

	if v := md.Title(); v != "" {
		artifact.Title = v
	}
	if v := md.Artist(); v != "" {
		artifact.Artist = v
	}
	if v := md.Album(); v != "" {
		artifact.Album = v
	}
}

func readTags(path string) (tag.Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	md, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read tags: %w", err)
	}
	return md, nil
}

// OpenArtifact returns the path and size of one of the chat's finished artifacts
func (s *Supervisor) OpenArtifact(chatID int64, name string) (string, int64, error) {
	path, info, err := s.storage.Lookup(chatID, name)
	if err != nil {
		return "", 0, err
	}
	return path, info.Size(), nil
}

// ReleaseArtifact deletes an artifact after the adapter delivered it and
// sweeps the output directory
func (s *Supervisor) ReleaseArtifact(chatID int64, name string) error {
	path, _, err := s.storage.Lookup(chatID, name)
	if err != nil {
		return err
	}
	if err := s.storage.Delete(path); err != nil {
		return err
	}

	s.logger.Info("Artifact released",
		slog.Int64("chat_id", chatID),
		slog.String("name", name),
	)

	if _, err := s.RequestCleanup(); err != nil {
		s.logger.Warn("Cleanup after release failed", slog.String("error", err.Error()))
	}
	return nil
}
