// Package media stores campaign images on the local filesystem and deletes
// them once no promotion or voucher references them.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Store maps image URLs of the form "/media/<name>" onto files under a root
// directory. Release is a no-op for URLs outside that space, so externally
// hosted images pass through untouched.
type Store struct {
	root   string
	logger *slog.Logger
}

// NewStore creates a filesystem-backed image store rooted at dir.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &Store{root: dir, logger: logger}, nil
}

// Release deletes the stored file backing the given image URL. Deleting a
// file that is already gone is not an error.
func (s *Store) Release(_ context.Context, url string) error {
	name, ok := strings.CutPrefix(url, "/media/")
	if !ok {
		return nil
	}

	// Reject names that escape the media root.
	name = filepath.Clean(name)
	if name == "." || strings.HasPrefix(name, "..") || filepath.IsAbs(name) {
		return fmt.Errorf("invalid media name %q", name)
	}

	path := filepath.Join(s.root, name)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("remove media file: %w", err)
	}

	s.logger.Info("media file released", slog.String("path", path))
	return nil
}
