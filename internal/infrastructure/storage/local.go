package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrOutsideRoot is returned when a path does not resolve inside the store's directory.
var ErrOutsideRoot = errors.New("path outside upload directory")

// LocalStore writes uploads to a directory under randomized names. Only the
// path and the client's original file name are kept by callers.
type LocalStore struct {
	root   string
	logger *slog.Logger
}

// NewLocalStore creates the upload directory if needed
func NewLocalStore(root string, logger *slog.Logger) (*LocalStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve upload directory: %w", err)
	}
	return &LocalStore{root: abs, logger: logger}, nil
}

// Save streams r to <root>/<prefix>-<uuid><ext> and returns the file's path.
func (s *LocalStore) Save(ctx context.Context, prefix, ext string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s-%s%s", prefix, uuid.NewString(), strings.ToLower(ext))
	path := filepath.Join(s.root, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("write upload file: %w", err)
	}

	s.logger.Debug("upload stored",
		slog.String("path", path),
		slog.Int64("bytes", n),
	)
	return path, nil
}

// Open opens a stored file for reading.
func (s *LocalStore) Open(path string) (io.ReadCloser, error) {
	clean, err := s.inside(path)
	if err != nil {
		return nil, err
	}
	return os.Open(clean)
}

// Remove deletes a stored file. A file that is already gone is not an error.
func (s *LocalStore) Remove(path string) error {
	clean, err := s.inside(path)
	if err != nil {
		return err
	}
	if err := os.Remove(clean); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove upload file: %w", err)
	}
	return nil
}

func (s *LocalStore) inside(path string) (string, error) {
	clean := filepath.Clean(path)
	if rel, err := filepath.Rel(s.root, clean); err != nil || strings.HasPrefix(rel, "..") {
		return "", ErrOutsideRoot
	}
	return clean, nil
}
