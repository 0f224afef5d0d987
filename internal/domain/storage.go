package domain

import (
	"context"
	"io"
)

// FileStore persists uploaded documents under randomized names.
type FileStore interface {
	Save(ctx context.Context, prefix, ext string, r io.Reader) (path string, err error)
	Open(path string) (io.ReadCloser, error)
	Remove(path string) error
}
