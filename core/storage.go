package core

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

// FileStorage persists uploaded files.
type FileStorage interface {
	// Save stores the content of r under name and returns the number of bytes written.
	Save(ctx context.Context, name string, r io.Reader) (int64, error)
	// Open returns the content of a stored file with its content type. The caller closes it.
	Open(ctx context.Context, name string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, name string) error
	// URL returns the public URL of a stored file.
	URL(name string) string
}

var (
	ErrFileNotFound    = errors.New("file not found")
	ErrInvalidFileName = errors.New("invalid file name")
)
