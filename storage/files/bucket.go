// Package files stores uploaded files in a gocloud.dev blob bucket: a local directory by default, or
// any bucket URL registered with the blob package.
package files

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/pkg/errors"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob" // mem:// bucket URLs
	"gocloud.dev/gcerrors"

	"github.com/geoffroyotegbeye/codesens/core"
)

type BucketStorage struct {
	bucket  *blob.Bucket
	baseURL string
}

var _ core.FileStorage = (*BucketStorage)(nil)

// NewStorage opens conf.Uploads.BucketURL when set. Otherwise files go to conf.Uploads.Dir, which is
// created when missing.
func NewStorage(ctx context.Context, conf *core.Config) (*BucketStorage, error) {
	if conf.Uploads.BucketURL != "" {
		bucket, err := blob.OpenBucket(ctx, conf.Uploads.BucketURL)
		if err != nil {
			return nil, errors.Wrap(err, "opening uploads bucket")
		}
		return NewBucketStorage(bucket, conf.Uploads.BaseURL), nil
	}

	bucket, err := fileblob.OpenBucket(conf.Uploads.Dir, &fileblob.Options{CreateDir: true, NoTempDir: true})
	if err != nil {
		return nil, errors.Wrap(err, "opening uploads directory")
	}
	return NewBucketStorage(bucket, conf.Uploads.BaseURL), nil
}

// NewBucketStorage takes ownership of bucket.
func NewBucketStorage(bucket *blob.Bucket, baseURL string) *BucketStorage {
	return &BucketStorage{bucket: bucket, baseURL: baseURL}
}

// checkName refuses anything that is not a plain file name, as well as the metadata sidecars
// fileblob writes next to each file.
func checkName(name string) error {
	if name == "" || name != path.Base(name) || strings.ContainsRune(name, '\\') || strings.HasPrefix(name, ".") ||
		strings.HasSuffix(name, ".attrs") {
		return core.ErrInvalidFileName
	}
	return nil
}

// trapNotFound maps missing blobs to core.ErrFileNotFound.
func trapNotFound(err error, msg string) error {
	if gcerrors.Code(err) == gcerrors.NotFound {
		return core.ErrFileNotFound
	}
	return errors.Wrap(err, msg)
}

// Save only makes the file visible once it is completely written.
func (s *BucketStorage) Save(ctx context.Context, name string, r io.Reader) (int64, error) {
	if err := checkName(name); err != nil {
		return 0, err
	}
	// cancelling the writer's context discards the partial file
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w, err := s.bucket.NewWriter(wctx, name, nil)
	if err != nil {
		return 0, errors.Wrap(err, "creating file")
	}

	n, err := io.Copy(w, r)
	if err != nil {
		cancel()
		_ = w.Close()
		return 0, errors.Wrap(err, "writing file")
	}
	if err = w.Close(); err != nil {
		return 0, errors.Wrap(err, "storing file")
	}
	return n, nil
}

// Open returns the content of name and its content type. The caller closes the reader.
func (s *BucketStorage) Open(ctx context.Context, name string) (io.ReadCloser, string, error) {
	if err := checkName(name); err != nil {
		return nil, "", err
	}
	r, err := s.bucket.NewReader(ctx, name, nil)
	if err != nil {
		return nil, "", trapNotFound(err, "opening file")
	}
	return r, r.ContentType(), nil
}

func (s *BucketStorage) Delete(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := s.bucket.Delete(ctx, name); err != nil {
		return trapNotFound(err, "removing file")
	}
	return nil
}

func (s *BucketStorage) URL(name string) string {
	return s.baseURL + "/" + name
}

func (s *BucketStorage) Close() error {
	return s.bucket.Close()
}
