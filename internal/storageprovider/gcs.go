package storageprovider

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/getsentry/callprof/internal/storageutil"
)

// Gcs implements storageutil.ObjectHandler and storageutil.Lister on a
// Google Cloud Storage bucket.
type Gcs struct {
	BucketHandle *storage.BucketHandle
}

// Put writes a file to the storage provider with name being the path.
func (g *Gcs) Put(ctx context.Context, name string) (io.WriteCloser, error) {
	return g.BucketHandle.Object(name).NewWriter(ctx), nil
}

// Get reads a file from the storage provider with name being the path.
// If a key was not found, it will return ErrObjectNotFound.
func (g *Gcs) Get(ctx context.Context, name string) (storageutil.ReadSizeCloser, error) {
	rc, err := g.BucketHandle.Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, storageutil.ErrObjectNotFound
	}
	return rc, err
}

func (g *Gcs) Delete(ctx context.Context, name string) error {
	err := g.BucketHandle.Object(name).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return storageutil.ErrObjectNotFound
	}
	return err
}

func (g *Gcs) List(ctx context.Context, prefix string, visit func(storageutil.ObjectInfo) error) error {
	it := g.BucketHandle.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return err
		}
		err = visit(storageutil.ObjectInfo{
			Name:    attrs.Name,
			Size:    attrs.Size,
			ModTime: attrs.Updated,
		})
		if err != nil {
			return err
		}
	}
}
