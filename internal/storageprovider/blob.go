package storageprovider

import (
	"context"
	"errors"
	"io"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/getsentry/callprof/internal/storageutil"
)

// Blob implements storageutil.ObjectHandler and storageutil.Lister on any
// bucket gocloud can open (gs://, file://, mem://).
type Blob struct {
	Bucket *blob.Bucket
}

// OpenBlob opens the bucket at url. The driver must be linked in by the
// caller.
func OpenBlob(ctx context.Context, url string) (*Blob, error) {
	b, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, err
	}
	return &Blob{Bucket: b}, nil
}

func (b *Blob) Put(ctx context.Context, name string) (io.WriteCloser, error) {
	return b.Bucket.NewWriter(ctx, name, nil)
}

func (b *Blob) Get(ctx context.Context, name string) (storageutil.ReadSizeCloser, error) {
	r, err := b.Bucket.NewReader(ctx, name, nil)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, storageutil.ErrObjectNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (b *Blob) Delete(ctx context.Context, name string) error {
	err := b.Bucket.Delete(ctx, name)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return storageutil.ErrObjectNotFound
	}
	return err
}

func (b *Blob) List(ctx context.Context, prefix string, visit func(storageutil.ObjectInfo) error) error {
	it := b.Bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if obj.IsDir {
			continue
		}
		err = visit(storageutil.ObjectInfo{
			Name:    obj.Key,
			Size:    obj.Size,
			ModTime: obj.ModTime,
		})
		if err != nil {
			return err
		}
	}
}

func (b *Blob) Close() error {
	return b.Bucket.Close()
}
