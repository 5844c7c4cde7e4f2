package main

import (
	"context"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/dgraph-io/badger/v4"

	"github.com/getsentry/callprof/internal/storageprovider"
	"github.com/getsentry/callprof/internal/storageutil"
)

// openSnapshotStore picks a storage provider from the scheme of url.
// badger:// opens a local database directory, gcs:// talks to Cloud Storage
// with the native client and anything else goes through gocloud.
func openSnapshotStore(ctx context.Context, url string) (storageutil.ObjectHandler, io.Closer, error) {
	switch {
	case strings.HasPrefix(url, "badger://"):
		db, err := badger.Open(badger.DefaultOptions(strings.TrimPrefix(url, "badger://")).WithLogger(nil))
		if err != nil {
			return nil, nil, err
		}
		return &storageprovider.Badger{DB: db}, db, nil
	case strings.HasPrefix(url, "gcs://"):
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, err
		}
		return &storageprovider.Gcs{BucketHandle: client.Bucket(strings.TrimPrefix(url, "gcs://"))}, client, nil
	}
	bucket, err := storageprovider.OpenBlob(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	return bucket, bucket, nil
}
