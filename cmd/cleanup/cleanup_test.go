package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"gocloud.dev/blob/memblob"

	"github.com/getsentry/callprof/internal/storageprovider"
	"github.com/getsentry/callprof/internal/storageutil"
)

func TestCleanup(t *testing.T) {
	tests := []struct {
		name        string
		now         time.Time
		wantDeleted int
	}{
		{
			name:        "within retention",
			now:         time.Now(),
			wantDeleted: 0,
		},
		{
			name:        "past retention",
			now:         time.Now().Add(72 * time.Hour),
			wantDeleted: 2,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ctx := context.Background()
			bucket := &storageprovider.Blob{Bucket: memblob.OpenBucket(nil)}
			defer bucket.Close()
			for _, name := range []string{"snapshots/a", "snapshots/b", "other/c"} {
				if err := storageutil.CompressedWrite(ctx, bucket, name, map[string]string{"id": name}); err != nil {
					t.Fatal(err)
				}
			}

			deleted, err := cleanup(ctx, bucket, test.now, 1)
			if err != nil {
				t.Fatal(err)
			}
			if deleted != test.wantDeleted {
				t.Fatalf("expected %d deleted snapshots, got %d", test.wantDeleted, deleted)
			}
			var v map[string]string
			if err := storageutil.UnmarshalCompressed(ctx, bucket, "other/c", &v); err != nil {
				t.Fatalf("expected objects outside the prefix to survive: %v", err)
			}
			err = storageutil.UnmarshalCompressed(ctx, bucket, "snapshots/a", &v)
			if gone := errors.Is(err, storageutil.ErrObjectNotFound); gone != (test.wantDeleted > 0) {
				t.Fatalf("unexpected state of snapshots/a: %v", err)
			}
		})
	}
}
