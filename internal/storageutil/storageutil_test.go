package storageutil_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dgraph-io/badger/v4"
	"github.com/fsouza/fake-gcs-server/fakestorage"
	"github.com/google/uuid"
	"github.com/phayes/freeport"
	"github.com/pierrec/lz4/v4"
	"gocloud.dev/blob/memblob"

	"github.com/getsentry/callprof/internal/storageprovider"
	"github.com/getsentry/callprof/internal/storageutil"
	"github.com/getsentry/callprof/internal/testutil"
)

const bucketName = "snapshots"

var (
	gcsServer *fakestorage.Server
	badgerDB  *badger.DB
)

type Snapshot struct {
	Functions []string `json:"functions"`
	Totals    []int64  `json:"totals"`
}

func TestMain(m *testing.M) {
	port, err := freeport.GetFreePort()
	if err != nil {
		log.Fatalf("no free port found: %v", err)
	}
	publicHost := fmt.Sprintf("127.0.0.1:%d", port)
	gcsServer, err = fakestorage.NewServerWithOptions(fakestorage.Options{
		PublicHost: publicHost,
		Host:       "127.0.0.1",
		Port:       uint16(port),
		Scheme:     "http",
	})
	if err != nil {
		log.Fatalf("couldn't set up gcs server: %v", err)
	}
	os.Setenv("STORAGE_EMULATOR_HOST", publicHost)
	gcsServer.CreateBucketWithOpts(fakestorage.CreateBucketOpts{Name: bucketName})

	badgerDB, err = badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		log.Fatalf("couldn't create an in-memory badgerdb: %s", err.Error())
	}
	code := m.Run()

	err = badgerDB.Close()
	if err != nil {
		log.Printf("closing in-memory badgerdb: %s", err.Error())
	}
	gcsServer.Stop()

	os.Exit(code)
}

func handlers(t *testing.T) map[string]storageutil.ObjectHandler {
	storageClient, err := storage.NewClient(context.Background())
	if err != nil {
		t.Fatalf("we should be able to create a client: %v", err)
	}
	return map[string]storageutil.ObjectHandler{
		"GCS":    &storageprovider.Gcs{BucketHandle: storageClient.Bucket(bucketName)},
		"Badger": &storageprovider.Badger{DB: badgerDB},
		"Blob":   &storageprovider.Blob{Bucket: memblob.OpenBucket(nil)},
	}
}

func TestUploadSnapshot(t *testing.T) {
	ctx := context.Background()
	originalData := Snapshot{
		Functions: []string{"main", "helper"},
		Totals:    []int64{15, 10},
	}
	want, err := json.Marshal(originalData)
	if err != nil {
		t.Fatalf("we should be able to marshal this: %v", err)
	}

	for name, h := range handlers(t) {
		t.Run(name, func(t *testing.T) {
			objectName := uuid.New().String()
			err := storageutil.CompressedWrite(ctx, h, objectName, originalData)
			if err != nil {
				t.Fatalf("we should be able to write: %v", err)
			}
			r, err := h.Get(ctx, objectName)
			if err != nil {
				t.Fatalf("we should be able to read the object: %v", err)
			}
			defer r.Close()
			uncompressedData, err := io.ReadAll(lz4.NewReader(r))
			if err != nil {
				t.Fatalf("we should be able to uncompress the data: %v", err)
			}
			if !bytes.Equal(want, bytes.TrimSpace(uncompressedData)) {
				t.Fatal("data should be identical")
			}
		})
	}
}

func TestDownloadSnapshot(t *testing.T) {
	ctx := context.Background()
	originalData := []byte(`{"functions":["main","helper"],"totals":[15,10]}`)

	var compressedData bytes.Buffer
	w := lz4.NewWriter(&compressedData)
	_, _ = w.Write(originalData)
	if err := w.Close(); err != nil {
		t.Fatalf("we should be able to close the writer: %v", err)
	}

	for name, h := range handlers(t) {
		t.Run(name, func(t *testing.T) {
			objectName := uuid.New().String()
			ow, err := h.Put(ctx, objectName)
			if err != nil {
				t.Fatalf("we should be able to open a writer: %v", err)
			}
			_, _ = ow.Write(compressedData.Bytes())
			if err := ow.Close(); err != nil {
				t.Fatalf("we should be able to write an object: %v", err)
			}

			var snapshot Snapshot
			err = storageutil.UnmarshalCompressed(ctx, h, objectName, &snapshot)
			if err != nil {
				t.Fatalf("we should be able to read the object: %v", err)
			}
			if diff := testutil.Diff(snapshot, Snapshot{
				Functions: []string{"main", "helper"},
				Totals:    []int64{15, 10},
			}); diff != "" {
				t.Fatalf("Result mismatch: got - want +\n%s", diff)
			}
		})
	}
}

func TestMissingObject(t *testing.T) {
	ctx := context.Background()
	for name, h := range handlers(t) {
		t.Run(name, func(t *testing.T) {
			var snapshot Snapshot
			err := storageutil.UnmarshalCompressed(ctx, h, uuid.New().String(), &snapshot)
			if !errors.Is(err, storageutil.ErrObjectNotFound) {
				t.Fatalf("expected ErrObjectNotFound, got %v", err)
			}
			err = h.Delete(ctx, uuid.New().String())
			if !errors.Is(err, storageutil.ErrObjectNotFound) {
				t.Fatalf("expected ErrObjectNotFound on delete, got %v", err)
			}
		})
	}
}

func TestDeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	b := &storageprovider.Blob{Bucket: memblob.OpenBucket(nil)}
	defer b.Close()
	for _, name := range []string{"snapshots/a", "snapshots/b", "other/c"} {
		if err := storageutil.CompressedWrite(ctx, b, name, Snapshot{}); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name  string
		limit time.Time
		want  int
	}{
		{name: "nothing old enough", limit: time.Now().Add(-time.Hour), want: 0},
		{name: "everything under prefix", limit: time.Now().Add(time.Hour), want: 2},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			n, err := storageutil.DeleteOlderThan(ctx, b, b, "snapshots/", test.limit)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if n != test.want {
				t.Fatalf("expected %d deletions, got %d", test.want, n)
			}
		})
	}
	if _, err := b.Get(ctx, "other/c"); err != nil {
		t.Fatalf("objects outside the prefix should survive: %v", err)
	}
}
