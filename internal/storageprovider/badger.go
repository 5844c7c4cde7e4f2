package storageprovider

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/getsentry/callprof/internal/storageutil"
)

// Badger implements storageutil.ObjectHandler on top of an embedded badger
// database. Objects written with a non-zero TTL expire on their own.
type Badger struct {
	DB  *badger.DB
	TTL time.Duration
}

// Put buffers the object and stores it when the writer is closed.
func (b *Badger) Put(ctx context.Context, name string) (io.WriteCloser, error) {
	return &badgerWriter{
		db:   b.DB,
		ttl:  b.TTL,
		name: name,
	}, nil
}

// Get reads a file from the storage provider with name being the path.
// If a key was not found, it will return ErrObjectNotFound.
func (b *Badger) Get(ctx context.Context, name string) (storageutil.ReadSizeCloser, error) {
	var value []byte
	err := b.DB.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(name))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storageutil.ErrObjectNotFound
	}
	if err != nil {
		return nil, err
	}
	return &badgerReader{
		Reader: bytes.NewReader(value),
		size:   int64(len(value)),
	}, nil
}

func (b *Badger) Delete(ctx context.Context, name string) error {
	err := b.DB.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(name)); err != nil {
			return err
		}
		return txn.Delete([]byte(name))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return storageutil.ErrObjectNotFound
	}
	return err
}

type badgerWriter struct {
	buf  bytes.Buffer
	db   *badger.DB
	ttl  time.Duration
	name string
}

func (bw *badgerWriter) Write(b []byte) (int, error) {
	return bw.buf.Write(b)
}

func (bw *badgerWriter) Close() error {
	e := badger.NewEntry([]byte(bw.name), bw.buf.Bytes())
	if bw.ttl > 0 {
		e = e.WithTTL(bw.ttl)
	}
	return bw.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(e)
	})
}

type badgerReader struct {
	*bytes.Reader
	size int64
}

func (b *badgerReader) Close() error {
	return nil
}

func (b *badgerReader) Size() int64 {
	return b.size
}
