package storageutil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/pierrec/lz4/v4"
)

// ErrObjectNotFound indicates an object was not found.
var ErrObjectNotFound = errors.New("object not found")

const defaultTimeout = 5 * time.Second

type (
	ReadSizeCloser interface {
		io.Reader
		io.Closer
		Size() int64
	}

	// ObjectHandler provides common interface for multiple storage providers.
	ObjectHandler interface {
		// Put writes a file to the storage provider with name being the path.
		Put(ctx context.Context, name string) (io.WriteCloser, error)
		// Get reads a file from the storage provider with name being the path.
		// If a key was not found, it will return ErrObjectNotFound.
		Get(ctx context.Context, name string) (ReadSizeCloser, error)
		// Delete removes a file. Deleting a missing file returns
		// ErrObjectNotFound.
		Delete(ctx context.Context, name string) error
	}

	ObjectInfo struct {
		Name    string
		Size    int64
		ModTime time.Time
	}

	// Lister is implemented by providers able to enumerate their objects.
	Lister interface {
		// List calls visit for every object whose name starts with prefix
		// and stops at the first error visit returns.
		List(ctx context.Context, prefix string, visit func(ObjectInfo) error) error
	}
)

// CompressedWrite encodes d as JSON, compresses it with lz4 and writes it
// under objectName.
func CompressedWrite(ctx context.Context, b ObjectHandler, objectName string, d interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	ow, err := b.Put(ctx, objectName)
	if err != nil {
		return err
	}
	zw := lz4.NewWriter(ow)
	_ = zw.Apply(lz4.CompressionLevelOption(lz4.Level9))
	err = json.NewEncoder(zw).Encode(d)
	if err != nil {
		_ = ow.Close()
		return err
	}
	err = zw.Close()
	if err != nil {
		_ = ow.Close()
		return err
	}
	return ow.Close()
}

// UnmarshalCompressed reads compressed JSON data and unmarshals it into d.
func UnmarshalCompressed(ctx context.Context, b ObjectHandler, objectName string, d interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	or, err := b.Get(ctx, objectName)
	if err != nil {
		return err
	}
	defer or.Close()
	return json.NewDecoder(lz4.NewReader(or)).Decode(d)
}

// DeleteOlderThan removes every object under prefix last modified before
// limit and returns how many were removed.
func DeleteOlderThan(ctx context.Context, b ObjectHandler, l Lister, prefix string, limit time.Time) (int, error) {
	var names []string
	err := l.List(ctx, prefix, func(o ObjectInfo) error {
		if o.ModTime.Before(limit) {
			names = append(names, o.Name)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, name := range names {
		err := b.Delete(ctx, name)
		if err != nil && !errors.Is(err, ErrObjectNotFound) {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}
