package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Cache pairs a Store with a Codec to read and write typed artifacts. The
// cache never inspects or retries the caller's compute function; it only
// guarantees that a returned artifact is valid for the exact key it was
// stored under.
type Cache[T any] struct {
	store *Store
	files artifactStore[T]
}

// New wraps store with codec. The codec's extension must match the store's,
// since invalidation and orphan cleanup select files by extension.
func New[T any](store *Store, codec Codec[T]) (*Cache[T], error) {
	if codec.Ext() != store.ext {
		return nil, fmt.Errorf("codec extension %q does not match store extension %q", codec.Ext(), store.ext)
	}
	return &Cache[T]{store: store, files: artifactStore[T]{codec: codec}}, nil
}

// Store returns the underlying maintenance engine.
func (c *Cache[T]) Store() *Store {
	return c.store
}

// GetOrCompute returns the cached artifact for key when a fresh, readable
// copy exists, and otherwise invokes compute, stores the result, and returns
// it. The second return value reports whether the artifact came from cache.
//
// The engine lock is released while compute runs, so two goroutines racing
// the same key may both observe a miss and both compute; the second write
// wins the rename and the duplicate work is wasted but harmless, since
// writes are atomic and catalog upserts are idempotent per filename.
//
// On success the artifact file and its catalog row are committed together:
// if the catalog upsert fails after the artifact write, the file is deleted
// again and the index error propagates, so a failed call never leaves an
// orphan.
func (c *Cache[T]) GetOrCompute(key Key, compute func() (T, error)) (T, bool, error) {
	var zero T
	filename := key.Filename(c.store.ext)

	if artifact, ok := c.tryRead(filename); ok {
		return artifact, true, nil
	}

	artifact, err := compute()
	if err != nil {
		return zero, false, err
	}

	if err := c.writeIndexed(key, filename, artifact); err != nil {
		return zero, false, err
	}
	return artifact, false, nil
}

// Get returns the cached artifact for key, or ok=false when the entry is
// missing, expired, unreadable, or corrupt. It never computes. Corruption
// additionally deletes the stale file so the next read does not fail the
// same way.
func (c *Cache[T]) Get(key Key) (T, bool) {
	return c.tryRead(key.Filename(c.store.ext))
}

// Set unconditionally stores the artifact under key, using the same
// write-then-index-with-rollback discipline as GetOrCompute.
func (c *Cache[T]) Set(key Key, artifact T) error {
	return c.writeIndexed(key, key.Filename(c.store.ext), artifact)
}

// tryRead is the shared read path: under the lock, check that the file
// exists and is within TTL, then read it. IO failures degrade to a miss
// with the file left untouched; corruption degrades to a miss after
// deleting the file.
func (c *Cache[T]) tryRead(filename string) (T, bool) {
	var zero T
	path := filepath.Join(c.store.dir, filename)

	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	info, err := os.Stat(path)
	if err != nil {
		return zero, false
	}
	if time.Since(info.ModTime()) >= c.store.ttl {
		c.store.logger.Debug().Str("file", filename).Msg("cache entry expired")
		return zero, false
	}

	artifact, err := c.files.read(path)
	if err != nil {
		switch KindOf(err) {
		case KindCorruption:
			c.store.logger.Error().Err(err).Str("file", filename).Msg("corrupt cache artifact, removing")
			if rmErr := os.Remove(path); rmErr != nil {
				c.store.logger.Warn().Err(rmErr).Str("file", filename).Msg("could not remove corrupt cache file")
			}
		default:
			c.store.logger.Warn().Err(err).Str("file", filename).Msg("cache read failed, treating as miss")
		}
		return zero, false
	}
	return artifact, true
}

// writeIndexed writes the artifact atomically and then commits its catalog
// row. An index failure rolls back the just-written file so the net effect
// of a failed call is no new file and no new row.
func (c *Cache[T]) writeIndexed(key Key, filename string, artifact T) error {
	path := filepath.Join(c.store.dir, filename)

	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	if err := c.files.write(path, artifact); err != nil {
		return err
	}

	err := c.store.catalog.upsert(filename, key.SnapshotID, key.ConfigHash, key.DatasetVersions, time.Now())
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			c.store.logger.Warn().Err(rmErr).Str("file", filename).Msg("could not roll back cache file after index failure")
		}
		return &Error{Kind: KindIndex, Op: "index", Path: path, Err: err}
	}
	return nil
}
