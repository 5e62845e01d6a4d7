// Package kvstore wraps the on-disk key/value engine behind the thin
// transactional interface the column-family stores in headerchain and
// blockchain need.
// spec.md §1 treats the KV engine itself as an external collaborator; this
// package is the driver glue around github.com/syndtr/goleveldb, grounded
// on daglabs-btcd's database/ffldb/ldb cursor wrapper.
package kvstore

import (
	"github.com/blockflow/flowd/logger"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var log, _ = logger.Get(logger.SubsystemTags.DBAS)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is a thin wrapper around a goleveldb handle.
type Store struct {
	ldb *leveldb.DB
}

// Open opens (creating if necessary) the LevelDB database at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "opening kv store at %s", path)
	}
	log.Infof("opened kv store at %s", path)
	return &Store{ldb: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.ldb.Close()
}

// Bucket returns a column-family-scoped view over the store: every key
// written through a Bucket is prefixed with the bucket's name so distinct
// column families never collide in the shared keyspace (spec.md §6
// "Persisted state layout").
func (s *Store) Bucket(name string) *Bucket {
	return &Bucket{store: s, prefix: append([]byte(name), ':')}
}

// Bucket is a prefixed view over a Store, analogous to a column family.
type Bucket struct {
	store  *Store
	prefix []byte
}

func (b *Bucket) key(k []byte) []byte {
	out := make([]byte, 0, len(b.prefix)+len(k))
	out = append(out, b.prefix...)
	return append(out, k...)
}

// Get reads a single value. Returns ErrNotFound if absent.
func (b *Bucket) Get(key []byte) ([]byte, error) {
	v, err := b.store.ldb.Get(b.key(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "kvstore get")
	}
	return v, nil
}

// Has reports whether key is present.
func (b *Bucket) Has(key []byte) (bool, error) {
	ok, err := b.store.ldb.Has(b.key(key), nil)
	if err != nil {
		return false, errors.Wrap(err, "kvstore has")
	}
	return ok, nil
}

// Put writes a single key/value pair outside of any transaction.
func (b *Bucket) Put(key, value []byte) error {
	return errors.Wrap(b.store.ldb.Put(b.key(key), value, nil), "kvstore put")
}

// Delete removes a key outside of any transaction.
func (b *Bucket) Delete(key []byte) error {
	return errors.Wrap(b.store.ldb.Delete(b.key(key), nil), "kvstore delete")
}

// Cursor begins a new cursor over all keys in the bucket. Grounded on
// database/ffldb/ldb.LevelDBCursor.
func (b *Bucket) Cursor() *Cursor {
	it := b.store.ldb.NewIterator(util.BytesPrefix(b.prefix), nil)
	return &Cursor{it: it, prefixLen: len(b.prefix)}
}

// Cursor is a thin wrapper around a native leveldb iterator, scoped to a
// bucket's prefix.
type Cursor struct {
	it        iterator.Iterator
	prefixLen int
	closed    bool
}

// Next advances the cursor. Returns false once exhausted or closed.
func (c *Cursor) Next() bool {
	if c.closed {
		return false
	}
	return c.it.Next()
}

// Key returns the current key with the bucket prefix stripped.
func (c *Cursor) Key() []byte {
	return c.it.Key()[c.prefixLen:]
}

// Value returns the current value.
func (c *Cursor) Value() []byte {
	return c.it.Value()
}

// Close releases the cursor's resources.
func (c *Cursor) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.it.Release()
}

// Batch stages multiple writes for atomic commit -- used for any operation
// that must update more than one key-space invariant in one go, such as
// persisting a block's header and body alongside its state row
// (spec.md §5, "per-column-family writes use atomic batches").
type Batch struct {
	store *Store
	batch *leveldb.Batch
}

// NewBatch begins a new atomic batch against the store.
func (s *Store) NewBatch() *Batch {
	return &Batch{store: s, batch: new(leveldb.Batch)}
}

// Put stages a write in bucket b.
func (bt *Batch) Put(b *Bucket, key, value []byte) {
	bt.batch.Put(b.key(key), value)
}

// Delete stages a delete in bucket b.
func (bt *Batch) Delete(b *Bucket, key []byte) {
	bt.batch.Delete(b.key(key))
}

// Commit writes the batch atomically.
func (bt *Batch) Commit() error {
	return errors.Wrap(bt.store.ldb.Write(bt.batch, nil), "kvstore batch commit")
}
