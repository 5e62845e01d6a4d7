package blockchain

import (
	"github.com/blockflow/flowd/domain/consensus/kvstore"
	"github.com/blockflow/flowd/domain/consensus/model"
	"github.com/blockflow/flowd/internal/lrucache"
	"google.golang.org/protobuf/encoding/protowire"
)

// blockStore is the `block-bodies` column family (spec.md §6): hash ->
// serialized transaction list. Header and chain index live in headerchain's
// store; this store only holds what's unique to a full block.
type blockStore struct {
	bucket  *kvstore.Bucket
	cache   *lrucache.LRUCache
	staging map[model.Hash][]*model.Transaction
}

func newBlockStore(bucket *kvstore.Bucket, cacheSize int) *blockStore {
	return &blockStore{
		bucket:  bucket,
		cache:   lrucache.New(cacheSize),
		staging: make(map[model.Hash][]*model.Transaction),
	}
}

func (bs *blockStore) Stage(hash model.Hash, txs []*model.Transaction) {
	bs.staging[hash] = txs
}

func (bs *blockStore) Commit(batch *kvstore.Batch) {
	for hash, txs := range bs.staging {
		var buf []byte
		buf = protowire.AppendVarint(buf, uint64(len(txs)))
		for _, tx := range txs {
			buf = encodeTx(tx, buf)
		}
		batch.Put(bs.bucket, hash[:], buf)
		bs.cache.Add(hash, txs)
	}
	bs.staging = make(map[model.Hash][]*model.Transaction)
}

func (bs *blockStore) Get(hash model.Hash) ([]*model.Transaction, error) {
	if txs, ok := bs.staging[hash]; ok {
		return txs, nil
	}
	if cached, ok := bs.cache.Get(hash); ok {
		return cached.([]*model.Transaction), nil
	}

	raw, err := bs.bucket.Get(hash[:])
	if err != nil {
		return nil, err
	}

	n, r, err := takeVarint(raw)
	if err != nil {
		return nil, err
	}
	txs := make([]*model.Transaction, n)
	for i := range txs {
		txs[i], r, err = decodeTx(r)
		if err != nil {
			return nil, err
		}
	}
	bs.cache.Add(hash, txs)
	return txs, nil
}
