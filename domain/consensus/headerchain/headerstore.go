package headerchain

import (
	"github.com/blockflow/flowd/domain/consensus/kvstore"
	"github.com/blockflow/flowd/domain/consensus/model"
	"github.com/blockflow/flowd/internal/lrucache"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// headerStore is the KV-backed `headers` column family (spec.md §6), with a
// staging map so a batch of header writes commits atomically alongside the
// rest of a block's persisted rows. Grounded on
// domain/consensus/datastructures/blockheaderstore's stage/commit/cache
// pattern.
type headerStore struct {
	bucket  *kvstore.Bucket
	cache   *lrucache.LRUCache
	staging map[model.Hash]*model.BlockHeader
}

func newHeaderStore(bucket *kvstore.Bucket, cacheSize int) *headerStore {
	return &headerStore{
		bucket:  bucket,
		cache:   lrucache.New(cacheSize),
		staging: make(map[model.Hash]*model.BlockHeader),
	}
}

func (hs *headerStore) Stage(hash model.Hash, header *model.BlockHeader) {
	hs.staging[hash] = header
}

func (hs *headerStore) Commit(batch *kvstore.Batch) error {
	for hash, header := range hs.staging {
		encoded, err := encodeHeader(header)
		if err != nil {
			return err
		}
		batch.Put(hs.bucket, hash[:], encoded)
		hs.cache.Add(hash, header)
	}
	hs.staging = make(map[model.Hash]*model.BlockHeader)
	return nil
}

func (hs *headerStore) Get(hash model.Hash) (*model.BlockHeader, error) {
	if header, ok := hs.staging[hash]; ok {
		return header, nil
	}
	if cached, ok := hs.cache.Get(hash); ok {
		return cached.(*model.BlockHeader), nil
	}

	raw, err := hs.bucket.Get(hash[:])
	if err != nil {
		return nil, err
	}
	header, err := decodeHeader(raw)
	if err != nil {
		return nil, err
	}
	hs.cache.Add(hash, header)
	return header, nil
}

func (hs *headerStore) Has(hash model.Hash) (bool, error) {
	if _, ok := hs.staging[hash]; ok {
		return true, nil
	}
	if hs.cache.Has(hash) {
		return true, nil
	}
	return hs.bucket.Has(hash[:])
}

// encodeHeader serializes a BlockHeader for the KV store using the
// protobuf wire primitives directly, standing in for a generated .pb.go
// message (no protoc invocation in this exercise); the field order
// mirrors serialization.DomainBlockHeaderToDbBlockHeader's.
func encodeHeader(h *model.BlockHeader) ([]byte, error) {
	buf := make([]byte, 0, 64+len(h.Deps)*model.HashSize)

	buf = append(buf, byte(h.ChainIndex.From), byte(h.ChainIndex.To))

	buf = protowire.AppendVarint(buf, uint64(len(h.Deps)))
	for _, d := range h.Deps {
		buf = append(buf, d[:]...)
	}

	buf = append(buf, h.TxsRoot[:]...)
	buf = protowire.AppendVarint(buf, h.Timestamp)
	buf = protowire.AppendVarint(buf, uint64(h.Target))
	buf = append(buf, h.Nonce[:]...)

	return buf, nil
}

func decodeHeader(raw []byte) (*model.BlockHeader, error) {
	h := &model.BlockHeader{}
	r := raw

	if len(r) < 2 {
		return nil, errors.New("truncated header: chain index")
	}
	h.ChainIndex = model.ChainIndex{From: model.GroupIndex(r[0]), To: model.GroupIndex(r[1])}
	r = r[2:]

	depCount, n := protowire.ConsumeVarint(r)
	if n < 0 {
		return nil, errors.New("truncated header: dep count")
	}
	r = r[n:]

	h.Deps = make([]model.Hash, depCount)
	for i := range h.Deps {
		if len(r) < model.HashSize {
			return nil, errors.New("truncated header: dep hash")
		}
		h.Deps[i] = model.HashFromSlice(r[:model.HashSize])
		r = r[model.HashSize:]
	}

	if len(r) < model.HashSize {
		return nil, errors.New("truncated header: txsRoot")
	}
	h.TxsRoot = model.HashFromSlice(r[:model.HashSize])
	r = r[model.HashSize:]

	timestamp, n := protowire.ConsumeVarint(r)
	if n < 0 {
		return nil, errors.New("truncated header: timestamp")
	}
	h.Timestamp = timestamp
	r = r[n:]

	target, n := protowire.ConsumeVarint(r)
	if n < 0 {
		return nil, errors.New("truncated header: target")
	}
	h.Target = model.CompactTarget(target)
	r = r[n:]

	if len(r) < 32 {
		return nil, errors.New("truncated header: nonce")
	}
	copy(h.Nonce[:], r[:32])

	return h, nil
}
