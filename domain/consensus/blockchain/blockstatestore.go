package blockchain

import (
	"math/big"

	"github.com/blockflow/flowd/domain/consensus/kvstore"
	"github.com/blockflow/flowd/domain/consensus/model"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// blockStateStore is the `block-state` column family (spec.md §6): hash ->
// (height, weight, worldStateRoot), encoded with the protobuf wire
// primitives directly rather than a generated message (no protoc
// invocation in this exercise).
type blockStateStore struct {
	bucket  *kvstore.Bucket
	staging map[model.Hash]*model.BlockState
}

func newBlockStateStore(bucket *kvstore.Bucket) *blockStateStore {
	return &blockStateStore{bucket: bucket, staging: make(map[model.Hash]*model.BlockState)}
}

func (bss *blockStateStore) Stage(hash model.Hash, state *model.BlockState) {
	bss.staging[hash] = state
}

func (bss *blockStateStore) Commit(batch *kvstore.Batch) {
	for hash, state := range bss.staging {
		var buf []byte
		buf = protowire.AppendVarint(buf, state.Height)
		buf = protowire.AppendBytes(buf, state.Weight.Bytes())
		buf = append(buf, state.WorldStateRoot[:]...)
		batch.Put(bss.bucket, hash[:], buf)
	}
	bss.staging = make(map[model.Hash]*model.BlockState)
}

func (bss *blockStateStore) Get(hash model.Hash) (*model.BlockState, error) {
	if s, ok := bss.staging[hash]; ok {
		return s, nil
	}

	raw, err := bss.bucket.Get(hash[:])
	if err != nil {
		return nil, err
	}

	height, n := protowire.ConsumeVarint(raw)
	if n < 0 {
		return nil, errors.New("blockstatestore: truncated height")
	}
	raw = raw[n:]

	weightBytes, n := protowire.ConsumeBytes(raw)
	if n < 0 {
		return nil, errors.New("blockstatestore: truncated weight")
	}
	raw = raw[n:]
	weight := new(big.Int).SetBytes(weightBytes)

	if len(raw) < model.HashSize {
		return nil, errors.New("blockstatestore: truncated world state root")
	}
	root := model.HashFromSlice(raw[:model.HashSize])

	return &model.BlockState{Height: height, Weight: weight, WorldStateRoot: root}, nil
}
