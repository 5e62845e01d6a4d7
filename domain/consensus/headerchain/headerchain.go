// Package headerchain implements spec.md §4.2: HashChain plus header
// storage plus the DigiShield-style difficulty-adjustment algorithm.
package headerchain

import (
	"github.com/blockflow/flowd/domain/consensus/hashchain"
	"github.com/blockflow/flowd/domain/consensus/kvstore"
	"github.com/blockflow/flowd/domain/consensus/model"
	"github.com/blockflow/flowd/logger"
	"github.com/pkg/errors"
)

var log, _ = logger.Get(logger.SubsystemTags.HDCH)

// HeaderChain composes a HashChain with header persistence and difficulty
// adjustment (spec.md §9: "a BlockChain owns a HeaderChain which owns a
// HashChain").
type HeaderChain struct {
	*hashchain.HashChain
	store  *headerStore
	params DifficultyParams
}

// New constructs a HeaderChain rooted at genesisHeader.
func New(chainBucket *kvstore.Bucket, cacheSize int, genesisHash model.Hash, genesisHeader *model.BlockHeader,
	tipsPruneInterval uint64, params DifficultyParams) *HeaderChain {

	hc := hashchain.New(genesisHash, genesisHeader.Timestamp, genesisHeader.Target, tipsPruneInterval)
	store := newHeaderStore(chainBucket, cacheSize)
	store.Stage(genesisHash, genesisHeader)

	return &HeaderChain{HashChain: hc, store: store, params: params}
}

// NextTargetAfter derives the target a new header building on parentHash
// must carry (spec.md §4.2 step 2; also used by mining to propose the next
// block's target).
func (c *HeaderChain) NextTargetAfter(parentHash model.Hash) (model.CompactTarget, error) {
	parent, ok := c.Node(parentHash)
	if !ok {
		return 0, errors.Wrapf(model.ErrMissingParent, "%s", parentHash)
	}
	return calHashTarget(parent, c.params), nil
}

// Add validates and ingests a new header. Step 1: parent must exist. Step
// 2-3: the header's target must equal the DigiShield-derived value. On
// success the header is staged for the caller's batch commit (BlockChain.Add
// persists header + body + state atomically) and the HashChain index is
// updated immediately so tip/weight reads stay consistent.
func (c *HeaderChain) Add(hash model.Hash, header *model.BlockHeader, batch *kvstore.Batch) error {
	parentHash := header.DirectParent()
	parent, ok := c.Node(parentHash)
	if !ok {
		return errors.Wrapf(model.ErrMissingParent, "header %s parent %s", hash, parentHash)
	}

	wantTarget := calHashTarget(parent, c.params)
	if header.Target != wantTarget {
		return errors.Wrapf(errTargetMismatch, "header %s: got %08x want %08x", hash, uint32(header.Target), uint32(wantTarget))
	}

	if err := c.HashChain.Add(hash, parentHash, header.Timestamp, header.Target); err != nil {
		return err
	}

	c.store.Stage(hash, header)
	if err := c.store.Commit(batch); err != nil {
		return errors.Wrap(err, "staging header for commit")
	}

	log.Debugf("added header %s at height %d", hash, parent.Height+1)
	return nil
}

// Header returns the stored header for hash.
func (c *HeaderChain) Header(hash model.Hash) (*model.BlockHeader, error) {
	return c.store.Get(hash)
}

// HasHeader reports whether hash's header is known.
func (c *HeaderChain) HasHeader(hash model.Hash) (bool, error) {
	return c.store.Has(hash)
}
