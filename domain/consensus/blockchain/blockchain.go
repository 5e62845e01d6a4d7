// Package blockchain implements spec.md §4.3: HeaderChain plus block body
// storage plus world-state checkpoints.
package blockchain

import (
	"sync"

	"github.com/blockflow/flowd/domain/consensus/execorder"
	"github.com/blockflow/flowd/domain/consensus/headerchain"
	"github.com/blockflow/flowd/domain/consensus/kvstore"
	"github.com/blockflow/flowd/domain/consensus/model"
	"github.com/blockflow/flowd/logger"
	"github.com/pkg/errors"
)

var log, _ = logger.Get(logger.SubsystemTags.BCHN)

// BlockChain composes a HeaderChain with block bodies and world-state
// checkpoints for a single (from,to) chain.
type BlockChain struct {
	*headerchain.HeaderChain

	chainIndex model.ChainIndex

	blocks blockStore
	states blockStateStore

	mtx         sync.RWMutex
	worldStates map[model.Hash]model.WorldState
}

// New constructs a BlockChain for chainIndex, seeded with the genesis block
// and its initial world state.
func New(chainIndex model.ChainIndex, bodyBucket, headerBucket, stateBucket *kvstore.Bucket, cacheSize int,
	genesisHash model.Hash, genesisBlock *model.Block, genesisState model.WorldState,
	tipsPruneInterval uint64, diffParams headerchain.DifficultyParams) *BlockChain {

	hc := headerchain.New(headerBucket, cacheSize, genesisHash, &genesisBlock.Header, tipsPruneInterval, diffParams)

	bc := &BlockChain{
		HeaderChain: hc,
		chainIndex:  chainIndex,
		blocks:      *newBlockStore(bodyBucket, cacheSize),
		states:      *newBlockStateStore(stateBucket),
		worldStates: map[model.Hash]model.WorldState{genesisHash: genesisState},
	}
	genesisWeight := model.TargetToWork(genesisBlock.Header.Target)
	bc.blocks.Stage(genesisHash, genesisBlock.Transactions)
	bc.states.Stage(genesisHash, &model.BlockState{Height: 0, Weight: genesisWeight, WorldStateRoot: genesisState.Root()})

	return bc
}

// Add executes block's transactions against its parent's world state and,
// on success, persists header + body + state atomically (spec.md §4.3,
// §5 "atomic batches for any multi-key invariant").
func (bc *BlockChain) Add(hash model.Hash, block *model.Block, kv *kvstore.Store) error {
	if block.Header.ChainIndex != bc.chainIndex {
		return errors.Wrapf(model.ErrInvalidChainIndex, "block %s is for %s, chain is %s", hash, block.Header.ChainIndex, bc.chainIndex)
	}

	parentHash := block.Header.DirectParent()

	bc.mtx.RLock()
	parentState, ok := bc.worldStates[parentHash]
	bc.mtx.RUnlock()
	if !ok {
		return errors.Wrapf(model.ErrMissingParent, "world state for %s not available", parentHash)
	}

	state, err := bc.execute(parentHash, parentState, block)
	if err != nil {
		return errors.Wrapf(model.ErrInvalidExecution, "block %s: %v", hash, err)
	}

	batch := kv.NewBatch()
	if err := bc.HeaderChain.Add(hash, &block.Header, batch); err != nil {
		return err
	}

	bc.blocks.Stage(hash, block.Transactions)
	bc.blocks.Commit(batch)

	node, _ := bc.Node(hash)
	bc.states.Stage(hash, &model.BlockState{Height: node.Height, Weight: node.Weight, WorldStateRoot: state.Root()})
	bc.states.Commit(batch)

	if err := batch.Commit(); err != nil {
		return errors.Wrap(err, "committing block")
	}

	bc.mtx.Lock()
	bc.worldStates[hash] = state
	bc.mtx.Unlock()

	log.Infof("accepted block %s on chain %s at height %d", hash, bc.chainIndex, node.Height)
	return nil
}

// execute applies block's non-coinbase transactions in the deterministic
// order execorder computes, then the coinbase last (spec.md §4.3, §4.8).
func (bc *BlockChain) execute(parentHash model.Hash, parentState model.WorldState, block *model.Block) (model.WorldState, error) {
	state := parentState
	userTxs := block.UserTransactions()
	order := execorder.NonCoinbaseExecutionOrder(parentHash, userTxs)

	for _, idx := range order {
		var err error
		state, err = state.Apply(userTxs[idx])
		if err != nil {
			return nil, errors.Wrapf(err, "applying tx %s", userTxs[idx].Hash)
		}
	}

	var err error
	state, err = state.Apply(block.Coinbase())
	if err != nil {
		return nil, errors.Wrap(err, "applying coinbase")
	}
	return state, nil
}

// WorldStateAt returns the checkpointed world state rooted at hash.
func (bc *BlockChain) WorldStateAt(hash model.Hash) (model.WorldState, error) {
	bc.mtx.RLock()
	defer bc.mtx.RUnlock()
	state, ok := bc.worldStates[hash]
	if !ok {
		return nil, errors.Wrapf(model.ErrMissingBlock, "world state for %s", hash)
	}
	return state, nil
}

// Block returns the stored transactions for hash.
func (bc *BlockChain) Block(hash model.Hash) ([]*model.Transaction, error) {
	return bc.blocks.Get(hash)
}

// BlockState returns the persisted state row for hash.
func (bc *BlockChain) BlockState(hash model.Hash) (*model.BlockState, error) {
	return bc.states.Get(hash)
}

// ChainIndex returns the (from,to) pair this BlockChain serves.
func (bc *BlockChain) ChainIndex() model.ChainIndex {
	return bc.chainIndex
}
